package models

import (
	"time"
)

// EnrichmentStatus is the lifecycle state of a record in the enrichment queue.
// An empty value means the record has never been touched by the worker.
type EnrichmentStatus string

const (
	StatusUnset      EnrichmentStatus = ""
	StatusPending    EnrichmentStatus = "pending"
	StatusProcessing EnrichmentStatus = "processing"
	StatusCompleted  EnrichmentStatus = "completed"
	StatusFailed     EnrichmentStatus = "failed"
)

// Terminal reports whether the status ends the current enrichment attempt.
func (s EnrichmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Source trust tags. Records carry one of these (or nothing) in their source
// column; anything unrecognized scores as unverified.
const (
	SourceAuthoritative = "authoritative"
	SourceThirdParty    = "third_party"
	SourceUnverified    = "unverified"
)

// Nutrients holds all nutrient fields of a food record. Values are nil until
// enrichment (or ingestion) fills them; a present zero is a legitimate value
// and is never treated as missing.
type Nutrients struct {
	// Required macro group
	Calories *float64 `json:"calories"`
	Protein  *float64 `json:"protein"`
	Carbs    *float64 `json:"carbs"`
	Fat      *float64 `json:"fat"`

	Fiber  *float64 `json:"fiber,omitempty"`
	Sugar  *float64 `json:"sugar,omitempty"`
	Sodium *float64 `json:"sodium,omitempty"`

	// Micronutrients
	Calcium   *float64 `json:"calcium,omitempty"`
	Iron      *float64 `json:"iron,omitempty"`
	Potassium *float64 `json:"potassium,omitempty"`
}

// RequiredPresent counts how many of the four required macro fields are set.
func (n Nutrients) RequiredPresent() int {
	count := 0
	for _, v := range []*float64{n.Calories, n.Protein, n.Carbs, n.Fat} {
		if v != nil {
			count++
		}
	}
	return count
}

// MicrosPresent counts how many of the three scored micronutrients are set.
func (n Nutrients) MicrosPresent() int {
	count := 0
	for _, v := range []*float64{n.Calcium, n.Iron, n.Potassium} {
		if v != nil {
			count++
		}
	}
	return count
}

// DefaultRequired returns a copy with any missing required macro field set
// to 0. Completed records must have the full required group populated.
func (n Nutrients) DefaultRequired() Nutrients {
	out := n
	zero := 0.0
	if out.Calories == nil {
		v := zero
		out.Calories = &v
	}
	if out.Protein == nil {
		v := zero
		out.Protein = &v
	}
	if out.Carbs == nil {
		v := zero
		out.Carbs = &v
	}
	if out.Fat == nil {
		v := zero
		out.Fat = &v
	}
	return out
}

// FoodRecord is the unit of work for the enrichment queue.
type FoodRecord struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Brand *string `json:"brand,omitempty"`
	// Source is a trust tag: authoritative, third_party, unverified. Nil
	// counts as unverified.
	Source             *string `json:"source,omitempty"`
	ServingDescription *string `json:"serving_description,omitempty"`

	Nutrients Nutrients `json:"nutrients"`

	QualityScore      *int             `json:"quality_score,omitempty"`
	EnrichmentStatus  EnrichmentStatus `json:"enrichment_status"`
	LastEnrichment    *time.Time       `json:"last_enrichment,omitempty"`
	EnrichmentRetries int              `json:"enrichment_retries"`
}

// SourceTag returns the record's trust tag, defaulting to unverified.
func (r FoodRecord) SourceTag() string {
	if r.Source == nil || *r.Source == "" {
		return SourceUnverified
	}
	return *r.Source
}

// CompletedData is what the completion service contributed for one record:
// gap-filled nutrients plus the service's own confidence in them.
type CompletedData struct {
	Nutrients  Nutrients `json:"nutrients"`
	Confidence int       `json:"confidence"` // 0-100
	Reasoning  string    `json:"reasoning,omitempty"`
}

// EnrichedRecord is the final persistence payload for a successfully
// processed record. All required nutrients are non-nil by construction.
type EnrichedRecord struct {
	ID             int64
	Nutrients      Nutrients
	QualityScore   int
	Status         EnrichmentStatus
	LastEnrichment time.Time
}

// EnrichmentHistory is one audit row per processing attempt.
type EnrichmentHistory struct {
	ID              int64     `json:"id"`
	FoodID          int64     `json:"food_id"`
	Score           int       `json:"score"`
	Status          string    `json:"status"`
	Issues          []string  `json:"issues,omitempty"`
	Confidence      int       `json:"confidence"`
	ResponseExcerpt *string   `json:"response_excerpt,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// RecordError identifies a record that failed within a batch.
type RecordError struct {
	FoodID   int64  `json:"food_id"`
	FoodName string `json:"food_name"`
	Error    string `json:"error"`
}

// BatchResult aggregates one RunBatch invocation.
type BatchResult struct {
	Processed  int           `json:"processed"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Remaining  int           `json:"remaining"`
	Errors     []RecordError `json:"errors,omitempty"`
}

// Float returns a pointer to v. Convenience for literals.
func Float(v float64) *float64 { return &v }
