// Package scorer computes the 0-100 quality score persisted with every
// completed record. Scoring is deterministic: the same record, nutrients and
// validation report always yield the same score.
package scorer

import (
	"math"

	"nutrition-enrichment/internal/models"
)

// Config holds the point budgets per scoring dimension. Budgets sum to 100.
type Config struct {
	MacroPoints       int // required macro group completeness
	MicroPoints       int // micronutrient completeness
	ConsistencyPoints int // starting consistency budget
	IssuePenalty      int // deducted per validation issue
	SourcePoints      int // source trust tier
	ConfidencePoints  int // completion service confidence
}

// DefaultConfig returns the standard 30/10/30/20/10 split.
func DefaultConfig() Config {
	return Config{
		MacroPoints:       30,
		MicroPoints:       10,
		ConsistencyPoints: 30,
		IssuePenalty:      10,
		SourcePoints:      20,
		ConfidencePoints:  10,
	}
}

// QualityScorer scores final nutrient sets.
type QualityScorer struct {
	cfg   Config
	trust *SourceTrust
}

func New(cfg Config, trust *SourceTrust) *QualityScorer {
	return &QualityScorer{cfg: cfg, trust: trust}
}

func NewDefault(trust *SourceTrust) *QualityScorer {
	return New(DefaultConfig(), trust)
}

// Score computes the quality score for a record after merge and validation.
// n is the final (merged and corrected) nutrient set; issues come from the
// validation report; confidence is the completion service's 0-100 estimate.
func (qs *QualityScorer) Score(rec models.FoodRecord, n models.Nutrients, issues []string, confidence int) int {
	var total float64

	// completeness
	total += float64(qs.cfg.MacroPoints) * float64(n.RequiredPresent()) / 4.0
	total += float64(qs.cfg.MicroPoints) * float64(n.MicrosPresent()) / 3.0

	// consistency: each issue eats into the budget, floor at zero
	consistency := qs.cfg.ConsistencyPoints - qs.cfg.IssuePenalty*len(issues)
	if consistency < 0 {
		consistency = 0
	}
	total += float64(consistency)

	// source trust
	tier := qs.trust.Classify(rec.Source)
	total += float64(qs.cfg.SourcePoints) * qs.trust.Multiplier(tier)

	// confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 100 {
		confidence = 100
	}
	total += float64(qs.cfg.ConfidencePoints) * float64(confidence) / 100.0

	score := int(math.Round(total))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
