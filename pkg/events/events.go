package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event is the base interface for record enrichment audit events.
// Keep payloads small, use JSON-friendly fields.
type Event interface {
	Type() string
	FoodID() int64
	Timestamp() time.Time
	MarshalData() ([]byte, error)
}

// Base contains common event metadata.
type Base struct {
	Ts  time.Time `json:"ts"`
	FID int64     `json:"food_id"`
}

func (b Base) Timestamp() time.Time { return b.Ts }
func (b Base) FoodID() int64        { return b.FID }

// --- Concrete events ---

const (
	TypeEnrichmentStarted   = "record.enrichment.started"
	TypeEnrichmentCompleted = "record.enrichment.completed"
	TypeEnrichmentFailed    = "record.enrichment.failed"
)

// EnrichmentStarted is emitted when processing for a record begins.
type EnrichmentStarted struct {
	Base
	Triggered string `json:"triggered"` // batch|api
	Claim     string `json:"claim,omitempty"`
}

func (e EnrichmentStarted) Type() string                 { return TypeEnrichmentStarted }
func (e EnrichmentStarted) MarshalData() ([]byte, error) { return json.Marshal(e) }

// EnrichmentCompleted captures the final score and validation outcome.
type EnrichmentCompleted struct {
	Base
	Score      int      `json:"score"`
	Issues     []string `json:"issues,omitempty"`
	Confidence int      `json:"confidence"`
}

func (e EnrichmentCompleted) Type() string                 { return TypeEnrichmentCompleted }
func (e EnrichmentCompleted) MarshalData() ([]byte, error) { return json.Marshal(e) }

// EnrichmentFailed records why a record did not reach completed, and whether
// the failure was transient (record returned to the pool) or permanent.
type EnrichmentFailed struct {
	Base
	Reason    string `json:"reason"`
	Transient bool   `json:"transient"`
	Retries   int    `json:"retries"`
}

func (e EnrichmentFailed) Type() string                 { return TypeEnrichmentFailed }
func (e EnrichmentFailed) MarshalData() ([]byte, error) { return json.Marshal(e) }

// EventStore defines persistence and listing.
// Implementations must guarantee ordering per record.
type EventStore interface {
	Append(ctx context.Context, e ...Event) error
	ListByRecord(ctx context.Context, foodID int64) ([]StoredEvent, error)
}

// StoredEvent is a durable representation.
// Seq is a monotonic order within the DB (BIGINT AUTO_INCREMENT).
type StoredEvent struct {
	Seq     int64           `json:"seq"`
	FoodID  int64           `json:"food_id"`
	Type    string          `json:"type"`
	Ts      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}
