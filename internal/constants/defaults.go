package constants

import "time"

// Centralized default values for timeouts, intervals, and batch settings.
// These provide sane defaults; environment/config may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// Completion service / OpenAI
	CompletionAPITimeoutDefault = 60 * time.Second
	CompletionOpenFor           = 45 * time.Second

	// Circuit breaker thresholds for the completion service
	CompletionFailureRate       = 0.5
	CompletionMaxConsecFailures = 5

	// Batch runner
	BatchSizeDefault        = 5
	RecordDelayDefault      = 2 * time.Second
	RescoreThresholdDefault = 70

	// Processing claims: a record stuck in processing re-enters the pool
	// once its claim lapses.
	ClaimTTLDefault = 15 * time.Minute

	// Transient failures before a record is parked as failed.
	MaxTransientRetriesDefault = 5

	// Config watcher
	ConfigWatcherIntervalDefault = 2 * time.Second

	// Events store SQL operations
	EventsSQLTimeoutDefault = 5 * time.Second

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second
)
