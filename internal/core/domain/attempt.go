package domain

import "time"

// OperationKind labels what a guarded invocation is doing. It only feeds
// logs and journal queries; the engine treats all kinds the same.
type OperationKind string

const (
	KindFetch   OperationKind = "fetch"
	KindScrape  OperationKind = "scrape"
	KindExtract OperationKind = "extract"
)

// ExecContext identifies one guarded invocation. DestinationKey scopes
// circuit breaking and delay history; StrategyLabel names the client
// behavior in force so per-strategy success rates can be derived.
type ExecContext struct {
	DestinationKey string        `json:"destination_key"`
	StrategyLabel  string        `json:"strategy_label"`
	Kind           OperationKind `json:"kind"`
}

// AttemptRecord is one journal entry, written after every attempt.
type AttemptRecord struct {
	Timestamp       time.Time     `json:"timestamp"`
	Attempt         int           `json:"attempt"`
	DestinationKey  string        `json:"destination_key"`
	StrategyLabel   string        `json:"strategy_label"`
	Kind            OperationKind `json:"kind"`
	ErrorText       string        `json:"error,omitempty"`
	Category        ErrorCategory `json:"category,omitempty"`
	CumulativeDelay time.Duration `json:"cumulative_delay_ms"`
	Success         bool          `json:"success"`
	Elapsed         time.Duration `json:"elapsed_ms"`
}
