package core

import "time"

// RunState is a state of the export state machine.
type RunState string

const (
	StateInitializing RunState = "initializing"
	StateResolving    RunState = "resolving"
	StateCompiling    RunState = "compiling"
	StateStreaming    RunState = "streaming"
	StateCompleted    RunState = "completed"
	StateFailed       RunState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// TableStatus is the outcome of one table stream.
type TableStatus string

const (
	TableExported TableStatus = "exported"
	TableExcluded TableStatus = "excluded"
	TableFailed   TableStatus = "failed"
)

// TableResult summarises one processed table.
type TableResult struct {
	Table       string
	Status      TableStatus
	Rule        string
	RowsRead    int64
	RowsEmitted int64
	Duration    time.Duration
	Error       string
}

// RunSummary summarises a finished export run.
type RunSummary struct {
	RunID           string
	State           RunState
	Output          string
	TablesProcessed int
	RowsEmitted     int64
	StartedAt       time.Time
	FinishedAt      time.Time
	FailedTable     string
	Error           string
}
