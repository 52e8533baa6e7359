package models

import "time"

// RunRecord describes one invocation of the three-stage pipeline over a
// batch of instances. It is the unit the History Store (C8) tracks; it has
// no equivalent document in the Result Store, which is keyed by instance
// rather than by run.
type RunRecord struct {
	RunID      string     `json:"run_id"`
	Benchmark  string     `json:"benchmark"`
	Model      string     `json:"model"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PhaseOutcome is the per-(run, instance, phase) fact the orchestrator
// reports to the History Store after completing a phase. It is a summary of
// whatever the phase wrote into the instance's ResultRecord, not a copy of
// it: the History Store never becomes a second source of truth for pipeline
// decisions.
type PhaseOutcome struct {
	Status        string  `json:"status"`
	CoverageRate   float64 `json:"coverage_rate,omitempty"`
	DurationMillis int64   `json:"duration_millis,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// RunSummary aggregates phase outcomes across every instance in a run, the
// shape the status dashboard renders per run.
type RunSummary struct {
	Run            RunRecord      `json:"run"`
	InstanceCount  int            `json:"instance_count"`
	PhaseCounts    map[string]PhaseCount `json:"phase_counts"`
}

// PhaseCount tallies outcomes for one phase across a run.
type PhaseCount struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// RunFilters constrains ListRuns queries, mirroring the filter-struct shape
// the original session listing endpoint uses.
type RunFilters struct {
	Benchmark string `json:"benchmark,omitempty"`
	Model     string `json:"model,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}
