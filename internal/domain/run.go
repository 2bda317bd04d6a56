package domain

import "time"

// Outcome is the result of a run for a single slot.
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeNoData      Outcome = "no_data"
	OutcomeEmptyOutput Outcome = "empty_output"
	OutcomeConverted   Outcome = "converted"
	OutcomeArchived    Outcome = "archived"
)

// RunState is a state of the run-level state machine.
type RunState string

const (
	StateIdle       RunState = "idle"
	StatePolling    RunState = "polling"
	StateExtracting RunState = "extracting"
	StateConverting RunState = "converting"
	StateArchiving  RunState = "archiving"
	StateFinished   RunState = "finished"
	StateAborted    RunState = "aborted"
)

// Terminal reports whether no transition leaves s.
func (s RunState) Terminal() bool {
	return s == StateFinished || s == StateAborted
}

// SlotReport summarises what happened to one slot.
type SlotReport struct {
	Slot     Slot
	Date     time.Time
	Outcome  Outcome
	Sources  int
	Lines    int
	Dropped  int
	Artifact string
	Size     int64
}

// RunSummary describes a completed or aborted run.
type RunSummary struct {
	RunID      string
	State      RunState
	Dates      RunDates
	StartedAt  time.Time
	FinishedAt time.Time
	Staged     int
	Slots      []SlotReport
	Err        error
}

// Archived returns the number of slots whose artifact reached the archive.
func (s RunSummary) Archived() int {
	n := 0
	for _, r := range s.Slots {
		if r.Outcome == OutcomeArchived {
			n++
		}
	}
	return n
}
