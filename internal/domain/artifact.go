package domain

import "time"

// SlotBatch is the intermediate text extracted for one slot.
type SlotBatch struct {
	Slot    Slot
	Date    time.Time
	Path    string
	Sources []string
	Lines   int
	Dropped int
}

// Empty reports whether the intermediate file carries no report lines.
func (b SlotBatch) Empty() bool { return b.Lines == 0 }

// EncodeRequest describes one encoder invocation.
type EncodeRequest struct {
	Input   string
	Output  string
	Channel int
}

// EncodeResult is what an encoder invocation left behind. A non-zero
// ExitCode is reported here rather than as an error.
type EncodeResult struct {
	ExitCode     int
	OutputExists bool
	OutputSize   int64
	Stderr       string
}

// Artifact is a validated, non-empty BUFR file waiting in the workspace.
type Artifact struct {
	Slot Slot
	Date time.Time
	Path string
	Size int64
}

// Conversion is the per-slot result of the conversion stage.
type Conversion struct {
	Batch    SlotBatch
	Outcome  Outcome
	Artifact *Artifact
}

// ArchivedArtifact is an artifact moved into the date-partitioned store.
type ArchivedArtifact struct {
	Slot       Slot
	Date       time.Time
	Path       string
	Size       int64
	ArchivedAt time.Time
}
