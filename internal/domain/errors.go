package domain

import "errors"

// Fatal run errors. Every one of them aborts the run with exit status 1.
// Stages wrap them with context; callers match with errors.Is.
var (
	ErrDataUnavailable = errors.New("observation data unavailable")
	ErrPrerequisite    = errors.New("missing prerequisite")
	ErrEncoderFailed   = errors.New("encoder failed")
	ErrArchive         = errors.New("archive failed")
	ErrWorkspaceBusy   = errors.New("workspace is in use by another run")
	ErrCleanup         = errors.New("workspace cleanup failed")
)
