package merge

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInsufficientSelection is returned when fewer than two files are
	// selected. Nothing is started.
	ErrInsufficientSelection = errors.New("at least 2 PDF files are required")
	// ErrInProgress is returned when the pipeline is already merging.
	ErrInProgress = errors.New("a merge is already in progress")
	// ErrBusy is returned when every merge slot of the process is taken.
	ErrBusy = errors.New("too many merges running")
)

// Stage names the step a ProcessingError happened in.
type Stage string

const (
	StageRead     Stage = "read"
	StageParse    Stage = "parse"
	StageCopy     Stage = "copy"
	StageSave     Stage = "save"
	StageDeliver  Stage = "deliver"
	StageCanceled Stage = "cancel"
)

// ProcessingError aborts a merge session. Index is 1-based and zero for
// stages that do not belong to one input.
type ProcessingError struct {
	Index int
	Name  string
	Stage Stage
	Err   error
}

func (e *ProcessingError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Name, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
