package rag

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a failure occurred in. Callers use it to
// tell "provider down" from "corrupted storage" from "nothing indexed".
type Stage string

const (
	StageExtract  Stage = "extract"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageSearch   Stage = "search"
	StageAssemble Stage = "assemble"
	StageGenerate Stage = "generate"
	StageStore    Stage = "store"
)

// PipelineError tags a failure with the stage it happened in. No stage
// is retried; the error aborts the current operation.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &PipelineError{Stage: stage, Err: err}
}

// ErrNoContext signals an empty index or a search with zero hits. The
// query path maps it to a refused answer rather than surfacing it.
var ErrNoContext = errors.New("no context available")
