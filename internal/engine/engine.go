// Package engine defines the contract between the worker pipeline and the
// external processing step applied to a job's input, plus a subprocess-based
// implementation of it.
package engine

import (
	"context"

	"github.com/phrazzld/jobpipe/internal/domain"
)

// JobContext describes the job an engine is processing.
type JobContext struct {
	JobID       string
	Input       domain.Locator
	ContentType string
}

// Engine turns a job's input into zero or more named artifacts. Run may take
// minutes. A returned error is recorded as the job's failure cause.
type Engine interface {
	Run(ctx context.Context, input []byte, jc JobContext) ([]domain.Artifact, error)
}

// Func adapts a plain function to the Engine interface.
type Func func(ctx context.Context, input []byte, jc JobContext) ([]domain.Artifact, error)

// Run implements Engine.
func (f Func) Run(ctx context.Context, input []byte, jc JobContext) ([]domain.Artifact, error) {
	return f(ctx, input, jc)
}
