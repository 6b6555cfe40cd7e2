// Package render abstracts the external rendering engine behind two narrow
// interfaces. The generation controller drives them; the exec backend adapts
// a command-line renderer, and the null backend exists for dry runs and tests.
package render

import (
	"context"
	"fmt"

	"github.com/msageha/renderloop/internal/model"
)

// Renderer produces the image artifacts for one view of one scene. A render
// failure is fatal to the run; renderers must not return recoverable errors.
type Renderer interface {
	Render(ctx context.Context, job model.Job) error
}

// Postprocessor converts the raw render output of one view into its final
// dataset form (composited images, annotation inputs). A failure that is
// worth re-randomizing the scene for must be reported as *PostprocessError;
// any other error aborts the run.
type Postprocessor interface {
	Postprocess(ctx context.Context, job model.Job) error
}

// PostprocessError marks a per-scene recoverable failure, typically a
// degenerate or corrupt intermediate artifact. The controller responds by
// discarding the scene and retrying it with fresh randomization, up to the
// configured budget.
type PostprocessError struct {
	Job model.Job
	Err error
}

func (e *PostprocessError) Error() string {
	return fmt.Sprintf("postprocess %s: %v", e.Job.BaseFilename, e.Err)
}

func (e *PostprocessError) Unwrap() error { return e.Err }

// NullRenderer satisfies Renderer without touching the filesystem.
type NullRenderer struct{}

func (NullRenderer) Render(_ context.Context, _ model.Job) error { return nil }

// NullPostprocessor satisfies Postprocessor without doing any work.
type NullPostprocessor struct{}

func (NullPostprocessor) Postprocess(_ context.Context, _ model.Job) error { return nil }
