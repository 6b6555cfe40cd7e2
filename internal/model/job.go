// Package model defines the data structures shared across the generation
// pipeline: jobs, poses, annotation records, and the controller phase machine.
package model

import (
	"fmt"
	"math"
)

// Job identifies exactly one unit of render work: a single view of a single
// scene through a single camera. Jobs are values computed deterministically
// from the iteration indices and discarded after dispatch.
type Job struct {
	SceneIndex int
	ViewIndex  int
	Camera     string
	CameraPose Pose
	// BaseFilename is shared by renderer and postprocessor so that all
	// per-view artifacts (image, mask, depth, annotation) differ only in
	// extension or suffix.
	BaseFilename string
}

// NewJob builds the job for a scene/view pair. Zero-padding widths derive
// from the total scene and view counts.
func NewJob(sceneIndex, sceneCount, viewIndex, viewCount int, camera string, pose Pose) Job {
	return Job{
		SceneIndex:   sceneIndex,
		ViewIndex:    viewIndex,
		Camera:       camera,
		CameraPose:   pose,
		BaseFilename: BaseFilename(sceneIndex, sceneCount, viewIndex, viewCount),
	}
}

// BaseFilename formats "s{scene}_v{view}" with both indices zero-padded to
// the width of their respective counts.
func BaseFilename(sceneIndex, sceneCount, viewIndex, viewCount int) string {
	return fmt.Sprintf("s%0*d_v%0*d",
		FormatWidth(sceneCount), sceneIndex,
		FormatWidth(viewCount), viewIndex)
}

// FormatWidth returns the zero-padding width for indices below n,
// ceil(log10(n)). Counts of one or less still occupy a single digit.
func FormatWidth(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log10(float64(n))))
}
