// Package scene defines the contracts between the generation controller and
// the external scene state: the randomizer that mutates object poses, the
// visibility oracle that gates camera placements, and the scenario registry
// that maps configuration names to constructors.
package scene

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/msageha/renderloop/internal/model"
)

// ObjectRef identifies one target object instance. MaskName is the suffix
// used by the compositor to address the object's stencil mask.
type ObjectRef struct {
	ClassName string
	ClassID   int
	Name      string
	ID        int
	MaskName  string
}

// Object pairs an object reference with its current world pose.
type Object struct {
	Ref  ObjectRef
	Pose model.Pose
}

// Handle is an explicit reference to the mutable scene state. Exactly one
// handle exists per run; it is passed into every collaborator call instead of
// living in a process global. The controller never mutates it directly.
type Handle struct {
	Name    string
	Objects []*Object
}

// Randomizer mutates the pose of every target object within its configured
// drop region and advances any physics or time simulation. Implementations
// may be a no-op for static scenes.
type Randomizer interface {
	Randomize(ctx context.Context, h *Handle) error
}

// VisibilityOracle reports, for a single camera pose, whether each target
// object is unoccluded and within frame bounds.
type VisibilityOracle interface {
	TestVisibility(ctx context.Context, h *Handle, camera model.Pose) (map[string]bool, error)
}

// Aggregate folds a per-object visibility result into a single verdict.
// With requireAll set every object must be visible; otherwise one visible
// object suffices.
func Aggregate(perObject map[string]bool, requireAll bool) bool {
	if len(perObject) == 0 {
		return true
	}
	any := false
	for _, visible := range perObject {
		if requireAll && !visible {
			return false
		}
		any = any || visible
	}
	if requireAll {
		return true
	}
	return any
}

// BuildObjects expands target object specs of the form "ClassName:count"
// into object instances. Mask names follow the compositor convention
// "_C_I" where C is the class id and I the instance id, each zero-padded to
// the width required by the respective counts.
func BuildObjects(specs []string) ([]*Object, error) {
	type class struct {
		name  string
		count int
	}
	classes := make([]class, 0, len(specs))
	for _, spec := range specs {
		name, countStr, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("scene: target object %q: expected ClassName:count", spec)
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count < 1 {
			return nil, fmt.Errorf("scene: target object %q: invalid instance count", spec)
		}
		classes = append(classes, class{name: strings.TrimSpace(name), count: count})
	}

	classWidth := model.FormatWidth(len(classes))
	var objects []*Object
	for classID, c := range classes {
		instWidth := model.FormatWidth(c.count)
		for id := 0; id < c.count; id++ {
			objects = append(objects, &Object{
				Ref: ObjectRef{
					ClassName: c.name,
					ClassID:   classID,
					Name:      fmt.Sprintf("%s.%03d", c.name, id),
					ID:        id,
					MaskName:  fmt.Sprintf("_%0*d_%0*d", classWidth, classID, instWidth, id),
				},
				Pose: model.Pose{Q: model.QuatIdentity()},
			})
		}
	}
	return objects, nil
}
