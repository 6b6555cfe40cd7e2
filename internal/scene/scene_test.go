package scene

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/renderloop/internal/config"
	"github.com/msageha/renderloop/internal/model"
)

func TestBuildObjectsMaskNames(t *testing.T) {
	objects, err := BuildObjects([]string{"LetterB:2", "Tool:11"})
	require.NoError(t, err)
	require.Len(t, objects, 13)

	assert.Equal(t, "LetterB", objects[0].Ref.ClassName)
	assert.Equal(t, "_0_0", objects[0].Ref.MaskName)
	assert.Equal(t, "_0_1", objects[1].Ref.MaskName)

	// Eleven instances need a two-digit instance width.
	assert.Equal(t, "Tool", objects[2].Ref.ClassName)
	assert.Equal(t, 1, objects[2].Ref.ClassID)
	assert.Equal(t, "_1_00", objects[2].Ref.MaskName)
	assert.Equal(t, "_1_10", objects[12].Ref.MaskName)
}

func TestBuildObjectsRejectsMalformedSpec(t *testing.T) {
	for _, spec := range []string{"LetterB", "LetterB:zero", "LetterB:0"} {
		_, err := BuildObjects([]string{spec})
		assert.Error(t, err, spec)
	}
}

func TestAggregate(t *testing.T) {
	mixed := map[string]bool{"a": true, "b": false}
	assert.True(t, Aggregate(mixed, false))
	assert.False(t, Aggregate(mixed, true))
	assert.False(t, Aggregate(map[string]bool{"a": false}, false))
	assert.True(t, Aggregate(nil, true))
}

func TestRegistryUnknownScenario(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	_, _, err := r.Build("warehouse", nil, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse")
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	assert.Panics(t, func() { r.Register("static", newStatic) })
}

func TestStaticScenarioAlwaysVisible(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	randomizer, oracle, err := r.Build("static", nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	objects, err := BuildObjects([]string{"LetterB:2"})
	require.NoError(t, err)
	h := &Handle{Name: "static", Objects: objects}

	before := objects[0].Pose
	require.NoError(t, randomizer.Randomize(context.Background(), h))
	assert.Equal(t, before, objects[0].Pose)

	visible, err := oracle.TestVisibility(context.Background(), h, model.Pose{Q: model.QuatIdentity()})
	require.NoError(t, err)
	require.Len(t, visible, 2)
	for name, v := range visible {
		assert.True(t, v, name)
	}
}

func TestDropzoneScatterStaysInBox(t *testing.T) {
	cfg := config.New()
	cfg.AddParam("drop_min", []float64{-1, -1, 0}, "")
	cfg.AddParam("drop_max", []float64{1, 1, 0.5}, "")

	randomizer, _, err := newDropzone(cfg, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	objects, err := BuildObjects([]string{"Tool:20"})
	require.NoError(t, err)
	h := &Handle{Name: "dropzone", Objects: objects}
	require.NoError(t, randomizer.Randomize(context.Background(), h))

	for _, obj := range objects {
		p := obj.Pose.T
		assert.GreaterOrEqual(t, p.X, float32(-1))
		assert.LessOrEqual(t, p.X, float32(1))
		assert.GreaterOrEqual(t, p.Z, float32(0))
		assert.LessOrEqual(t, p.Z, float32(0.5))
	}
}

func TestDropzoneFrustum(t *testing.T) {
	_, oracle, err := newDropzone(nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	objects, err := BuildObjects([]string{"Tool:2"})
	require.NoError(t, err)
	// One object on the view axis, one behind the camera.
	objects[0].Pose.T = math32.Vec3(0, 0, 0)
	objects[1].Pose.T = math32.Vec3(0, 0, 4)
	h := &Handle{Name: "dropzone", Objects: objects}

	camera := model.LookAtPose(math32.Vec3(0, 0, 2), math32.Vec3(0, 0, 0))
	visible, err := oracle.TestVisibility(context.Background(), h, camera)
	require.NoError(t, err)
	assert.True(t, visible[objects[0].Ref.Name])
	assert.False(t, visible[objects[1].Ref.Name])
}

func TestDropzoneRejectsBadFOV(t *testing.T) {
	cfg := config.New()
	cfg.AddParam("fov", 200.0, "")
	_, _, err := newDropzone(cfg, rand.New(rand.NewSource(1)))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "fov"))
}
