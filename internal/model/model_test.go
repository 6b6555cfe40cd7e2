package model

import (
	"encoding/json"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatWidth(t *testing.T) {
	assert.Equal(t, 1, FormatWidth(1))
	assert.Equal(t, 1, FormatWidth(3))
	assert.Equal(t, 1, FormatWidth(10))
	assert.Equal(t, 2, FormatWidth(11))
	assert.Equal(t, 2, FormatWidth(100))
	assert.Equal(t, 3, FormatWidth(101))
}

func TestBaseFilename(t *testing.T) {
	assert.Equal(t, "s0_v0", BaseFilename(0, 3, 0, 2))
	assert.Equal(t, "s2_v1", BaseFilename(2, 3, 1, 2))
	assert.Equal(t, "s007_v04", BaseFilename(7, 150, 4, 20))
}

func TestQuaternionJSONOrder(t *testing.T) {
	q := Quaternion{W: 1, X: 0.5, Y: -0.25, Z: 0.125}
	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 0.5, -0.25, 0.125]`, string(data))

	var back Quaternion
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, q, back)
}

func TestLookAtPoseFacesTarget(t *testing.T) {
	eye := math32.Vec3(2, 0, 0)
	p := LookAtPose(eye, math32.Vec3(0, 0, 0))
	assert.Equal(t, eye, p.T)

	// the quaternion must be unit length
	q := p.Q
	norm := q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z
	assert.InDelta(t, 1.0, float64(norm), 1e-5)
}

func TestLookAtPoseDegenerateDirection(t *testing.T) {
	eye := math32.Vec3(1, 2, 3)
	p := LookAtPose(eye, eye)
	assert.Equal(t, QuatIdentity(), p.Q)

	// straight down the world up axis must not produce NaNs
	p = LookAtPose(math32.Vec3(0, 0, 5), math32.Vec3(0, 0, 0))
	for _, v := range []float32{p.Q.W, p.Q.X, p.Q.Y, p.Q.Z} {
		assert.False(t, math32.IsNaN(v), "quaternion must not contain NaN")
	}
}

func TestPhaseTransitions(t *testing.T) {
	require.NoError(t, ValidatePhaseTransition(PhaseIdle, PhaseTrajectoryDerivation))
	require.NoError(t, ValidatePhaseTransition(PhaseTrajectoryDerivation, PhaseSceneIteration))
	require.NoError(t, ValidatePhaseTransition(PhaseSceneIteration, PhaseViewIteration))
	require.NoError(t, ValidatePhaseTransition(PhaseViewIteration, PhaseSceneIteration))
	require.NoError(t, ValidatePhaseTransition(PhaseSceneIteration, PhaseDone))
	require.NoError(t, ValidatePhaseTransition(PhaseViewIteration, PhaseFatalAbort))

	assert.Error(t, ValidatePhaseTransition(PhaseIdle, PhaseViewIteration))
	assert.Error(t, ValidatePhaseTransition(PhaseDone, PhaseSceneIteration))
	assert.Error(t, ValidatePhaseTransition(PhaseFatalAbort, PhaseIdle))
}
