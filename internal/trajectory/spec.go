package trajectory

import (
	"fmt"
	"math/rand"

	"cogentcore.org/core/math32"

	"github.com/msageha/renderloop/internal/config"
)

// Spec fully describes how to generate one camera point sequence. It is
// derived once from the configuration and immutable for the duration of a
// generation run.
type Spec struct {
	Mode            Mode
	ViewCount       int
	AllowOcclusions bool

	// circle and wave
	Radius    float32
	Center    math32.Vector3
	Frequency float32
	Amplitude float32

	// bezier
	P0, P1, P2  math32.Vector3
	Start, Stop float32

	// piecewise_linear
	Control []math32.Vector3

	// viewsphere
	Scale math32.Vector3

	// random
	WalkStart math32.Vector3
	WalkScale float32
}

// Points evaluates the spec into exactly ViewCount ordered points. Only the
// random mode consumes the random source.
func (s Spec) Points(rng *rand.Rand) ([]math32.Vector3, error) {
	if s.ViewCount < 1 {
		return nil, &DegenerateError{Mode: s.Mode, Reason: "view count must be positive"}
	}
	switch s.Mode {
	case ModeCircle:
		return Circle(s.ViewCount, s.Radius, s.Center), nil
	case ModeWave:
		return Wave(s.ViewCount, s.Radius, s.Center, s.Frequency, s.Amplitude), nil
	case ModeBezier:
		return Bezier(s.ViewCount, s.P0, s.P1, s.P2, s.Start, s.Stop), nil
	case ModePiecewiseLinear:
		return PiecewiseLinear(s.ViewCount, s.Control)
	case ModeViewSphere:
		return ViewSphere(s.ViewCount, s.Scale, s.Center)
	case ModeRandom:
		return RandomWalk(s.ViewCount, s.WalkStart, s.WalkScale, rng), nil
	}
	return nil, &DegenerateError{Mode: s.Mode, Reason: "unknown mode"}
}

// SpecFromConfig derives a Spec from a [multiview_setup] configuration
// subtree. The subtree holds the selected mode plus one nested section per
// mode with its parameters, mirroring the configuration file layout:
//
//	[multiview_setup]
//	mode = circle
//
//	[multiview_setup.circle]
//	radius = 1.5
//	center = 0, 0, 1
func SpecFromConfig(cfg *config.Tree, viewCount int, allowOcclusions bool) (Spec, error) {
	mode := Mode(cfg.String("mode"))
	spec := Spec{
		Mode:            mode,
		ViewCount:       viewCount,
		AllowOcclusions: allowOcclusions,
	}

	params, ok := cfg.Sub(string(mode))
	if !ok {
		params = config.New()
	}

	var err error
	switch mode {
	case ModeCircle:
		spec.Radius = floatOr(params, "radius", 1)
		spec.Center, err = vec3Or(params, "center", math32.Vector3{})
	case ModeWave:
		spec.Radius = floatOr(params, "radius", 1)
		spec.Frequency = floatOr(params, "frequency", 1)
		spec.Amplitude = floatOr(params, "amplitude", 1)
		spec.Center, err = vec3Or(params, "center", math32.Vector3{})
	case ModeBezier:
		spec.Start = floatOr(params, "start", 0)
		spec.Stop = floatOr(params, "stop", 1)
		if spec.P0, err = vec3Or(params, "p0", math32.Vector3{}); err != nil {
			return Spec{}, err
		}
		if spec.P1, err = vec3Or(params, "p1", math32.Vector3{}); err != nil {
			return Spec{}, err
		}
		spec.P2, err = vec3Or(params, "p2", math32.Vector3{})
	case ModePiecewiseLinear:
		spec.Control, err = controlPoints(params)
	case ModeViewSphere:
		spec.Scale, err = vec3Or(params, "scale", math32.Vec3(1, 1, 1))
		if err == nil {
			spec.Center, err = vec3Or(params, "center", math32.Vector3{})
		}
	case ModeRandom:
		spec.WalkScale = floatOr(params, "scale", 1)
		spec.WalkStart, err = vec3Or(params, "base", math32.Vector3{})
	default:
		return Spec{}, &DegenerateError{Mode: mode, Reason: "unknown mode"}
	}
	if err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func floatOr(cfg *config.Tree, key string, def float32) float32 {
	if _, ok := cfg.Get(key); !ok {
		return def
	}
	return float32(cfg.Float(key))
}

// vec3Or reads a 3-element float list; a single scalar is broadcast to all
// three axes, matching the original camera scale/bias handling.
func vec3Or(cfg *config.Tree, key string, def math32.Vector3) (math32.Vector3, error) {
	if _, ok := cfg.Get(key); !ok {
		return def, nil
	}
	vals := cfg.Floats(key)
	switch len(vals) {
	case 1:
		v := float32(vals[0])
		return math32.Vec3(v, v, v), nil
	case 3:
		return math32.Vec3(float32(vals[0]), float32(vals[1]), float32(vals[2])), nil
	}
	return math32.Vector3{}, fmt.Errorf("trajectory: %q needs 1 or 3 elements, got %d", key, len(vals))
}

// controlPoints reads a flat comma-separated float list whose length must be
// a multiple of three.
func controlPoints(cfg *config.Tree) ([]math32.Vector3, error) {
	vals := cfg.Floats("control_points")
	if len(vals)%3 != 0 {
		return nil, &DegenerateError{
			Mode:   ModePiecewiseLinear,
			Reason: fmt.Sprintf("control_points length %d is not a multiple of 3", len(vals)),
		}
	}
	points := make([]math32.Vector3, len(vals)/3)
	for i := range points {
		points[i] = math32.Vec3(float32(vals[3*i]), float32(vals[3*i+1]), float32(vals[3*i+2]))
	}
	return points, nil
}
