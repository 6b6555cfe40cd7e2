package scene

import (
	"context"
	"fmt"
	"math/rand"

	"cogentcore.org/core/math32"

	"github.com/msageha/renderloop/internal/config"
	"github.com/msageha/renderloop/internal/model"
)

// static is the trivial scenario: objects keep their authored poses and are
// always reported visible. Useful for smoke runs and single-object tabletop
// datasets where occlusion cannot occur.
type static struct{}

func newStatic(_ *config.Tree, _ *rand.Rand) (Randomizer, VisibilityOracle, error) {
	return static{}, static{}, nil
}

func (static) Randomize(_ context.Context, _ *Handle) error { return nil }

func (static) TestVisibility(_ context.Context, h *Handle, _ model.Pose) (map[string]bool, error) {
	result := make(map[string]bool, len(h.Objects))
	for _, obj := range h.Objects {
		result[obj.Ref.Name] = true
	}
	return result, nil
}

// dropzone scatters objects uniformly inside an axis-aligned box with a
// random orientation, and approximates visibility with a frustum test
// against the camera's field of view. Occlusion between objects is not
// modeled; a render backend with a real depth pass should supply its own
// oracle instead.
type dropzone struct {
	min, max math32.Vector3
	tanX     float32
	tanY     float32
	rng      *rand.Rand
}

func newDropzone(cfg *config.Tree, rng *rand.Rand) (Randomizer, VisibilityOracle, error) {
	d := &dropzone{
		min: math32.Vec3(-0.5, -0.5, 0),
		max: math32.Vec3(0.5, 0.5, 0.3),
		rng: rng,
	}
	if cfg != nil {
		var err error
		if d.min, err = boxCorner(cfg, "drop_min", d.min); err != nil {
			return nil, nil, err
		}
		if d.max, err = boxCorner(cfg, "drop_max", d.max); err != nil {
			return nil, nil, err
		}
	}
	fov := float32(60)
	aspect := float32(4.0 / 3.0)
	if cfg != nil && cfg.Has("fov") {
		fov = float32(cfg.Float("fov"))
	}
	if cfg != nil && cfg.Has("aspect") {
		aspect = float32(cfg.Float("aspect"))
	}
	if fov <= 0 || fov >= 180 {
		return nil, nil, fmt.Errorf("scene: dropzone fov %v out of range (0, 180)", fov)
	}
	d.tanX = math32.Tan(math32.DegToRad(fov) / 2)
	d.tanY = d.tanX / aspect
	return d, d, nil
}

func boxCorner(cfg *config.Tree, key string, fallback math32.Vector3) (math32.Vector3, error) {
	if !cfg.Has(key) {
		return fallback, nil
	}
	vals := cfg.Floats(key)
	if len(vals) != 3 {
		return math32.Vector3{}, fmt.Errorf("scene: dropzone %s wants 3 components, got %d", key, len(vals))
	}
	return math32.Vec3(float32(vals[0]), float32(vals[1]), float32(vals[2])), nil
}

func (d *dropzone) Randomize(ctx context.Context, h *Handle) error {
	for _, obj := range h.Objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj.Pose.T = math32.Vec3(
			d.uniform(d.min.X, d.max.X),
			d.uniform(d.min.Y, d.max.Y),
			d.uniform(d.min.Z, d.max.Z),
		)
		obj.Pose.Q = model.QuatFromEuler(
			float32(d.rng.Float64())*2*math32.Pi,
			float32(d.rng.Float64())*2*math32.Pi,
			float32(d.rng.Float64())*2*math32.Pi,
		)
	}
	return nil
}

func (d *dropzone) uniform(lo, hi float32) float32 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + float32(d.rng.Float64())*(hi-lo)
}

func (d *dropzone) TestVisibility(_ context.Context, h *Handle, camera model.Pose) (map[string]bool, error) {
	// The camera looks down its local -Z axis. Transform each object center
	// into the camera frame and test against the half-angle tangents.
	conj := model.Quaternion{W: camera.Q.W, X: -camera.Q.X, Y: -camera.Q.Y, Z: -camera.Q.Z}
	result := make(map[string]bool, len(h.Objects))
	for _, obj := range h.Objects {
		local := conj.Rotate(obj.Pose.T.Sub(camera.T))
		if local.Z >= 0 {
			result[obj.Ref.Name] = false
			continue
		}
		depth := -local.Z
		result[obj.Ref.Name] = math32.Abs(local.X) <= d.tanX*depth &&
			math32.Abs(local.Y) <= d.tanY*depth
	}
	return result, nil
}
