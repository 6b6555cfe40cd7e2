// Package trajectory generates ordered camera point sequences. All functions
// are pure: given a view count and mode parameters they return exactly that
// many 3D points, in evaluation order. The order is significant, it defines
// the render/view-index pairing.
package trajectory

import (
	"fmt"
	"math/rand"

	"cogentcore.org/core/math32"
)

// Mode selects the point generation strategy.
type Mode string

const (
	ModeRandom          Mode = "random"
	ModeBezier          Mode = "bezier"
	ModeCircle          Mode = "circle"
	ModeWave            Mode = "wave"
	ModePiecewiseLinear Mode = "piecewise_linear"
	ModeViewSphere      Mode = "viewsphere"
)

// DegenerateError reports a mode/parameter combination that cannot produce
// the requested number of valid points. It aborts startup.
type DegenerateError struct {
	Mode   Mode
	Reason string
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("trajectory: degenerate %s parameters: %s", e.Mode, e.Reason)
}

// Circle returns count points uniformly spaced in angle over a full turn on a
// circle embedded in the x,y-plane around center.
func Circle(count int, radius float32, center math32.Vector3) []math32.Vector3 {
	points := make([]math32.Vector3, count)
	for i := range points {
		theta := 2 * math32.Pi * float32(i) / float32(count)
		points[i] = center.Add(math32.Vec3(radius*math32.Cos(theta), radius*math32.Sin(theta), 0))
	}
	return points
}

// Wave returns circle points with a superposed cosine offset along negative
// z. The offset of the first point is always zero: the cosine term is biased
// by -1 so that frequency zero degenerates to a plain circle.
func Wave(count int, radius float32, center math32.Vector3, frequency, amplitude float32) []math32.Vector3 {
	points := make([]math32.Vector3, count)
	for i := range points {
		theta := 2 * math32.Pi * float32(i) / float32(count)
		onCircle := center.Add(math32.Vec3(radius*math32.Cos(theta), radius*math32.Sin(theta), 0))
		offset := math32.Vec3(0, 0, amplitude*(math32.Cos(frequency*theta)-1))
		points[i] = onCircle.Add(offset)
	}
	return points
}

// Bezier returns count points on a cubic curve that starts at p0, is shaped
// by the control points p1 and p2, and bends back towards p0. The curve
// parameter is linearly spaced over [start, stop), endpoint excluded.
func Bezier(count int, p0, p1, p2 math32.Vector3, start, stop float32) []math32.Vector3 {
	points := make([]math32.Vector3, count)
	step := (stop - start) / float32(count)
	for i := range points {
		t := start + float32(i)*step
		u := 1 - t
		points[i] = p0.MulScalar(u * u * u).
			Add(p1.MulScalar(3 * u * u * t)).
			Add(p2.MulScalar(3 * u * t * t)).
			Add(p0.MulScalar(t * t * t))
	}
	return points
}

// PiecewiseLinear samples count points along the polyline through the control
// points, spaced evenly by cumulative segment length. Samples past the end of
// the polyline clamp to the final control point.
func PiecewiseLinear(count int, control []math32.Vector3) ([]math32.Vector3, error) {
	if len(control) < 2 {
		return nil, &DegenerateError{Mode: ModePiecewiseLinear, Reason: "need at least two control points"}
	}

	segments := make([]float32, len(control)-1)
	var total float32
	for i := range segments {
		segments[i] = control[i+1].Sub(control[i]).Length()
		total += segments[i]
	}
	if total == 0 {
		return nil, &DegenerateError{Mode: ModePiecewiseLinear, Reason: "control points coincide"}
	}

	points := make([]math32.Vector3, count)
	step := total / float32(count)
	seg := 0
	var covered float32
	for i := range points {
		target := float32(i) * step
		for seg < len(segments) && target > covered+segments[seg] {
			covered += segments[seg]
			seg++
		}
		if seg >= len(segments) {
			points[i] = control[len(control)-1]
			continue
		}
		frac := float32(0)
		if segments[seg] > 0 {
			frac = (target - covered) / segments[seg]
		}
		points[i] = control[seg].Add(control[seg+1].Sub(control[seg]).MulScalar(frac))
	}
	return points, nil
}

// ViewSphere returns count points near-uniformly distributed over the upper
// unit hemisphere (z >= 0) using an equal-area spiral, then scaled per axis
// and biased by center. A request for a single point returns a single valid
// point.
func ViewSphere(count int, scale, center math32.Vector3) ([]math32.Vector3, error) {
	if count < 1 {
		return nil, &DegenerateError{Mode: ModeViewSphere, Reason: "count must be positive"}
	}

	// Sample the full sphere with twice the point count so that roughly half
	// survive the hemisphere cut, growing the sample size until enough do.
	upper := make([]math32.Vector3, 0, count)
	for n := 2 * count; ; n += count {
		upper = upper[:0]
		for _, p := range spiralSphere(n) {
			if p.Z >= 0 {
				upper = append(upper, p)
			}
			if len(upper) == count {
				break
			}
		}
		if len(upper) == count {
			break
		}
	}

	points := make([]math32.Vector3, count)
	for i, p := range upper {
		points[i] = math32.Vec3(p.X*scale.X, p.Y*scale.Y, p.Z*scale.Z).Add(center)
	}
	return points, nil
}

// spiralSphere distributes n points approximately evenly over the unit
// sphere by walking an equal-area spiral (Rakhmanov et al. construction).
func spiralSphere(n int) []math32.Vector3 {
	if n == 1 {
		return []math32.Vector3{math32.Vec3(0, 0, 1)}
	}
	x := 0.1 + 1.2*float32(n)
	s0 := -1 + 1/float32(n-1)
	ds := (2 - 2/float32(n-1)) / float32(n-1)

	points := make([]math32.Vector3, n)
	for i := range points {
		s := s0 + float32(i)*ds
		a := s * x
		b := math32.Pi / 2 * math32.Copysign(1, s) * (1 - math32.Sqrt(1-math32.Abs(s)))
		points[i] = math32.Vec3(
			math32.Cos(a)*math32.Cos(b),
			math32.Sin(a)*math32.Cos(b),
			math32.Sin(b),
		)
	}
	return points
}

// RandomWalk draws count points independently as start + scale·N(0,1)³. It is
// the only non-deterministic mode; the caller owns the random source so runs
// can be reproduced from a seed.
func RandomWalk(count int, start math32.Vector3, scale float32, rng *rand.Rand) []math32.Vector3 {
	points := make([]math32.Vector3, count)
	for i := range points {
		points[i] = RandomPoint(start, scale, rng)
	}
	return points
}

// RandomPoint draws a single normally distributed point around start. Used to
// re-draw individual points when an occlusion check rejects them.
func RandomPoint(start math32.Vector3, scale float32, rng *rand.Rand) math32.Vector3 {
	return start.Add(math32.Vec3(
		scale*float32(rng.NormFloat64()),
		scale*float32(rng.NormFloat64()),
		scale*float32(rng.NormFloat64()),
	))
}
