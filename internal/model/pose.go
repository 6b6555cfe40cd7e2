package model

import (
	"encoding/json"

	"cogentcore.org/core/math32"
)

// Quaternion is a rotation in WXYZ order. The wire format everywhere in the
// dataset is the array [w, x, y, z].
type Quaternion struct {
	W, X, Y, Z float32
}

// MarshalJSON writes the quaternion as a [w,x,y,z] array.
func (q Quaternion) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float32{q.W, q.X, q.Y, q.Z})
}

// UnmarshalJSON reads a [w,x,y,z] array.
func (q *Quaternion) UnmarshalJSON(data []byte) error {
	var a [4]float32
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	q.W, q.X, q.Y, q.Z = a[0], a[1], a[2], a[3]
	return nil
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quaternion {
	return Quaternion{W: 1}
}

// Pose is a rigid transform: rotation as a WXYZ quaternion and translation.
type Pose struct {
	Q Quaternion      `json:"q"`
	T math32.Vector3  `json:"t"`
}

// MarshalJSON writes the pose with the translation as a [x,y,z] array.
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Q Quaternion `json:"q"`
		T [3]float32 `json:"t"`
	}{p.Q, [3]float32{p.T.X, p.T.Y, p.T.Z}})
}

// UnmarshalJSON reads the array-based pose representation.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var raw struct {
		Q Quaternion `json:"q"`
		T [3]float32 `json:"t"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Q = raw.Q
	p.T = math32.Vec3(raw.T[0], raw.T[1], raw.T[2])
	return nil
}

// LookAtPose places a camera at eye oriented towards target. The camera
// convention is the host engine's: the view axis is -Z and +Y is up. When eye
// and target coincide along the world up axis a fallback up vector keeps the
// basis non-degenerate.
func LookAtPose(eye, target math32.Vector3) Pose {
	worldUp := math32.Vec3(0, 0, 1)
	fwd := target.Sub(eye)
	if fwd.Length() == 0 {
		return Pose{Q: QuatIdentity(), T: eye}
	}
	fwd = fwd.Normal()
	if math32.Abs(fwd.Dot(worldUp)) > 0.9999 {
		worldUp = math32.Vec3(0, 1, 0)
	}
	right := fwd.Cross(worldUp).Normal()
	up := right.Cross(fwd)
	// column basis: x=right, y=up, z=-forward
	return Pose{
		Q: quatFromBasis(right, up, fwd.Negate()),
		T: eye,
	}
}

// quatFromBasis converts a rotation matrix given as three orthonormal column
// vectors to a WXYZ quaternion (Shepperd's method).
func quatFromBasis(x, y, z math32.Vector3) Quaternion {
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	trace := m00 + m11 + m22
	var q Quaternion
	switch {
	case trace > 0:
		s := math32.Sqrt(trace+1) * 2
		q.W = s / 4
		q.X = (m21 - m12) / s
		q.Y = (m02 - m20) / s
		q.Z = (m10 - m01) / s
	case m00 > m11 && m00 > m22:
		s := math32.Sqrt(1+m00-m11-m22) * 2
		q.W = (m21 - m12) / s
		q.X = s / 4
		q.Y = (m01 + m10) / s
		q.Z = (m02 + m20) / s
	case m11 > m22:
		s := math32.Sqrt(1+m11-m00-m22) * 2
		q.W = (m02 - m20) / s
		q.X = (m01 + m10) / s
		q.Y = s / 4
		q.Z = (m12 + m21) / s
	default:
		s := math32.Sqrt(1+m22-m00-m11) * 2
		q.W = (m10 - m01) / s
		q.X = (m02 + m20) / s
		q.Y = (m12 + m21) / s
		q.Z = s / 4
	}
	return q
}

// QuatFromEuler builds a WXYZ quaternion from XYZ euler angles in radians,
// applied in x, y, z order.
func QuatFromEuler(x, y, z float32) Quaternion {
	cx, sx := math32.Cos(x/2), math32.Sin(x/2)
	cy, sy := math32.Cos(y/2), math32.Sin(y/2)
	cz, sz := math32.Cos(z/2), math32.Sin(z/2)
	return Quaternion{
		W: cx*cy*cz + sx*sy*sz,
		X: sx*cy*cz - cx*sy*sz,
		Y: cx*sy*cz + sx*cy*sz,
		Z: cx*cy*sz - sx*sy*cz,
	}
}

// Rotate applies the rotation to a vector.
func (q Quaternion) Rotate(v math32.Vector3) math32.Vector3 {
	// v' = v + 2*qv × (qv × v + w*v)
	qv := math32.Vec3(q.X, q.Y, q.Z)
	t := qv.Cross(v).MulScalar(2)
	return v.Add(t.MulScalar(q.W)).Add(qv.Cross(t))
}

// ToOpenCV converts a pose from the OpenGL convention (x right, y up, z
// backwards) to the OpenCV convention (x right, y down, z forwards) by
// flipping the y and z axes.
func (p Pose) ToOpenCV() Pose {
	return Pose{
		Q: Quaternion{W: p.Q.W, X: p.Q.X, Y: -p.Q.Y, Z: -p.Q.Z},
		T: math32.Vec3(p.T.X, -p.T.Y, -p.T.Z),
	}
}
