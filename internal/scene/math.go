package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// EulerToQuat converts XYZ-ordered Euler angles in radians to a quaternion.
func EulerToQuat(x, y, z float32) mgl32.Quat {
	return mgl32.AnglesToQuat(x, y, z, mgl32.XYZ).Normalize()
}

// Compose builds a transform matrix as translation * rotation * scale.
func Compose(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) mgl32.Mat4 {
	t := mgl32.Translate3D(position.X(), position.Y(), position.Z())
	r := rotation.Normalize().Mat4()
	s := mgl32.Scale3D(scale.X(), scale.Y(), scale.Z())
	return t.Mul4(r).Mul4(s)
}

// Decompose splits a TRS matrix back into position, rotation and scale.
// A matrix with any zero scale axis yields the identity rotation.
func Decompose(m mgl32.Mat4) (mgl32.Vec3, mgl32.Quat, mgl32.Vec3) {
	position := m.Col(3).Vec3()

	sx := m.Col(0).Vec3().Len()
	sy := m.Col(1).Vec3().Len()
	sz := m.Col(2).Vec3().Len()
	if m.Det() < 0 {
		sx = -sx
	}
	scale := mgl32.Vec3{sx, sy, sz}

	if sx == 0 || sy == 0 || sz == 0 {
		return position, mgl32.QuatIdent(), scale
	}

	var r mgl32.Mat4
	c0 := m.Col(0).Vec3().Mul(1 / sx)
	c1 := m.Col(1).Vec3().Mul(1 / sy)
	c2 := m.Col(2).Vec3().Mul(1 / sz)
	r.SetCol(0, c0.Vec4(0))
	r.SetCol(1, c1.Vec4(0))
	r.SetCol(2, c2.Vec4(0))
	r.SetCol(3, mgl32.Vec4{0, 0, 0, 1})

	return position, mgl32.Mat4ToQuat(r).Normalize(), scale
}

// SameRotation reports whether two quaternions describe the same rotation
// within tolerance, treating q and -q as equal.
func SameRotation(a, b mgl32.Quat, tolerance float32) bool {
	d := a.Dot(b)
	if d < 0 {
		d = -d
	}
	return 1-d <= tolerance
}
