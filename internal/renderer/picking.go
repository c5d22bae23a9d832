package renderer

import (
	"CityBuilder/internal/scene"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray represents a ray in 3D space
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// At returns the point t units along the ray.
func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Hit is the result of a successful pick.
type Hit struct {
	Node       *scene.Node
	InstanceID string
	Distance   float32
	Point      mgl32.Vec3
}

// RayIntersectBox tests a ray against an axis-aligned box with the slab method.
// The distance is zero when the origin is inside the box.
func RayIntersectBox(ray Ray, lo, hi mgl32.Vec3) (bool, float32) {
	tmin := float32(math.Inf(-1))
	tmax := float32(math.Inf(1))
	for a := 0; a < 3; a++ {
		o, d := ray.Origin[a], ray.Direction[a]
		if d == 0 {
			if o < lo[a] || o > hi[a] {
				return false, 0
			}
			continue
		}
		t1 := (lo[a] - o) / d
		t2 := (hi[a] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return false, 0
		}
	}
	if tmax < 0 {
		return false, 0
	}
	if tmin < 0 {
		return true, 0
	}
	return true, tmin
}

// RayIntersectTriangle tests if a ray intersects a triangle
// Returns: (intersected, distance, intersection point)
// Uses Möller-Trumbore algorithm
func RayIntersectTriangle(ray Ray, v0, v1, v2 mgl32.Vec3) (bool, float32, mgl32.Vec3) {
	const epsilon = 0.0000001

	edge1 := v1.Sub(v0)
	edge2 := v2.Sub(v0)
	h := ray.Direction.Cross(edge2)
	a := edge1.Dot(h)
	if a > -epsilon && a < epsilon {
		return false, 0, mgl32.Vec3{}
	}

	f := 1.0 / a
	s := ray.Origin.Sub(v0)
	u := f * s.Dot(h)
	if u < 0.0 || u > 1.0 {
		return false, 0, mgl32.Vec3{}
	}

	q := s.Cross(edge1)
	v := f * ray.Direction.Dot(q)
	if v < 0.0 || u+v > 1.0 {
		return false, 0, mgl32.Vec3{}
	}

	t := f * edge2.Dot(q)
	if t > epsilon {
		return true, t, ray.At(t)
	}
	return false, 0, mgl32.Vec3{}
}

// ScreenToRay converts a cursor position in window pixels to a world space ray
func ScreenToRay(camera *Camera, screenX, screenY float32, windowWidth, windowHeight int) Ray {
	ndcX := 2.0*screenX/float32(windowWidth) - 1.0
	ndcY := 1.0 - 2.0*screenY/float32(windowHeight)

	eye := camera.Projection.Inv().Mul4x1(mgl32.Vec4{ndcX, ndcY, -1.0, 1.0})
	eye = mgl32.Vec4{eye.X(), eye.Y(), -1.0, 0.0}

	worldDir := camera.GetViewMatrix().Inv().Mul4x1(eye).Vec3().Normalize()
	return Ray{Origin: camera.Position, Direction: worldDir}
}

// Pick returns the nearest placed instance under the ray. Placed instances
// are the visible nodes tagged with an instanceId; their whole subtree counts
// towards the hit box.
func Pick(root *scene.Node, ray Ray) (Hit, bool) {
	var best Hit
	found := false
	var walk func(n *scene.Node)
	walk = func(n *scene.Node) {
		if !n.Visible {
			return
		}
		if id, ok := n.UserData["instanceId"].(string); ok && id != "" {
			if lo, hi, ok := n.WorldBoundingBox(); ok {
				if hit, t := RayIntersectBox(ray, lo, hi); hit && (!found || t < best.Distance) {
					best = Hit{Node: n, InstanceID: id, Distance: t, Point: ray.At(t)}
					found = true
				}
			}
			return
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return best, found
}
