// camera.go
package renderer

import (
	"CityBuilder/internal/camstate"
	"math"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

type Camera struct {
	// HOT DATA - Accessed every frame for view/projection calculations
	Position   mgl32.Vec3 // Camera position in world space
	Front      mgl32.Vec3 // Forward direction vector
	Up         mgl32.Vec3 // Up direction vector
	Right      mgl32.Vec3 // Right direction vector
	Projection mgl32.Mat4 // Projection matrix
	Pitch      float32    // Pitch angle in degrees
	Yaw        float32    // Yaw angle in degrees

	// COLD DATA - Configuration and input handling, accessed less frequently
	WorldUp      mgl32.Vec3
	Speed        float32
	Sensitivity  float32
	Fov          float32
	Near         float32
	Far          float32
	AspectRatio  float32
	LastX, LastY float32
	InvertMouse  bool
	firstMouse   bool

	// TargetDistance is how far ahead of the camera the saved target sits.
	TargetDistance float32
}

type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
}

type Frustum struct {
	Planes [6]Plane
}

// NewDefaultCamera frames a city district from above and to the south.
func NewDefaultCamera(width, height int32) *Camera {
	camera := Camera{
		Position:       mgl32.Vec3{0, 80, 120},
		Up:             mgl32.Vec3{0, 1, 0},
		WorldUp:        mgl32.Vec3{0, 1, 0},
		Speed:          70,
		Sensitivity:    0.1,
		Fov:            55.0,
		Near:           0.5,
		Far:            5000.0,
		LastX:          float32(width) / 2,
		LastY:          float32(height) / 2,
		AspectRatio:    float32(width) / float32(height),
		firstMouse:     true,
		TargetDistance: 100,
	}
	camera.LookAt(mgl32.Vec3{0, 0, 0})
	camera.UpdateProjection()
	return &camera
}

func (c *Camera) UpdateProjection() {
	c.Projection = mgl32.Perspective(mgl32.DegToRad(c.Fov), c.AspectRatio, c.Near, c.Far)
}

func (c *Camera) SetAspectRatio(aspectRatio float32) {
	c.AspectRatio = aspectRatio
	c.UpdateProjection()
}

func (c *Camera) GetViewProjection() mgl32.Mat4 {
	return c.Projection.Mul4(c.GetViewMatrix())
}

func (c *Camera) GetViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Front), c.Up)
}

func (c *Camera) GetProjectionMatrix() mgl32.Mat4 {
	return c.Projection
}

func (c *Camera) ProcessKeyboard(window *glfw.Window, deltaTime float32) {
	c.Right = c.Front.Cross(c.WorldUp).Normalize()
	velocity := c.Speed * deltaTime

	if window.GetKey(glfw.KeyLeftShift) == glfw.Press || window.GetKey(glfw.KeyRightShift) == glfw.Press {
		velocity *= 2.5
	}
	if window.GetKey(glfw.KeyW) == glfw.Press {
		c.Position = c.Position.Add(c.Front.Mul(velocity))
	}
	if window.GetKey(glfw.KeyS) == glfw.Press {
		c.Position = c.Position.Sub(c.Front.Mul(velocity))
	}
	if window.GetKey(glfw.KeyA) == glfw.Press {
		c.Position = c.Position.Sub(c.Right.Mul(velocity))
	}
	if window.GetKey(glfw.KeyD) == glfw.Press {
		c.Position = c.Position.Add(c.Right.Mul(velocity))
	}
	if window.GetKey(glfw.KeyE) == glfw.Press {
		c.Position = c.Position.Add(c.WorldUp.Mul(velocity))
	}
	if window.GetKey(glfw.KeyQ) == glfw.Press {
		c.Position = c.Position.Sub(c.WorldUp.Mul(velocity))
	}
}

// ProcessMouseMovement turns the camera from a cursor position.
func (c *Camera) ProcessMouseMovement(x, y float32, constrainPitch bool) {
	if c.firstMouse {
		c.LastX, c.LastY = x, y
		c.firstMouse = false
	}
	xoffset := (x - c.LastX) * c.Sensitivity
	yoffset := (c.LastY - y) * c.Sensitivity
	c.LastX, c.LastY = x, y

	c.Yaw += xoffset
	if c.InvertMouse {
		c.Pitch -= yoffset
	} else {
		c.Pitch += yoffset
	}
	if constrainPitch {
		c.Pitch = mgl32.Clamp(c.Pitch, -89.0, 89.0)
	}
	c.updateCameraVectors()
}

// ResetMouse makes the next cursor sample a new drag origin.
func (c *Camera) ResetMouse() {
	c.firstMouse = true
}

// LookAt points the camera at target without moving it.
func (c *Camera) LookAt(target mgl32.Vec3) {
	dir := target.Sub(c.Position)
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, 0, -1}
	}
	dir = dir.Normalize()
	c.Yaw = mgl32.RadToDeg(float32(math.Atan2(float64(dir.Z()), float64(dir.X()))))
	c.Pitch = mgl32.RadToDeg(float32(math.Asin(float64(mgl32.Clamp(dir.Y(), -1, 1)))))
	c.Pitch = mgl32.Clamp(c.Pitch, -89.0, 89.0)
	c.updateCameraVectors()
}

// Target is the point TargetDistance ahead of the camera.
func (c *Camera) Target() mgl32.Vec3 {
	d := c.TargetDistance
	if d <= 0 {
		d = 1
	}
	return c.Position.Add(c.Front.Mul(d))
}

// State captures position and target for persistence.
func (c *Camera) State() camstate.State {
	t := c.Target()
	return camstate.State{
		Position: camstate.Vec3{X: float64(c.Position.X()), Y: float64(c.Position.Y()), Z: float64(c.Position.Z())},
		Target:   camstate.Vec3{X: float64(t.X()), Y: float64(t.Y()), Z: float64(t.Z())},
	}
}

// Restore moves the camera to a saved state.
func (c *Camera) Restore(s camstate.State) {
	c.Position = mgl32.Vec3{float32(s.Position.X), float32(s.Position.Y), float32(s.Position.Z)}
	target := mgl32.Vec3{float32(s.Target.X), float32(s.Target.Y), float32(s.Target.Z)}
	if d := target.Sub(c.Position).Len(); d > 0 {
		c.TargetDistance = d
	}
	c.LookAt(target)
}

func (c *Camera) updateCameraVectors() {
	yawRad := float64(mgl32.DegToRad(c.Yaw))
	pitchRad := float64(mgl32.DegToRad(c.Pitch))

	front := mgl32.Vec3{
		float32(math.Cos(yawRad) * math.Cos(pitchRad)),
		float32(math.Sin(pitchRad)),
		float32(math.Sin(yawRad) * math.Cos(pitchRad)),
	}
	c.Front = front.Normalize()
	c.Right = c.Front.Cross(c.WorldUp).Normalize()
	c.Up = c.Right.Cross(c.Front).Normalize()
}

func (c *Camera) CalculateFrustum() Frustum {
	var frustum Frustum
	vp := c.GetViewProjection()

	frustum.Planes[0] = Plane{Normal: mgl32.Vec3{vp[3] + vp[0], vp[7] + vp[4], vp[11] + vp[8]}, Distance: vp[15] + vp[12]}
	frustum.Planes[1] = Plane{Normal: mgl32.Vec3{vp[3] - vp[0], vp[7] - vp[4], vp[11] - vp[8]}, Distance: vp[15] - vp[12]}
	frustum.Planes[2] = Plane{Normal: mgl32.Vec3{vp[3] + vp[1], vp[7] + vp[5], vp[11] + vp[9]}, Distance: vp[15] + vp[13]}
	frustum.Planes[3] = Plane{Normal: mgl32.Vec3{vp[3] - vp[1], vp[7] - vp[5], vp[11] - vp[9]}, Distance: vp[15] - vp[13]}
	frustum.Planes[4] = Plane{Normal: mgl32.Vec3{vp[3] + vp[2], vp[7] + vp[6], vp[11] + vp[10]}, Distance: vp[15] + vp[14]}
	frustum.Planes[5] = Plane{Normal: mgl32.Vec3{vp[3] - vp[2], vp[7] - vp[6], vp[11] - vp[10]}, Distance: vp[15] - vp[14]}

	for i := 0; i < 6; i++ {
		length := frustum.Planes[i].Normal.Len()
		frustum.Planes[i].Normal = frustum.Planes[i].Normal.Mul(1.0 / length)
		frustum.Planes[i].Distance /= length
	}
	return frustum
}

func (p *Plane) DistanceToPoint(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.Distance
}

func (f *Frustum) IntersectsSphere(center mgl32.Vec3, radius float32) bool {
	for _, plane := range f.Planes {
		if plane.DistanceToPoint(center) < -radius {
			return false
		}
	}
	return true
}
