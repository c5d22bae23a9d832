package renderer

import (
	"CityBuilder/internal/camstate"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func assertVec(t *testing.T, want, got mgl32.Vec3, delta float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], got[i], delta, "component %d of %v", i, got)
	}
}

func TestNewDefaultCamera(t *testing.T) {
	cam := NewDefaultCamera(800, 600)

	assert.NotEqual(t, mgl32.Vec3{}, cam.Position)
	assert.Greater(t, cam.Speed, float32(0))
	assert.Greater(t, cam.Sensitivity, float32(0))
	assert.InDelta(t, 800.0/600.0, cam.AspectRatio, 1e-6)
	assertVec(t, cam.Position.Mul(-1).Normalize(), cam.Front, 1e-4)
}

func TestCameraGetViewMatrix(t *testing.T) {
	cam := NewDefaultCamera(800, 600)
	cam.Position = mgl32.Vec3{0, 0, 5}
	cam.Front = mgl32.Vec3{0, 0, -1}
	cam.Up = mgl32.Vec3{0, 1, 0}

	view := cam.GetViewMatrix()
	assert.Equal(t, float32(1), view.At(3, 3))
	assertVec(t, mgl32.Vec3{0, 0, -5}, view.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3(), 1e-5)
}

func TestCameraGetProjectionMatrix(t *testing.T) {
	cam := NewDefaultCamera(800, 600)
	assert.Equal(t, float32(0), cam.GetProjectionMatrix().At(3, 3))

	before := cam.Projection
	cam.SetAspectRatio(2)
	assert.NotEqual(t, before, cam.Projection)
}

func TestCameraUpdateVectors(t *testing.T) {
	cam := NewDefaultCamera(800, 600)
	cam.Yaw = -90
	cam.Pitch = 0
	cam.updateCameraVectors()

	assert.InDelta(t, 1.0, float64(cam.Front.Len()), 0.01)
	assertVec(t, mgl32.Vec3{0, 0, -1}, cam.Front, 1e-5)
	assertVec(t, mgl32.Vec3{1, 0, 0}, cam.Right, 1e-5)
}

func TestCameraLookAt(t *testing.T) {
	cam := NewDefaultCamera(800, 600)
	cam.Position = mgl32.Vec3{10, 0, 0}
	cam.LookAt(mgl32.Vec3{10, 0, 20})

	assert.InDelta(t, 90, cam.Yaw, 1e-4)
	assert.InDelta(t, 0, cam.Pitch, 1e-4)
	assertVec(t, mgl32.Vec3{0, 0, 1}, cam.Front, 1e-5)

	// Straight down is clamped short of the pole.
	cam.LookAt(mgl32.Vec3{10, -50, 0})
	assert.InDelta(t, -89, cam.Pitch, 1e-4)
}

func TestCameraMouseMovement(t *testing.T) {
	cam := NewDefaultCamera(800, 600)
	cam.Yaw, cam.Pitch = 0, 0

	cam.ProcessMouseMovement(400, 300, true) // first sample only records the cursor
	assert.Zero(t, cam.Yaw)

	cam.ProcessMouseMovement(500, 300, true)
	assert.InDelta(t, 10, cam.Yaw, 1e-4)

	cam.ProcessMouseMovement(500, -10000, true)
	assert.Equal(t, float32(89), cam.Pitch)

	cam.InvertMouse = true
	cam.ProcessMouseMovement(500, -9990, true)
	assert.InDelta(t, 89, cam.Pitch, 1e-4)
}

func TestCameraStateRoundTrip(t *testing.T) {
	cam := NewDefaultCamera(800, 600)
	cam.Restore(camstate.State{
		Position: camstate.Vec3{X: 10, Y: 20, Z: 30},
		Target:   camstate.Vec3{X: 10, Y: 0, Z: 0},
	})

	assertVec(t, mgl32.Vec3{10, 20, 30}, cam.Position, 1e-6)
	assert.InDelta(t, math.Sqrt(20*20+30*30), cam.TargetDistance, 1e-4)

	s := cam.State()
	assert.InDelta(t, 10, s.Target.X, 1e-3)
	assert.InDelta(t, 0, s.Target.Y, 1e-3)
	assert.InDelta(t, 0, s.Target.Z, 1e-3)
	assert.Equal(t, 30.0, s.Position.Z)
}

func TestFrustumIntersectsSphere(t *testing.T) {
	cam := NewDefaultCamera(800, 600)
	cam.Position = mgl32.Vec3{0, 0, 10}
	cam.LookAt(mgl32.Vec3{0, 0, 0})

	f := cam.CalculateFrustum()
	assert.True(t, f.IntersectsSphere(mgl32.Vec3{0, 0, 0}, 1))
	assert.False(t, f.IntersectsSphere(mgl32.Vec3{0, 0, 50}, 1), "behind the camera")
	assert.False(t, f.IntersectsSphere(mgl32.Vec3{1000, 0, 0}, 1))
}
