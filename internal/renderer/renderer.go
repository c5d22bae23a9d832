package renderer

import (
	"CityBuilder/internal/scene"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

var FaceCullingEnabled bool = false
var Debug bool = false
var DepthTestEnabled bool = true

// MaxPointLights is the number of point lights the default shader accepts.
// The ones closest to the camera win.
const MaxPointLights = 8

// Light is the directional key light of a frame. Point lights come from the
// scene graph.
type Light struct {
	Direction       mgl32.Vec3
	Color           mgl32.Vec3
	Intensity       float32
	AmbientStrength float32
}

// CreateSunlight returns a warm light pointing down along dir.
func CreateSunlight(direction mgl32.Vec3) *Light {
	return &Light{
		Direction:       direction.Normalize(),
		Color:           mgl32.Vec3{1.0, 0.95, 0.8},
		Intensity:       1.2,
		AmbientStrength: 0.2,
	}
}

// CreateNightLight is a dim blue key light for neon-lit scenes.
func CreateNightLight() *Light {
	return &Light{
		Direction:       mgl32.Vec3{-0.3, -1, -0.2}.Normalize(),
		Color:           mgl32.Vec3{0.55, 0.6, 0.9},
		Intensity:       0.35,
		AmbientStrength: 0.08,
	}
}

type Render interface {
	Init(width, height int32, window *glfw.Window) error
	Render(root *scene.Node, camera *Camera, light *Light)
	UpdateViewport(width, height int32)
	Stats() Stats
	Cleanup()
}

type Stats struct {
	DrawCalls int
	Meshes    int
	Textures  int
	Instanced int
	Lights    int
	Freed     int
}
