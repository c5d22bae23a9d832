// Package engine runs the interactive window around a city scene.
package engine

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/renderer"
	"CityBuilder/internal/scene"
	"context"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"
)

// Viewer owns the window, the render loop and the camera. The scene graph is
// only touched on the render thread; other goroutines hand work over with Post.
type Viewer struct {
	Width             int32
	Height            int32
	Title             string
	Scene             *scene.Scene
	Light             *renderer.Light
	Camera            *renderer.Camera
	EnableCameraInput bool

	// OnPick runs on the render thread when a left click hits a placed instance.
	OnPick func(renderer.Hit)
	// OnFrame runs after every rendered frame.
	OnFrame func(deltaTime float64)

	rendererAPI renderer.Render
	window      *glfw.Window
	tasks       chan func()
}

func NewViewer(s *scene.Scene, width, height int32) *Viewer {
	return &Viewer{
		Width:             width,
		Height:            height,
		Title:             "City Builder",
		Scene:             s,
		Light:             renderer.CreateNightLight(),
		Camera:            renderer.NewDefaultCamera(width, height),
		EnableCameraInput: true,
		rendererAPI:       renderer.NewOpenGLRenderer(),
		tasks:             make(chan func(), 1024),
	}
}

// Post queues fn to run on the render thread before the next frame. It
// blocks while the queue is full and gives up when ctx is done.
func (v *Viewer) Post(ctx context.Context, fn func()) error {
	select {
	case v.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Viewer) runTasks() int {
	n := 0
	for {
		select {
		case fn := <-v.tasks:
			fn()
			n++
		default:
			return n
		}
	}
}

// Run opens the window and renders until it is closed or ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := glfw.Init(); err != nil {
		logger.Log.Error("Could not initialize glfw", zap.Error(err))
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Decorated, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.DepthBits, 32)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(int(v.Width), int(v.Height), v.Title, nil, nil)
	if err != nil {
		logger.Log.Error("Could not create glfw window", zap.Error(err))
		return err
	}
	v.window = window
	window.MakeContextCurrent()

	if err := v.rendererAPI.Init(v.Width, v.Height, window); err != nil {
		return err
	}
	defer v.rendererAPI.Cleanup()

	window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	window.SetCursorPosCallback(v.mouseCallback)
	window.SetMouseButtonCallback(v.mouseButtonCallback)

	logger.Log.Info("Viewer started", zap.Int32("width", v.Width), zap.Int32("height", v.Height))
	v.renderLoop(ctx)
	logger.Log.Info("Viewer closed", zap.Any("stats", v.rendererAPI.Stats()))
	return nil
}

func (v *Viewer) renderLoop(ctx context.Context) {
	lastTime := glfw.GetTime()
	for !v.window.ShouldClose() {
		if ctx.Err() != nil {
			return
		}
		currentTime := glfw.GetTime()
		deltaTime := currentTime - lastTime
		lastTime = currentTime

		w, h := v.window.GetFramebufferSize()
		if int32(w) != v.Width || int32(h) != v.Height {
			v.resize(int32(w), int32(h))
		}

		if v.EnableCameraInput {
			v.Camera.ProcessKeyboard(v.window, float32(deltaTime))
		}
		v.runTasks()

		v.rendererAPI.Render(v.Scene.Node, v.Camera, v.Light)
		if v.OnFrame != nil {
			v.OnFrame(deltaTime)
		}

		v.window.SwapBuffers()
		glfw.PollEvents()
	}
}

func (v *Viewer) resize(width, height int32) {
	if width <= 0 || height <= 0 {
		return
	}
	v.Width, v.Height = width, height
	v.rendererAPI.UpdateViewport(width, height)
	v.Camera.SetAspectRatio(float32(width) / float32(height))
}

// Right drag turns the camera.
func (v *Viewer) mouseCallback(w *glfw.Window, xpos, ypos float64) {
	if v.EnableCameraInput && w.GetAttrib(glfw.Focused) == glfw.True && w.GetMouseButton(glfw.MouseButtonRight) == glfw.Press {
		v.Camera.ProcessMouseMovement(float32(xpos), float32(ypos), true)
		return
	}
	v.Camera.ResetMouse()
}

func (v *Viewer) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft || action != glfw.Press || v.OnPick == nil {
		return
	}
	x, y := w.GetCursorPos()
	ww, wh := w.GetSize()
	if hit, ok := v.pick(float32(x), float32(y), ww, wh); ok {
		v.OnPick(hit)
	}
}

func (v *Viewer) pick(x, y float32, width, height int) (renderer.Hit, bool) {
	if width <= 0 || height <= 0 {
		return renderer.Hit{}, false
	}
	ray := renderer.ScreenToRay(v.Camera, x, y, width, height)
	hit, ok := renderer.Pick(v.Scene.Node, ray)
	if ok {
		logger.Log.Debug("Picked instance", zap.String("instanceId", hit.InstanceID), zap.Float32("distance", hit.Distance))
	}
	return hit, ok
}
