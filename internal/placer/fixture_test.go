package placer

import (
	"CityBuilder/internal/assets"
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// writeGLB writes a binary glTF with one single-primitive cube-ish mesh node
// per name.
func writeGLB(t *testing.T, path string, names ...string) {
	t.Helper()
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{
		{-0.5, 0, -0.5}, {0.5, 0, -0.5}, {0.5, 1, 0.5}, {-0.5, 1, 0.5},
	})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2, 0, 2, 3})
	for i, name := range names {
		doc.Materials = append(doc.Materials, &gltf.Material{Name: name + "_mat"})
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: name, Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]int{"POSITION": pos},
			Material:   gltf.Index(i),
		}}})
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:     name,
			Mesh:     gltf.Index(i),
			Rotation: [4]float64{0, 0, 0, 1},
			Scale:    [3]float64{1, 1, 1},
		})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, i)
	}
	require.NoError(t, gltf.SaveBinary(doc, path))
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 255, 255, 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

type fixture struct {
	dir      string
	registry *registry.Registry
	assets   *assets.Manager
	scene    *scene.Scene
}

// newFixture registers BOX (one mesh), PAIR (two meshes), GROUND (procedural)
// and a billboard, backed by real files in a temp dir.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	writeGLB(t, filepath.Join(dir, "box.glb"), "box")
	writeGLB(t, filepath.Join(dir, "pair.glb"), "left", "right")
	writePNG(t, filepath.Join(dir, "ad.png"))

	reg := registry.New()
	two := registry.Vec3{X: 2, Y: 2, Z: 2}
	require.NoError(t, reg.AddDefinition(registry.ModelDefinition{ID: "BOX", FilePath: "box.glb", DefaultScale: &two, Category: "building"}))
	require.NoError(t, reg.AddDefinition(registry.ModelDefinition{ID: "PAIR", FilePath: "pair.glb"}))
	require.NoError(t, reg.AddDefinition(registry.ModelDefinition{ID: "GROUND", Procedural: true, ExcludeFromEffects: true}))
	require.NoError(t, reg.AddAd(registry.AdDefinition{ID: "AD", DiffuseTexture: "ad.png", Width: 4, Height: 2, EmissiveColor: "#ff0000"}))

	mgr := assets.NewManager(assets.WithRoot(dir))
	t.Cleanup(mgr.Dispose)
	return &fixture{dir: dir, registry: reg, assets: mgr, scene: scene.NewScene()}
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	prev := logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(prev) })
	return logs
}

// gatedLoader blocks LoadModel until release is closed.
type gatedLoader struct {
	AssetLoader
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLoader) LoadModel(ctx context.Context, path string, overrides registry.TextureSet) (*assets.LoadedModel, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.AssetLoader.LoadModel(ctx, path, overrides)
}
