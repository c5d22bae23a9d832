package assets

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

const boxOBJ = `mtllib box.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl Wall
f 1/1 2/2 3/3
usemtl Window_Glass
f 1/1 3/3 4/4
usemtl NeonSign
f 2/2 3/3 4/4
`

const boxMTL = `newmtl Wall
Kd 0.5 0.5 0.5
Ns 100
newmtl Window_Glass
Kd 0.9 0.9 1
d 0.5
newmtl NeonSign
Kd 1 0 1
`

// writeBoxOBJ writes box.obj, box.mtl and base.png into dir and returns dir.
func writeBoxOBJ(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "box.obj"), []byte(boxOBJ), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "box.mtl"), []byte(boxMTL), 0o644))
	writePNG(t, filepath.Join(dir, "base.png"), color.RGBA{200, 100, 50, 255})
	return dir
}

func observeLogs(t *testing.T, level zap.AtomicLevel) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	prev := logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(prev) })
	return logs
}

func TestLoadTextureCachesByPath(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.White)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	first, err := m.LoadTexture(context.Background(), "a.png")
	require.NoError(t, err)
	second, err := m.LoadTexture(context.Background(), "a.png")
	require.NoError(t, err)

	assert.Same(t, first, second)
	stats := m.Stats()
	assert.Equal(t, 1, stats.TextureDecodes)
	assert.Equal(t, 1, stats.Textures)
	assert.Equal(t, 1, stats.CacheHits)
}

func TestLoadTextureConcurrentSingleDecode(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.White)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	const callers = 32
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tex, err := m.LoadTexture(context.Background(), "a.png")
			if err == nil {
				results[i] = tex
			}
		}()
	}
	wg.Wait()

	require.NotNil(t, results[0])
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, m.Stats().TextureDecodes)
}

func TestLoadTextureFailureLeavesNoEntry(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	_, err := m.LoadTexture(context.Background(), "late.png")
	require.Error(t, err)
	assert.Equal(t, 0, m.Stats().Textures)

	writePNG(t, filepath.Join(dir, "late.png"), color.Black)
	tex, err := m.LoadTexture(context.Background(), "late.png")
	require.NoError(t, err)
	assert.NotNil(t, tex.Image)
}

func TestLoadTextureRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.png"), []byte("definitely not pixels"), 0o644))
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	_, err := m.LoadTexture(context.Background(), "fake.png")
	assert.Error(t, err)
}

func TestLoadTextureCancelledWait(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.White)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.LoadTexture(ctx, "a.png")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestLoadTexturesSkipsFailedRole(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "base.png"), color.White)
	logs := observeLogs(t, zap.NewAtomicLevelAt(zap.WarnLevel))
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	got := m.LoadTextures(context.Background(), registry.TextureSet{
		registry.RoleBase:   "base.png",
		registry.RoleNormal: "missing.png",
	})

	assert.Len(t, got, 1)
	assert.NotNil(t, got[registry.RoleBase])
	assert.Nil(t, got[registry.RoleNormal])
	assert.Equal(t, 1, logs.FilterMessage("Texture role skipped").Len())
}

func TestLoadModelUnsupportedFormat(t *testing.T) {
	m := NewManager()
	defer m.Dispose()

	_, err := m.LoadModel(context.Background(), "tower.fbx", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Equal(t, 0, m.Stats().Models)
}

func TestLoadModelCloneIsolation(t *testing.T) {
	dir := writeBoxOBJ(t)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	a, err := m.LoadModel(context.Background(), "box.obj", nil)
	require.NoError(t, err)
	b, err := m.LoadModel(context.Background(), "box.obj", nil)
	require.NoError(t, err)

	require.NotSame(t, a.Root, b.Root)
	a.Root.SetPosition(10, 0, 0)
	a.Root.Children()[0].SetScale(3, 3, 3)

	assert.Equal(t, mgl32.Vec3{}, b.Root.Position)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, b.Root.Children()[0].Scale)
	assert.Same(t, a.Root.Children()[0].Mesh.Geometry, b.Root.Children()[0].Mesh.Geometry)

	c, err := m.LoadModel(context.Background(), "box.obj", nil)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{}, c.Root.Position, "template must not see clone mutations")
	assert.Equal(t, 1, m.Stats().ModelParses)
}

func TestLoadModelKeyedByOverrides(t *testing.T) {
	dir := writeBoxOBJ(t)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	plain, err := m.LoadModel(context.Background(), "box.obj", nil)
	require.NoError(t, err)
	textured, err := m.LoadModel(context.Background(), "box.obj", registry.TextureSet{registry.RoleBase: "base.png"})
	require.NoError(t, err)

	wall := plain.Root.FindByName("Wall")
	texWall := textured.Root.FindByName("Wall")
	require.NotNil(t, wall)
	require.NotNil(t, texWall)
	assert.NotSame(t, wall.Mesh.Material(), texWall.Mesh.Material())
	assert.Nil(t, wall.Mesh.Material().Map)
	assert.NotNil(t, texWall.Mesh.Material().Map)
	assert.Equal(t, 2, m.Stats().ModelParses)
	assert.Equal(t, 2, m.Stats().Models)
}

func TestOverridesShareTextureAndSkipExcluded(t *testing.T) {
	dir := writeBoxOBJ(t)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	model, err := m.LoadModel(context.Background(), "box.obj", registry.TextureSet{registry.RoleBase: "base.png"})
	require.NoError(t, err)
	base, err := m.LoadTexture(context.Background(), "base.png")
	require.NoError(t, err)

	wall := model.Root.FindByName("Wall").Mesh.Material()
	glass := model.Root.FindByName("Window_Glass").Mesh.Material()
	neon := model.Root.FindByName("NeonSign").Mesh.Material()

	assert.Same(t, base, wall.Map)
	assert.Same(t, base, glass.Map)
	assert.Equal(t, true, glass.UserData["window"])
	assert.Equal(t, glass.Color, glass.Emissive, "glazing glows with its base colour")
	assert.Equal(t, float32(windowGlow), glass.EmissiveIntensity)
	assert.Equal(t, mgl32.Vec3{}, wall.Emissive)
	assert.Nil(t, neon.Map, "excluded materials keep their own look")
}

func TestPreloadModelsShareOverrideTexture(t *testing.T) {
	dir := writeBoxOBJ(t)
	names := []string{"a.obj", "b.obj", "c.obj", "d.obj"}
	base := registry.TextureSet{registry.RoleBase: "base.png"}
	reqs := make([]ModelRequest, 0, len(names))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(boxOBJ), 0o644))
		reqs = append(reqs, ModelRequest{Path: name, Textures: base})
	}
	m := NewManager(WithRoot(dir), WithWorkers(4))
	defer m.Dispose()

	res := m.PreloadModels(context.Background(), reqs)
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Succeeded)

	shared, err := m.LoadTexture(context.Background(), "base.png")
	require.NoError(t, err)
	assert.Equal(t, scene.ColorSpaceSRGB, shared.ColorSpace)
	for _, name := range names {
		model, err := m.LoadModel(context.Background(), name, base)
		require.NoError(t, err)
		assert.Same(t, shared, model.Root.FindByName("Wall").Mesh.Material().Map, name)
	}
	stats := m.Stats()
	assert.Equal(t, 1, stats.TextureDecodes)
	assert.Equal(t, 1, stats.Textures)
}

func TestColorRoleLeavesLinearTextureAlone(t *testing.T) {
	dir := writeBoxOBJ(t)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	linear, err := m.LoadTexture(context.Background(), "base.png")
	require.NoError(t, err)
	model, err := m.LoadModel(context.Background(), "box.obj", registry.TextureSet{registry.RoleBase: "base.png"})
	require.NoError(t, err)

	wall := model.Root.FindByName("Wall").Mesh.Material()
	require.NotSame(t, linear, wall.Map)
	assert.Equal(t, scene.ColorSpaceLinear, linear.ColorSpace)
	assert.Equal(t, scene.ColorSpaceSRGB, wall.Map.ColorSpace)
	assert.Same(t, linear.Image, wall.Map.Image)

	again := m.LoadTextures(context.Background(), registry.TextureSet{registry.RoleBase: "base.png"})
	assert.Same(t, wall.Map, again[registry.RoleBase], "the sRGB variant is shared")
	assert.Equal(t, 1, m.Stats().TextureDecodes)
}

func TestTextureCacheKeyedByResolvedPath(t *testing.T) {
	dir := writeBoxOBJ(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tex.obj"), []byte(`mtllib tex.mtl
v 0 0 0
v 1 0 0
v 1 1 0
usemtl Wall
f 1 2 3
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tex.mtl"), []byte("newmtl Wall\nKd 1 1 1\nmap_Kd base.png\n"), 0o644))
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	model, err := m.LoadModel(context.Background(), "tex.obj", registry.TextureSet{registry.RoleBase: "./base.png"})
	require.NoError(t, err)
	require.NotNil(t, model.Root.FindByName("Wall").Mesh.Material().Map)

	byRoot, err := m.LoadTexture(context.Background(), "base.png")
	require.NoError(t, err)
	byAbs, err := m.LoadTexture(context.Background(), filepath.Join(dir, "base.png"))
	require.NoError(t, err)
	assert.Same(t, byRoot, byAbs)

	stats := m.Stats()
	assert.Equal(t, 1, stats.Textures)
	assert.Equal(t, 1, stats.TextureDecodes)
}

func TestLoadModelFailureThenRetry(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	_, err := m.LoadModel(context.Background(), "box.obj", nil)
	require.Error(t, err)
	assert.Equal(t, 0, m.Stats().Models)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "box.obj"), []byte(boxOBJ), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "box.mtl"), []byte(boxMTL), 0o644))
	model, err := m.LoadModel(context.Background(), "box.obj", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, model.MeshCount())
}

func TestModelKeyCanonical(t *testing.T) {
	a := ModelKey("m.glb", registry.TextureSet{registry.RoleBase: "b.png", registry.RoleNormal: "n.png"})
	b := ModelKey("m.glb", registry.TextureSet{registry.RoleNormal: "n.png", registry.RoleBase: "b.png", registry.RoleEmissive: ""})
	assert.Equal(t, a, b)
	assert.Equal(t, ModelKey("m.glb", nil), ModelKey("m.glb", registry.TextureSet{}))
	assert.NotEqual(t, a, ModelKey("m.glb", nil))
}

func TestPreloadModelsPartialFailure(t *testing.T) {
	dir := writeBoxOBJ(t)
	logs := observeLogs(t, zap.NewAtomicLevelAt(zap.WarnLevel))
	m := NewManager(WithRoot(dir), WithWorkers(2))
	defer m.Dispose()

	res := m.PreloadModels(context.Background(), []ModelRequest{
		{Path: "box.obj"},
		{Path: "box.obj", Textures: registry.TextureSet{registry.RoleBase: "base.png"}},
		{Path: "missing.obj"},
		{Path: "box.obj"},
		{Path: "tower.fbx"},
	})

	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Succeeded)
	assert.ElementsMatch(t, []string{"missing.obj", "tower.fbx"}, res.Failed)
	assert.ErrorIs(t, res.Err, ErrUnsupportedFormat)
	assert.Equal(t, 2, logs.FilterMessage("Preload item failed").Len())
}

func TestPreloadTextures(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), color.White)
	writePNG(t, filepath.Join(dir, "b.png"), color.Black)
	m := NewManager(WithRoot(dir))
	defer m.Dispose()

	res := m.PreloadTextures(context.Background(), []string{"a.png", "b.png", "c.png"})
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, m.Stats().Textures)
}

func TestDisposeSafety(t *testing.T) {
	empty := NewManager()
	assert.NotPanics(t, empty.Dispose)
	assert.NotPanics(t, empty.Dispose)

	dir := writeBoxOBJ(t)
	m := NewManager(WithRoot(dir))
	tex, err := m.LoadTexture(context.Background(), "base.png")
	require.NoError(t, err)
	model, err := m.LoadModel(context.Background(), "box.obj", registry.TextureSet{registry.RoleBase: "base.png"})
	require.NoError(t, err)
	_, _ = m.LoadTexture(context.Background(), "missing.png")

	assert.NotPanics(t, m.Dispose)
	assert.NotPanics(t, m.Dispose)

	assert.True(t, tex.Disposed())
	assert.True(t, model.Root.Children()[0].Mesh.Geometry.Disposed())
	assert.Equal(t, 0, m.Stats().Textures)

	_, err = m.LoadTexture(context.Background(), "base.png")
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = m.LoadModel(context.Background(), "box.obj", nil)
	assert.ErrorIs(t, err, ErrDisposed)
	res := m.PreloadTextures(context.Background(), []string{"base.png"})
	assert.ErrorIs(t, res.Err, ErrDisposed)
}

func TestFormatFor(t *testing.T) {
	dir := t.TempDir()
	noExt := filepath.Join(dir, "model")
	require.NoError(t, os.WriteFile(noExt, []byte("glTF\x02\x00\x00\x00"), 0o644))

	assert.Equal(t, formatGLTF, formatFor("a.GLB"))
	assert.Equal(t, formatGLTF, formatFor("a.gltf"))
	assert.Equal(t, formatOBJ, formatFor("a.obj"))
	assert.Equal(t, formatUnknown, formatFor("a.fbx"))
	assert.Equal(t, formatGLTF, formatFor(noExt))
	assert.Equal(t, formatUnknown, formatFor(filepath.Join(dir, "absent")))
}
