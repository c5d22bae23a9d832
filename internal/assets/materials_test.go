package assets

import (
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMaterial(t *testing.T) {
	bright := scene.NewMaterial("Facade")
	bright.Color = mgl32.Vec3{0.95, 0.95, 0.95}
	bright.Roughness = 0.1

	cases := []struct {
		mat  *scene.Material
		want MaterialTag
	}{
		{scene.NewMaterial("RoofLight_01"), TagExcluded},
		{scene.NewMaterial("LED_strip"), TagExcluded},
		{scene.NewMaterial("Neon"), TagExcluded},
		{scene.NewMaterial("Screen"), TagExcluded},
		{scene.NewMaterial("Company_Logo"), TagLogo},
		{scene.NewMaterial("Window_01"), TagWindow},
		{scene.NewMaterial("BlueGlass"), TagWindow},
		{bright, TagWindow},
		{scene.NewMaterial("Concrete"), TagStandard},
		{nil, TagStandard},
	}
	for _, tc := range cases {
		name := "nil"
		if tc.mat != nil {
			name = tc.mat.Name
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyMaterial(tc.mat))
		})
	}
}

func TestClassifyExclusionBeatsLogo(t *testing.T) {
	assert.Equal(t, TagExcluded, ClassifyMaterial(scene.NewMaterial("logo_sign")))
}

func TestNeedsClone(t *testing.T) {
	shared := scene.NewTexture("shared.png", nil)

	same := scene.NewTexture("mesh.png", nil)
	assert.False(t, NeedsClone(shared, same))
	assert.False(t, NeedsClone(shared, nil))

	repeated := scene.NewTexture("mesh.png", nil)
	repeated.Repeat = mgl32.Vec2{4, 4}
	assert.True(t, NeedsClone(shared, repeated))

	wrapped := scene.NewTexture("mesh.png", nil)
	wrapped.WrapT = scene.WrapMirroredRepeat
	assert.True(t, NeedsClone(shared, wrapped))

	rotated := scene.NewTexture("mesh.png", nil)
	rotated.Rotation = 0.5
	assert.True(t, NeedsClone(shared, rotated))
}

func TestBindTextureClonesWithSourceTransform(t *testing.T) {
	shared := scene.NewTexture("shared.png", nil)
	source := scene.NewTexture("mesh.png", nil)
	source.Offset = mgl32.Vec2{0.5, 0}
	source.Repeat = mgl32.Vec2{2, 3}

	bound := bindTexture(shared, source)
	require.NotSame(t, shared, bound)
	assert.Equal(t, source.Offset, bound.Offset)
	assert.Equal(t, source.Repeat, bound.Repeat)
	assert.Equal(t, "shared.png", bound.Path)
	assert.Equal(t, mgl32.Vec2{1, 1}, shared.Repeat, "shared texture is left alone")
}

func TestApplyLogoReusesEmbeddedAlpha(t *testing.T) {
	m := scene.NewMaterial("logo")
	m.Map = scene.NewTexture("logo.png", nil)
	m.UserData["alphaMode"] = "BLEND"

	(&overrideBinder{}).applyLogo(m)

	assert.Same(t, m.Map, m.AlphaMap)
	assert.True(t, m.Transparent)
	assert.Equal(t, scene.BlendNormal, m.Blending)
}

func TestApplyLogoInvertsMask(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.Black)
	mask := scene.NewTexture("mask.png", img)

	mgr := NewManager()
	defer mgr.Dispose()
	b := &overrideBinder{
		textures:  map[registry.TextureRole]*scene.Texture{registry.RoleBase: mask},
		alphaMask: mgr.alphaMask,
	}
	m := scene.NewMaterial("BrandLogo")
	b.applyLogo(m)

	require.NotNil(t, m.AlphaMap)
	assert.InDelta(t, 0.01, m.AlphaTest, 1e-6)
	r, _, _, _ := m.AlphaMap.Image.At(0, 0).RGBA()
	assert.Greater(t, r, uint32(0xf000), "dark mask pixels become opaque alpha")

	again := mgr.alphaMask(mask)
	assert.Same(t, m.AlphaMap, again)
	assert.Equal(t, 1, mgr.Stats().AlphaMasks)
}

func TestApplyLogoFallsBackToAdditive(t *testing.T) {
	m := scene.NewMaterial("logo")
	(&overrideBinder{}).applyLogo(m)

	assert.Nil(t, m.AlphaMap)
	assert.Equal(t, scene.BlendAdditive, m.Blending)
	assert.False(t, m.DepthWrite)
}

func TestBindStandardEmissiveDefaultsToWhite(t *testing.T) {
	m := scene.NewMaterial("Wall")
	em := scene.NewTexture("em.png", nil)
	b := &overrideBinder{textures: map[registry.TextureRole]*scene.Texture{registry.RoleEmissive: em}}
	b.bindStandard(m)

	assert.Same(t, em, m.EmissiveMap)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, m.Emissive)
	assert.True(t, m.NeedsUpdate)
}

func TestHarmonize(t *testing.T) {
	m := scene.NewMaterial("Wall")
	m.Color = mgl32.Vec3{0.2, 0.3, 0.4}
	m.Map = scene.NewTexture("base.png", nil)
	m.EmissiveMap = scene.NewTexture("em.png", nil)
	m.NormalMap = scene.NewTexture("n.png", nil)
	m.AOMap = scene.NewTexture("ao.png", nil)
	m.AOMapIntensity = 0.2

	untextured := scene.NewMaterial("Trim")
	untextured.Color = mgl32.Vec3{0.1, 0.1, 0.1}

	root := scene.NewNode("root")
	root.Add(scene.NewMeshNode("a", scene.NewMesh(scene.NewBoxGeometry(1, 1, 1), m, untextured)))

	Harmonize(root, HarmonizeOptions{AOIntensity: 0.8, FlattenBaseColor: true})

	assert.Equal(t, scene.ColorSpaceSRGB, m.Map.ColorSpace)
	assert.Equal(t, scene.ColorSpaceSRGB, m.EmissiveMap.ColorSpace)
	assert.Equal(t, scene.ColorSpaceLinear, m.NormalMap.ColorSpace)
	assert.InDelta(t, 0.8, m.AOMapIntensity, 1e-6)
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, m.Color)
	assert.Equal(t, mgl32.Vec3{0.1, 0.1, 0.1}, untextured.Color)
}
