package assets

import (
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// MaterialTag is the closed set of treatments a material gets when texture
// overrides are bound.
type MaterialTag int

const (
	TagStandard MaterialTag = iota
	TagWindow
	TagLogo
	TagExcluded
)

func (t MaterialTag) String() string {
	switch t {
	case TagWindow:
		return "window"
	case TagLogo:
		return "logo"
	case TagExcluded:
		return "excluded"
	default:
		return "standard"
	}
}

// excludedNames carry their own baked emissive look and are never re-textured.
var excludedNames = []string{"light", "roof", "led", "neon", "screen", "sign", "emissive"}

// ClassifyMaterial tags a material from its name first, then from its
// surface response: bright, smooth, non-metallic surfaces are treated as glazing.
func ClassifyMaterial(m *scene.Material) MaterialTag {
	if m == nil {
		return TagStandard
	}
	name := strings.ToLower(m.Name)
	for _, ex := range excludedNames {
		if strings.Contains(name, ex) {
			return TagExcluded
		}
	}
	if strings.Contains(name, "logo") {
		return TagLogo
	}
	if strings.Contains(name, "window") || strings.Contains(name, "glass") {
		return TagWindow
	}
	if luminance(m.Color) > 0.8 && m.Roughness < 0.3 && m.Metalness < 0.5 {
		return TagWindow
	}
	return TagStandard
}

func luminance(c mgl32.Vec3) float32 {
	return 0.2126*c.X() + 0.7152*c.Y() + 0.0722*c.Z()
}

// NeedsClone reports whether binding shared in place of source would lose
// source's UV mapping. A nil source has no mapping to preserve.
func NeedsClone(shared, source *scene.Texture) bool {
	if shared == nil || source == nil {
		return false
	}
	return shared.Offset != source.Offset ||
		shared.Repeat != source.Repeat ||
		shared.Rotation != source.Rotation ||
		shared.WrapS != source.WrapS ||
		shared.WrapT != source.WrapT
}

// bindTexture returns shared, or a clone of shared carrying source's UV transform.
func bindTexture(shared, source *scene.Texture) *scene.Texture {
	if !NeedsClone(shared, source) {
		return shared
	}
	c := shared.Clone()
	c.Offset = source.Offset
	c.Repeat = source.Repeat
	c.Rotation = source.Rotation
	c.WrapS = source.WrapS
	c.WrapT = source.WrapT
	return c
}

// uvCarrier picks the texture whose transform defines how a slot is mapped.
func uvCarrier(slot, fallback *scene.Texture) *scene.Texture {
	if slot != nil {
		return slot
	}
	return fallback
}

// overrideBinder applies texture overrides to every mesh under a template.
type overrideBinder struct {
	textures map[registry.TextureRole]*scene.Texture
	// alphaMask builds an inverted-luminance alpha map for logos. May be nil.
	alphaMask func(*scene.Texture) *scene.Texture
}

func (b *overrideBinder) apply(root *scene.Node) {
	root.Traverse(func(n *scene.Node) {
		if n.Mesh == nil {
			return
		}
		for _, m := range n.Mesh.Materials {
			switch ClassifyMaterial(m) {
			case TagExcluded:
				continue
			case TagLogo:
				b.applyLogo(m)
			case TagWindow:
				b.bindStandard(m)
				glowWindow(m)
			default:
				b.bindStandard(m)
			}
		}
	})
}

// windowGlow is the emissive intensity given to glazing without its own emissive.
const windowGlow = 0.15

// glowWindow tags glazing and lets it faintly emit its base colour.
func glowWindow(m *scene.Material) {
	if m.UserData == nil {
		m.UserData = map[string]any{}
	}
	m.UserData["window"] = true
	if m.Emissive != (mgl32.Vec3{}) || m.EmissiveMap != nil {
		return
	}
	m.Emissive = m.Color
	m.EmissiveIntensity = windowGlow
	m.NeedsUpdate = true
}

func (b *overrideBinder) bindStandard(m *scene.Material) {
	carrier := m.Map
	if t := b.textures[registry.RoleBase]; t != nil {
		m.Map = bindTexture(t, uvCarrier(m.Map, carrier))
	}
	if t := b.textures[registry.RoleSpecular]; t != nil {
		m.SpecularMap = bindTexture(t, uvCarrier(m.SpecularMap, carrier))
	}
	if t := b.textures[registry.RoleRoughness]; t != nil {
		m.RoughnessMap = bindTexture(t, uvCarrier(m.RoughnessMap, carrier))
	}
	if t := b.textures[registry.RoleNormal]; t != nil {
		m.NormalMap = bindTexture(t, uvCarrier(m.NormalMap, carrier))
	}
	if t := b.textures[registry.RoleEmissive]; t != nil {
		m.EmissiveMap = bindTexture(t, uvCarrier(m.EmissiveMap, carrier))
		if m.Emissive == (mgl32.Vec3{}) {
			m.Emissive = mgl32.Vec3{1, 1, 1}
		}
	}
	m.NeedsUpdate = true
}

// applyLogo keeps an embedded alpha channel when there is one, otherwise
// derives an alpha map from a greyscale mask, otherwise renders additively.
func (b *overrideBinder) applyLogo(m *scene.Material) {
	m.Transparent = true
	m.NeedsUpdate = true

	if m.AlphaMap != nil || hasEmbeddedAlpha(m) {
		if m.AlphaMap == nil {
			m.AlphaMap = m.Map
		}
		return
	}

	mask := b.textures[registry.RoleBase]
	if mask == nil {
		mask = m.Map
	}
	if mask != nil && mask.Image != nil && b.alphaMask != nil {
		if alpha := b.alphaMask(mask); alpha != nil {
			m.AlphaMap = alpha
			m.AlphaTest = 0.01
			return
		}
	}

	m.Blending = scene.BlendAdditive
	m.DepthWrite = false
}

func hasEmbeddedAlpha(m *scene.Material) bool {
	mode, _ := m.UserData["alphaMode"].(string)
	return m.Map != nil && (mode == "BLEND" || mode == "MASK")
}

// HarmonizeOptions control the PBR normalisation applied to every template.
type HarmonizeOptions struct {
	AOIntensity      float32
	FlattenBaseColor bool
}

// DefaultHarmonizeOptions keeps AO at full strength and base colours as authored.
func DefaultHarmonizeOptions() HarmonizeOptions {
	return HarmonizeOptions{AOIntensity: 1}
}

// Harmonize normalises ambient occlusion strength, forces sRGB on colour and
// emissive maps and optionally whitens the base colour of textured materials.
// Textures are converted in place, so root must own them.
func Harmonize(root *scene.Node, opts HarmonizeOptions) {
	harmonize(root, opts, srgbInPlace)
}

func srgbInPlace(t *scene.Texture) *scene.Texture {
	if t != nil && t.ColorSpace != scene.ColorSpaceSRGB {
		t.ColorSpace = scene.ColorSpaceSRGB
		t.NeedsUpdate = true
	}
	return t
}

// harmonize is Harmonize with srgb deciding how a texture becomes sRGB.
func harmonize(root *scene.Node, opts HarmonizeOptions, srgb func(*scene.Texture) *scene.Texture) {
	root.Traverse(func(n *scene.Node) {
		if n.Mesh == nil {
			return
		}
		for _, m := range n.Mesh.Materials {
			harmonizeMaterial(m, opts, srgb)
		}
	})
}

func harmonizeMaterial(m *scene.Material, opts HarmonizeOptions, srgb func(*scene.Texture) *scene.Texture) {
	if m == nil {
		return
	}
	if m.AOMap != nil {
		m.AOMapIntensity = opts.AOIntensity
	}
	if m.Map != nil {
		base := srgb(m.Map)
		if m.AlphaMap == m.Map {
			m.AlphaMap = base
		}
		if m.EmissiveMap == m.Map {
			m.EmissiveMap = base
		}
		m.Map = base
	}
	m.EmissiveMap = srgb(m.EmissiveMap)
	if opts.FlattenBaseColor && m.Map != nil {
		m.Color = mgl32.Vec3{1, 1, 1}
	}
	m.NeedsUpdate = true
}
