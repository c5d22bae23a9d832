package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Blending int

const (
	BlendNormal Blending = iota
	BlendAdditive
)

type Side int

const (
	FrontSide Side = iota
	BackSide
	DoubleSide
)

// Material is a PBR standard material. Texture slots are optional.
type Material struct {
	ID                uint64
	Name              string
	Color             mgl32.Vec3
	Emissive          mgl32.Vec3
	EmissiveIntensity float32
	Roughness         float32
	Metalness         float32
	Opacity           float32
	Transparent       bool
	DepthWrite        bool
	AlphaTest         float32
	Blending          Blending
	Side              Side
	ToneMapped        bool

	Map          *Texture
	SpecularMap  *Texture
	RoughnessMap *Texture
	MetalnessMap *Texture
	EmissiveMap  *Texture
	NormalMap    *Texture
	AlphaMap     *Texture
	AOMap        *Texture

	AOMapIntensity float32
	UserData       map[string]any
	NeedsUpdate    bool

	disposable
}

func NewMaterial(name string) *Material {
	return &Material{
		ID:                newID(),
		Name:              name,
		Color:             mgl32.Vec3{1, 1, 1},
		EmissiveIntensity: 1,
		Roughness:         1,
		Metalness:         0,
		Opacity:           1,
		DepthWrite:        true,
		ToneMapped:        true,
		AOMapIntensity:    1,
		UserData:          map[string]any{},
	}
}

// Clone copies every property. Texture slots keep pointing at the same textures.
func (m *Material) Clone() *Material {
	c := &Material{
		ID:                newID(),
		Name:              m.Name,
		Color:             m.Color,
		Emissive:          m.Emissive,
		EmissiveIntensity: m.EmissiveIntensity,
		Roughness:         m.Roughness,
		Metalness:         m.Metalness,
		Opacity:           m.Opacity,
		Transparent:       m.Transparent,
		DepthWrite:        m.DepthWrite,
		AlphaTest:         m.AlphaTest,
		Blending:          m.Blending,
		Side:              m.Side,
		ToneMapped:        m.ToneMapped,
		Map:               m.Map,
		SpecularMap:       m.SpecularMap,
		RoughnessMap:      m.RoughnessMap,
		MetalnessMap:      m.MetalnessMap,
		EmissiveMap:       m.EmissiveMap,
		NormalMap:         m.NormalMap,
		AlphaMap:          m.AlphaMap,
		AOMap:             m.AOMap,
		AOMapIntensity:    m.AOMapIntensity,
		UserData:          make(map[string]any, len(m.UserData)),
		NeedsUpdate:       true,
	}
	for k, v := range m.UserData {
		c.UserData[k] = v
	}
	return c
}

// Textures returns the non-empty texture slots.
func (m *Material) Textures() []*Texture {
	var out []*Texture
	for _, t := range []*Texture{
		m.Map, m.SpecularMap, m.RoughnessMap, m.MetalnessMap,
		m.EmissiveMap, m.NormalMap, m.AlphaMap, m.AOMap,
	} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Dispose releases the material. Bound textures are owned elsewhere and are not disposed.
func (m *Material) Dispose() {
	m.dispose()
}
