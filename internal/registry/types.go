package registry

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// TextureRole names the material slot a texture is bound to.
type TextureRole string

const (
	RoleBase      TextureRole = "base"
	RoleSpecular  TextureRole = "specular"
	RoleRoughness TextureRole = "roughness"
	RoleEmissive  TextureRole = "emissive"
	RoleNormal    TextureRole = "normal"
)

// IsColor reports whether the role carries colour data sampled as sRGB.
func (r TextureRole) IsColor() bool {
	return r == RoleBase || r == RoleEmissive
}

// TextureSet maps a texture role to an image path. Every role is optional.
type TextureSet map[TextureRole]string

// Roles returns the roles with a non-empty path in a stable order.
func (ts TextureSet) Roles() []TextureRole {
	roles := make([]TextureRole, 0, len(ts))
	for role, path := range ts {
		if path != "" {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

func (ts TextureSet) Clone() TextureSet {
	if ts == nil {
		return nil
	}
	out := make(TextureSet, len(ts))
	for k, v := range ts {
		out[k] = v
	}
	return out
}

// Vec3 is the declarative form of a vector. In YAML it may be written as a
// mapping {x, y, z}, a three element sequence, or a single number meaning a
// uniform value.
type Vec3 struct {
	X float32 `yaml:"x" json:"x"`
	Y float32 `yaml:"y" json:"y"`
	Z float32 `yaml:"z" json:"z"`
}

func (v Vec3) Vec() mgl32.Vec3 {
	return mgl32.Vec3{v.X, v.Y, v.Z}
}

func FromVec(v mgl32.Vec3) Vec3 {
	return Vec3{X: v.X(), Y: v.Y(), Z: v.Z()}
}

func (v *Vec3) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var f float32
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("vec3 scalar: %w", err)
		}
		*v = Vec3{f, f, f}
		return nil
	case yaml.SequenceNode:
		var items []float32
		if err := node.Decode(&items); err != nil {
			return fmt.Errorf("vec3 sequence: %w", err)
		}
		if len(items) != 3 {
			return fmt.Errorf("vec3 sequence needs 3 items, got %d", len(items))
		}
		*v = Vec3{items[0], items[1], items[2]}
		return nil
	default:
		type plain Vec3
		var p plain
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("vec3 mapping: %w", err)
		}
		*v = Vec3(p)
		return nil
	}
}

// EmissiveConfig describes how decorators light up a model's materials.
type EmissiveConfig struct {
	Colors         []string `yaml:"colors,omitempty"`
	Intensity      float32  `yaml:"intensity,omitempty"`
	Opacity        float32  `yaml:"opacity,omitempty"`
	Roughness      *float32 `yaml:"roughness,omitempty"`
	Metalness      *float32 `yaml:"metalness,omitempty"`
	Randomize      bool     `yaml:"randomize,omitempty"`
	MaterialFilter []string `yaml:"materialFilter,omitempty"`
}

func (ec *EmissiveConfig) clone() *EmissiveConfig {
	if ec == nil {
		return nil
	}
	c := *ec
	c.Colors = append([]string(nil), ec.Colors...)
	c.MaterialFilter = append([]string(nil), ec.MaterialFilter...)
	if ec.Roughness != nil {
		r := *ec.Roughness
		c.Roughness = &r
	}
	if ec.Metalness != nil {
		m := *ec.Metalness
		c.Metalness = &m
	}
	return &c
}

// ModelDefinition is the load recipe of one model type.
type ModelDefinition struct {
	ID                 string          `yaml:"id"`
	FilePath           string          `yaml:"filePath"`
	Textures           TextureSet      `yaml:"textures,omitempty"`
	DefaultScale       *Vec3           `yaml:"defaultScale,omitempty"`
	Category           string          `yaml:"category,omitempty"`
	EmissiveConfig     *EmissiveConfig `yaml:"emissiveConfig,omitempty"`
	ExcludeFromEffects bool            `yaml:"excludeFromEffects,omitempty"`
	HasRoofLights      bool            `yaml:"hasRoofLights,omitempty"`
	// Procedural marks primitives built in code, such as the ground plane.
	Procedural bool `yaml:"procedural,omitempty"`
}

// Scale returns the default scale, or (1,1,1) when none is set.
func (d ModelDefinition) Scale() mgl32.Vec3 {
	if d.DefaultScale == nil {
		return mgl32.Vec3{1, 1, 1}
	}
	return d.DefaultScale.Vec()
}

func (d ModelDefinition) clone() ModelDefinition {
	c := d
	c.Textures = d.Textures.Clone()
	if d.DefaultScale != nil {
		s := *d.DefaultScale
		c.DefaultScale = &s
	}
	c.EmissiveConfig = d.EmissiveConfig.clone()
	return c
}

// AdDefinition is the recipe of a textured emissive billboard.
type AdDefinition struct {
	ID                string  `yaml:"id"`
	DiffuseTexture    string  `yaml:"diffuseTexture"`
	EmissiveTexture   string  `yaml:"emissiveTexture,omitempty"`
	Width             float32 `yaml:"width"`
	Height            float32 `yaml:"height"`
	EmissiveColor     string  `yaml:"emissiveColor,omitempty"`
	EmissiveIntensity float32 `yaml:"emissiveIntensity,omitempty"`
	DoubleSided       *bool   `yaml:"doubleSided,omitempty"`
	Category          string  `yaml:"category,omitempty"`
}

// IsDoubleSided defaults to true when the flag is not set.
func (a AdDefinition) IsDoubleSided() bool {
	return a.DoubleSided == nil || *a.DoubleSided
}

func (a AdDefinition) clone() AdDefinition {
	c := a
	if a.DoubleSided != nil {
		v := *a.DoubleSided
		c.DoubleSided = &v
	}
	return c
}
