// Package effects decorates placed models using the emissive and roof-light
// metadata of their definitions. It only reads the registry.
package effects

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"math/rand"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// Excluded reports whether n or one of its ancestors is flagged
// excludeFromEffects.
func Excluded(n *scene.Node) bool {
	for p := n; p != nil; p = p.Parent() {
		if v, ok := p.UserData["excludeFromEffects"].(bool); ok && v {
			return true
		}
	}
	return false
}

// matchesFilter is a case-insensitive substring match. An empty filter
// matches every material.
func matchesFilter(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, f := range filter {
		if f != "" && strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

func pickColor(cfg *registry.EmissiveConfig, rng *rand.Rand) mgl32.Vec3 {
	var colors []mgl32.Vec3
	for _, s := range cfg.Colors {
		c, err := scene.ParseColor(s)
		if err != nil {
			logger.Log.Warn("Ignoring emissive colour", zap.String("color", s), zap.Error(err))
			continue
		}
		colors = append(colors, c)
	}
	switch {
	case len(colors) == 0:
		return mgl32.Vec3{1, 1, 1}
	case cfg.Randomize && len(colors) > 1:
		if rng == nil {
			return colors[rand.Intn(len(colors))]
		}
		return colors[rng.Intn(len(colors))]
	default:
		return colors[0]
	}
}

// ApplyEmissive lights the materials of a placed model that match the
// definition's material filter. Matching materials are cloned before they are
// changed, since placements share materials with the cached template. The
// clones are returned and belong to the caller.
//
// Nothing happens when the definition has no emissive config, or when it or
// the node is excluded from effects.
func ApplyEmissive(root *scene.Node, def registry.ModelDefinition, rng *rand.Rand) []*scene.Material {
	cfg := def.EmissiveConfig
	if cfg == nil || def.ExcludeFromEffects || root == nil || Excluded(root) {
		return nil
	}

	color := pickColor(cfg, rng)
	intensity := cfg.Intensity
	if intensity <= 0 {
		intensity = 1
	}

	var lit []*scene.Material
	for _, n := range root.MeshNodes() {
		for i, m := range n.Mesh.Materials {
			if m == nil || !matchesFilter(m.Name, cfg.MaterialFilter) {
				continue
			}
			c := m.Clone()
			c.Emissive = color
			c.EmissiveIntensity = intensity
			if cfg.Opacity > 0 && cfg.Opacity < 1 {
				c.Opacity = cfg.Opacity
				c.Transparent = true
			}
			if cfg.Roughness != nil {
				c.Roughness = *cfg.Roughness
			}
			if cfg.Metalness != nil {
				c.Metalness = *cfg.Metalness
			}
			c.UserData["emissiveApplied"] = true
			n.Mesh.Materials[i] = c
			lit = append(lit, c)
		}
	}

	logger.Log.Debug("Emissive applied",
		zap.String("modelType", def.ID),
		zap.String("node", root.Name),
		zap.Int("materials", len(lit)))
	return lit
}
