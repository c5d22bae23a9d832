package assets

import (
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"encoding/json"
)

// LoadedModel is a processed model template. The manager keeps the original
// in its cache and hands out clones; clones share geometry and materials.
type LoadedModel struct {
	Path      string
	Key       string
	Root      *scene.Node
	Materials []*scene.Material
}

// Clone returns a copy with an independent node hierarchy.
func (lm *LoadedModel) Clone() *LoadedModel {
	mats := make([]*scene.Material, len(lm.Materials))
	copy(mats, lm.Materials)
	return &LoadedModel{
		Path:      lm.Path,
		Key:       lm.Key,
		Root:      lm.Root.Clone(),
		Materials: mats,
	}
}

// MeshCount returns the number of mesh-carrying nodes in the template.
func (lm *LoadedModel) MeshCount() int {
	return len(lm.Root.MeshNodes())
}

// ModelKey is the model cache key: the path plus the canonical encoding of
// the non-empty texture overrides.
func ModelKey(path string, overrides registry.TextureSet) string {
	clean := make(map[registry.TextureRole]string, len(overrides))
	for role, p := range overrides {
		if p != "" {
			clean[role] = p
		}
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	data, _ := json.Marshal(clean)
	return path + "|" + string(data)
}

func collectMaterials(root *scene.Node) []*scene.Material {
	seen := make(map[*scene.Material]bool)
	var out []*scene.Material
	root.Traverse(func(n *scene.Node) {
		if n.Mesh == nil {
			return
		}
		for _, m := range n.Mesh.Materials {
			if m != nil && !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	})
	return out
}

// disposeTemplate frees the geometry, materials and material textures of a
// template. Resources shared with the texture cache are disposed when the
// cache itself is released; double disposal is a no-op.
func disposeTemplate(lm *LoadedModel) {
	if lm == nil || lm.Root == nil {
		return
	}
	lm.Root.Traverse(func(n *scene.Node) {
		if n.Mesh != nil && n.Mesh.Geometry != nil {
			n.Mesh.Geometry.Dispose()
		}
	})
	for _, m := range lm.Materials {
		for _, t := range m.Textures() {
			t.Dispose()
		}
		m.Dispose()
	}
}
