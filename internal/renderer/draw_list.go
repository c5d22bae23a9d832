package renderer

import (
	"CityBuilder/internal/scene"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// DrawItem is one draw call worth of state. Count zero draws every index of
// the geometry.
type DrawItem struct {
	Node      *scene.Node
	Geometry  *scene.Geometry
	Material  *scene.Material
	Instanced *scene.InstancedMesh
	World     mgl32.Mat4
	Start     int
	Count     int
	// Excluded marks nodes that opted out of bloom and other effects.
	Excluded bool
	depth    float32
}

type PointLightItem struct {
	Position mgl32.Vec3
	Light    scene.PointLight
	dist     float32
}

// Frame is the flattened, sorted content of a scene graph for one render.
type Frame struct {
	Opaque      []DrawItem
	Transparent []DrawItem
	Lights      []PointLightItem
}

func (f Frame) Len() int {
	return len(f.Opaque) + len(f.Transparent)
}

// BuildFrame walks the visible part of the graph. Opaque items keep traversal
// order, transparent items are sorted back to front from eye, and point
// lights are sorted nearest first and capped at MaxPointLights.
func BuildFrame(root *scene.Node, eye mgl32.Vec3) Frame {
	var f Frame
	if root == nil {
		return f
	}
	var walk func(n *scene.Node, parent mgl32.Mat4, excluded bool)
	walk = func(n *scene.Node, parent mgl32.Mat4, excluded bool) {
		if !n.Visible {
			return
		}
		world := parent.Mul4(n.LocalMatrix())
		if v, ok := n.UserData["excludeFromEffects"].(bool); ok && v {
			excluded = true
		}
		pos := world.Col(3).Vec3()

		if n.Mesh != nil && n.Mesh.Geometry != nil {
			for _, item := range meshItems(n, world) {
				item.Excluded = excluded
				item.depth = pos.Sub(eye).Len()
				f.add(item)
			}
		}
		if im := n.Instanced; im != nil && im.Geometry != nil && im.Material != nil && im.Capacity() > 0 {
			f.add(DrawItem{
				Node:      n,
				Geometry:  im.Geometry,
				Material:  im.Material,
				Instanced: im,
				World:     world,
				Excluded:  excluded,
				depth:     pos.Sub(eye).Len(),
			})
		}
		if n.Light != nil {
			f.Lights = append(f.Lights, PointLightItem{Position: pos, Light: *n.Light, dist: pos.Sub(eye).Len()})
		}
		for _, c := range n.Children() {
			walk(c, world, excluded)
		}
	}
	walk(root, mgl32.Ident4(), false)

	sort.SliceStable(f.Transparent, func(i, j int) bool {
		return f.Transparent[i].depth > f.Transparent[j].depth
	})
	sort.SliceStable(f.Lights, func(i, j int) bool {
		return f.Lights[i].dist < f.Lights[j].dist
	})
	if len(f.Lights) > MaxPointLights {
		f.Lights = f.Lights[:MaxPointLights]
	}
	return f
}

func (f *Frame) add(item DrawItem) {
	if blended(item.Material) {
		f.Transparent = append(f.Transparent, item)
		return
	}
	f.Opaque = append(f.Opaque, item)
}

// blended reports whether a material belongs to the sorted, blended pass.
func blended(m *scene.Material) bool {
	return m != nil && (m.Transparent || m.Blending == scene.BlendAdditive)
}

// meshItems splits a multi-material mesh into one item per geometry group.
func meshItems(n *scene.Node, world mgl32.Mat4) []DrawItem {
	geo := n.Mesh.Geometry
	if len(geo.Groups) == 0 || len(n.Mesh.Materials) <= 1 {
		return []DrawItem{{Node: n, Geometry: geo, Material: n.Mesh.Material(), World: world}}
	}
	items := make([]DrawItem, 0, len(geo.Groups))
	for _, g := range geo.Groups {
		idx := g.MaterialIndex
		if idx < 0 || idx >= len(n.Mesh.Materials) {
			idx = 0
		}
		items = append(items, DrawItem{
			Node:     n,
			Geometry: geo,
			Material: n.Mesh.Materials[idx],
			World:    world,
			Start:    g.Start,
			Count:    g.Count,
		})
	}
	return items
}

// uvMatrix builds the 3x3 texture transform of offset, repeat and rotation,
// applied as rotate about the centre, then scale, then offset.
func uvMatrix(t *scene.Texture) mgl32.Mat3 {
	if t == nil {
		return mgl32.Ident3()
	}
	repeat := t.Repeat
	if repeat == (mgl32.Vec2{}) {
		repeat = mgl32.Vec2{1, 1}
	}
	m := mgl32.Translate2D(t.Offset.X(), t.Offset.Y())
	m = m.Mul3(mgl32.Scale2D(repeat.X(), repeat.Y()))
	if t.Rotation != 0 {
		m = m.Mul3(mgl32.Translate2D(0.5, 0.5))
		m = m.Mul3(mgl32.HomogRotate2D(t.Rotation))
		m = m.Mul3(mgl32.Translate2D(-0.5, -0.5))
	}
	return m
}
