package effects

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

const roofLightPrefix = "roofLight_"

type RoofLightOptions struct {
	Color     string
	Intensity float32
	// Distance is the light range in world units.
	Distance float32
	// Inset pulls the lights towards the centre, as a fraction of the roof size.
	Inset float32
	// Lift raises the lights above the roof, in the model's local units.
	Lift float32
}

func DefaultRoofLightOptions() RoofLightOptions {
	return RoofLightOptions{
		Color:     "#ff2a2a",
		Intensity: 2,
		Distance:  15,
		Inset:     0.1,
		Lift:      0.05,
	}
}

// localBounds returns the bounds of every mesh under root in root's own
// coordinate space.
func localBounds(root *scene.Node) (lo, hi mgl32.Vec3, ok bool) {
	inv := root.WorldMatrix().Inv()
	root.Traverse(func(c *scene.Node) {
		if c.Mesh == nil || c.Mesh.Geometry == nil || c.Mesh.Geometry.VertexCount() == 0 {
			return
		}
		gmin, gmax := c.Mesh.Geometry.BoundingBox()
		rel := inv.Mul4(c.WorldMatrix())
		for i := 0; i < 8; i++ {
			corner := gmin
			if i&1 != 0 {
				corner[0] = gmax[0]
			}
			if i&2 != 0 {
				corner[1] = gmax[1]
			}
			if i&4 != 0 {
				corner[2] = gmax[2]
			}
			p := rel.Mul4x1(corner.Vec4(1)).Vec3()
			if !ok {
				lo, hi, ok = p, p, true
				continue
			}
			for a := 0; a < 3; a++ {
				lo[a] = min(lo[a], p[a])
				hi[a] = max(hi[a], p[a])
			}
		}
	})
	return lo, hi, ok
}

// AddRoofLights puts a point light above each roof corner of a placed model
// whose definition sets hasRoofLights. Existing roof lights on root are
// replaced. It returns the light nodes it attached.
func AddRoofLights(root *scene.Node, def registry.ModelDefinition, opts RoofLightOptions) []*scene.Node {
	if !def.HasRoofLights || root == nil {
		return nil
	}
	lo, hi, ok := localBounds(root)
	if !ok {
		logger.Log.Warn("No geometry for roof lights", zap.String("modelType", def.ID), zap.String("node", root.Name))
		return nil
	}
	RemoveRoofLights(root)

	color := mgl32.Vec3{1, 0, 0}
	if opts.Color != "" {
		if c, err := scene.ParseColor(opts.Color); err == nil {
			color = c
		} else {
			logger.Log.Warn("Ignoring roof light colour", zap.String("color", opts.Color), zap.Error(err))
		}
	}

	dx := (hi.X() - lo.X()) * opts.Inset
	dz := (hi.Z() - lo.Z()) * opts.Inset
	y := hi.Y() + opts.Lift
	corners := []mgl32.Vec3{
		{lo.X() + dx, y, lo.Z() + dz},
		{hi.X() - dx, y, lo.Z() + dz},
		{hi.X() - dx, y, hi.Z() - dz},
		{lo.X() + dx, y, hi.Z() - dz},
	}

	lights := make([]*scene.Node, 0, len(corners))
	for i, pos := range corners {
		n := scene.NewNode(fmt.Sprintf("%s%d", roofLightPrefix, i))
		n.Position = pos
		n.Light = &scene.PointLight{
			Color:     [3]float32{color[0], color[1], color[2]},
			Intensity: opts.Intensity,
			Distance:  opts.Distance,
		}
		n.UserData["roofLight"] = true
		n.UserData["excludeFromEffects"] = true
		root.Add(n)
		lights = append(lights, n)
	}
	logger.Log.Debug("Roof lights added", zap.String("modelType", def.ID), zap.String("node", root.Name))
	return lights
}

// RemoveRoofLights detaches the roof lights directly under root.
func RemoveRoofLights(root *scene.Node) int {
	removed := 0
	for _, c := range root.Children() {
		if c.Light != nil && strings.HasPrefix(c.Name, roofLightPrefix) {
			root.Remove(c)
			removed++
		}
	}
	return removed
}

// BloomExclusions collects every node under root that is flagged
// excludeFromEffects. Descendants of a flagged node are not listed separately.
func BloomExclusions(root *scene.Node) []*scene.Node {
	var out []*scene.Node
	var walk func(n *scene.Node)
	walk = func(n *scene.Node) {
		if v, ok := n.UserData["excludeFromEffects"].(bool); ok && v {
			out = append(out, n)
			return
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return out
}
