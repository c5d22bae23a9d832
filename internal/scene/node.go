package scene

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Node is an element of the scene graph. A node may carry a mesh, an
// instanced mesh or a light; plain nodes act as groups.
type Node struct {
	Name     string
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	Visible  bool

	Mesh      *Mesh
	Instanced *InstancedMesh
	Light     *PointLight
	UserData  map[string]any

	parent   *Node
	children []*Node
}

func NewNode(name string) *Node {
	return &Node{
		Name:     name,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
		Visible:  true,
		UserData: map[string]any{},
	}
}

func NewMeshNode(name string, mesh *Mesh) *Node {
	n := NewNode(name)
	n.Mesh = mesh
	return n
}

// Add attaches children, detaching each from its previous parent first.
func (n *Node) Add(children ...*Node) {
	for _, c := range children {
		if c == nil || c == n {
			continue
		}
		if c.parent != nil {
			c.parent.Remove(c)
		}
		c.parent = n
		n.children = append(n.children, c)
	}
}

// Remove detaches a direct child. It reports false when child is not a child of n.
func (n *Node) Remove(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

func (n *Node) RemoveFromParent() bool {
	if n.parent == nil {
		return false
	}
	return n.parent.Remove(n)
}

func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

func (n *Node) ChildCount() int {
	return len(n.children)
}

// Traverse visits n and its descendants depth first, parents before children.
func (n *Node) Traverse(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Traverse(fn)
	}
}

// MeshNodes returns every descendant (including n) that carries a mesh, in traversal order.
func (n *Node) MeshNodes() []*Node {
	var out []*Node
	n.Traverse(func(c *Node) {
		if c.Mesh != nil {
			out = append(out, c)
		}
	})
	return out
}

// FindByName returns the first node in traversal order with an exact name match.
func (n *Node) FindByName(name string) *Node {
	var found *Node
	n.Traverse(func(c *Node) {
		if found == nil && c.Name == name {
			found = c
		}
	})
	return found
}

// FindAllByNameContains returns every node whose name contains sub.
func (n *Node) FindAllByNameContains(sub string) []*Node {
	var out []*Node
	n.Traverse(func(c *Node) {
		if strings.Contains(c.Name, sub) {
			out = append(out, c)
		}
	})
	return out
}

func (n *Node) SetPosition(x, y, z float32) {
	n.Position = mgl32.Vec3{x, y, z}
}

func (n *Node) SetScale(x, y, z float32) {
	n.Scale = mgl32.Vec3{x, y, z}
}

// SetRotationEuler sets the rotation from XYZ Euler angles in radians.
func (n *Node) SetRotationEuler(x, y, z float32) {
	n.Rotation = EulerToQuat(x, y, z)
}

// Rotate applies additional rotations in degrees around the local X, Y and Z axes.
func (n *Node) Rotate(angleX, angleY, angleZ float32) {
	if n.Rotation == (mgl32.Quat{}) {
		n.Rotation = mgl32.QuatIdent()
	}
	rotationX := mgl32.QuatRotate(mgl32.DegToRad(angleX), mgl32.Vec3{1, 0, 0})
	rotationY := mgl32.QuatRotate(mgl32.DegToRad(angleY), mgl32.Vec3{0, 1, 0})
	rotationZ := mgl32.QuatRotate(mgl32.DegToRad(angleZ), mgl32.Vec3{0, 0, 1})
	n.Rotation = n.Rotation.Mul(rotationX).Mul(rotationY).Mul(rotationZ).Normalize()
}

// LocalMatrix is translation * rotation * scale.
func (n *Node) LocalMatrix() mgl32.Mat4 {
	rot := n.Rotation
	if rot == (mgl32.Quat{}) {
		rot = mgl32.QuatIdent()
	}
	return Compose(n.Position, rot, n.Scale)
}

func (n *Node) WorldMatrix() mgl32.Mat4 {
	m := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		m = p.LocalMatrix().Mul4(m)
	}
	return m
}

// WorldBoundingBox returns the world-space bounds of every mesh under n.
// ok is false when n has no mesh geometry.
func (n *Node) WorldBoundingBox() (lo, hi mgl32.Vec3, ok bool) {
	n.Traverse(func(c *Node) {
		if c.Mesh == nil || c.Mesh.Geometry == nil || c.Mesh.Geometry.VertexCount() == 0 {
			return
		}
		gmin, gmax := c.Mesh.Geometry.BoundingBox()
		world := c.WorldMatrix()
		for i := 0; i < 8; i++ {
			corner := mgl32.Vec3{gmin.X(), gmin.Y(), gmin.Z()}
			if i&1 != 0 {
				corner[0] = gmax.X()
			}
			if i&2 != 0 {
				corner[1] = gmax.Y()
			}
			if i&4 != 0 {
				corner[2] = gmax.Z()
			}
			p := world.Mul4x1(corner.Vec4(1)).Vec3()
			if !ok {
				lo, hi, ok = p, p, true
				continue
			}
			for a := 0; a < 3; a++ {
				if p[a] < lo[a] {
					lo[a] = p[a]
				}
				if p[a] > hi[a] {
					hi[a] = p[a]
				}
			}
		}
	})
	return lo, hi, ok
}

// Clone deep-copies the hierarchy and transforms. Geometry and materials are
// shared with the original. Instanced meshes are not carried over.
func (n *Node) Clone() *Node {
	c := &Node{
		Name:     n.Name,
		Position: n.Position,
		Rotation: n.Rotation,
		Scale:    n.Scale,
		Visible:  n.Visible,
		UserData: make(map[string]any, len(n.UserData)),
	}
	for k, v := range n.UserData {
		c.UserData[k] = v
	}
	if n.Mesh != nil {
		mats := make([]*Material, len(n.Mesh.Materials))
		copy(mats, n.Mesh.Materials)
		c.Mesh = &Mesh{Geometry: n.Mesh.Geometry, Materials: mats}
	}
	if n.Light != nil {
		l := *n.Light
		c.Light = &l
	}
	for _, child := range n.children {
		cc := child.Clone()
		cc.parent = c
		c.children = append(c.children, cc)
	}
	return c
}

// Scene is the root of a render graph owned by the application.
type Scene struct {
	*Node
}

func NewScene() *Scene {
	return &Scene{Node: NewNode("Scene")}
}
