package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Group is a contiguous index range drawn with one material of a multi-material mesh.
type Group struct {
	Start         int
	Count         int
	MaterialIndex int
}

// Geometry holds flat vertex attributes: Positions and Normals are xyz
// triples, UVs are uv pairs.
type Geometry struct {
	ID        uint64
	Positions []float32
	Normals   []float32
	UVs       []float32
	Indices   []uint32
	Groups    []Group

	disposable
}

func NewGeometry(positions, normals, uvs []float32, indices []uint32) *Geometry {
	return &Geometry{
		ID:        newID(),
		Positions: positions,
		Normals:   normals,
		UVs:       uvs,
		Indices:   indices,
	}
}

func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// BoundingBox returns the axis aligned bounds in local space.
func (g *Geometry) BoundingBox() (mgl32.Vec3, mgl32.Vec3) {
	if len(g.Positions) < 3 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	inf := float32(math.Inf(1))
	lo := mgl32.Vec3{inf, inf, inf}
	hi := mgl32.Vec3{-inf, -inf, -inf}
	for i := 0; i+2 < len(g.Positions); i += 3 {
		for a := 0; a < 3; a++ {
			v := g.Positions[i+a]
			if v < lo[a] {
				lo[a] = v
			}
			if v > hi[a] {
				hi[a] = v
			}
		}
	}
	return lo, hi
}

// Interleaved packs vertices as [x,y,z,u,v,nx,ny,nz] for upload.
func (g *Geometry) Interleaved() []float32 {
	n := g.VertexCount()
	out := make([]float32, 0, n*8)
	for i := 0; i < n; i++ {
		out = append(out, g.Positions[i*3:i*3+3]...)
		if i*2+1 < len(g.UVs) {
			out = append(out, g.UVs[i*2:i*2+2]...)
		} else {
			out = append(out, 0, 0)
		}
		if i*3+2 < len(g.Normals) {
			out = append(out, g.Normals[i*3:i*3+3]...)
		} else {
			out = append(out, 0, 1, 0)
		}
	}
	return out
}

func (g *Geometry) Dispose() {
	g.dispose()
}

// NewPlaneGeometry builds a width x height quad in the XY plane facing +Z.
func NewPlaneGeometry(width, height float32) *Geometry {
	hw, hh := width/2, height/2
	positions := []float32{
		-hw, hh, 0,
		hw, hh, 0,
		-hw, -hh, 0,
		hw, -hh, 0,
	}
	normals := []float32{
		0, 0, 1,
		0, 0, 1,
		0, 0, 1,
		0, 0, 1,
	}
	uvs := []float32{
		0, 1,
		1, 1,
		0, 0,
		1, 0,
	}
	indices := []uint32{0, 2, 1, 2, 3, 1}
	return NewGeometry(positions, normals, uvs, indices)
}

// NewGroundGeometry builds a width x depth quad in the XZ plane facing +Y.
func NewGroundGeometry(width, depth float32) *Geometry {
	hw, hd := width/2, depth/2
	positions := []float32{
		-hw, 0, -hd,
		hw, 0, -hd,
		-hw, 0, hd,
		hw, 0, hd,
	}
	normals := []float32{
		0, 1, 0,
		0, 1, 0,
		0, 1, 0,
		0, 1, 0,
	}
	uvs := []float32{
		0, 1,
		1, 1,
		0, 0,
		1, 0,
	}
	indices := []uint32{0, 2, 1, 2, 3, 1}
	return NewGeometry(positions, normals, uvs, indices)
}

// NewBoxGeometry builds an axis aligned box centred on the origin.
func NewBoxGeometry(width, height, depth float32) *Geometry {
	hw, hh, hd := width/2, height/2, depth/2
	type face struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
	}
	faces := []face{
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{hw, hh, hd}, {hw, hh, -hd}, {hw, -hh, hd}, {hw, -hh, -hd}}},
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-hw, hh, -hd}, {-hw, hh, hd}, {-hw, -hh, -hd}, {-hw, -hh, hd}}},
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-hw, hh, -hd}, {hw, hh, -hd}, {-hw, hh, hd}, {hw, hh, hd}}},
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{-hw, -hh, hd}, {hw, -hh, hd}, {-hw, -hh, -hd}, {hw, -hh, -hd}}},
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-hw, hh, hd}, {hw, hh, hd}, {-hw, -hh, hd}, {hw, -hh, hd}}},
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{hw, hh, -hd}, {-hw, hh, -hd}, {hw, -hh, -hd}, {-hw, -hh, -hd}}},
	}

	var positions, normals, uvs []float32
	var indices []uint32
	for _, f := range faces {
		base := uint32(len(positions) / 3)
		for _, c := range f.corners {
			positions = append(positions, c.X(), c.Y(), c.Z())
			normals = append(normals, f.normal.X(), f.normal.Y(), f.normal.Z())
		}
		uvs = append(uvs, 0, 1, 1, 1, 0, 0, 1, 0)
		indices = append(indices, base, base+2, base+1, base+2, base+3, base+1)
	}
	return NewGeometry(positions, normals, uvs, indices)
}
