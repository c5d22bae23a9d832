package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// InstancedMesh draws Count copies of one geometry/material pair, each with
// its own matrix. Matrices has the allocated capacity; the renderer draws
// every allocated slot, so hidden slots carry a zero-scale matrix.
type InstancedMesh struct {
	Geometry    *Geometry
	Material    *Material
	Matrices    []mgl32.Mat4
	Count       int
	NeedsUpdate bool

	disposable
}

func NewInstancedMesh(geometry *Geometry, material *Material, capacity int) *InstancedMesh {
	matrices := make([]mgl32.Mat4, capacity)
	for i := range matrices {
		matrices[i] = mgl32.Ident4()
	}
	return &InstancedMesh{
		Geometry:    geometry,
		Material:    material,
		Matrices:    matrices,
		Count:       capacity,
		NeedsUpdate: true,
	}
}

func (im *InstancedMesh) Capacity() int {
	return len(im.Matrices)
}

func (im *InstancedMesh) SetMatrixAt(index int, m mgl32.Mat4) bool {
	if index < 0 || index >= len(im.Matrices) {
		return false
	}
	im.Matrices[index] = m
	return true
}

func (im *InstancedMesh) MatrixAt(index int) (mgl32.Mat4, bool) {
	if index < 0 || index >= len(im.Matrices) {
		return mgl32.Mat4{}, false
	}
	return im.Matrices[index], true
}

// Dispose releases the instance buffer. Geometry and material are disposed by their owner.
func (im *InstancedMesh) Dispose() {
	if im.dispose() {
		im.Matrices = nil
		im.Count = 0
	}
}
