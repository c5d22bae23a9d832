package scene

// Mesh pairs a geometry with one material per geometry group.
type Mesh struct {
	Geometry  *Geometry
	Materials []*Material
}

func NewMesh(geometry *Geometry, materials ...*Material) *Mesh {
	return &Mesh{Geometry: geometry, Materials: materials}
}

// Material returns the first material, or nil.
func (m *Mesh) Material() *Material {
	if len(m.Materials) == 0 {
		return nil
	}
	return m.Materials[0]
}

// PointLight is a small light attached to a node, used for roof and sign lights.
type PointLight struct {
	Color     [3]float32
	Intensity float32
	Distance  float32
}
