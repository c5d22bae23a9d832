package collections

import (
	"CityBuilder/internal/registry"
)

// ModelInstance is one placement request for a registered model type.
// Rotation is XYZ Euler angles in radians. A nil Scale falls back to the
// definition default and a nil Rotation to identity.
type ModelInstance struct {
	InstanceID string         `yaml:"instanceId"`
	ModelType  string         `yaml:"modelType"`
	Position   registry.Vec3  `yaml:"position"`
	Scale      *registry.Vec3 `yaml:"scale,omitempty"`
	Rotation   *registry.Vec3 `yaml:"rotation,omitempty"`
}

// ModelCollection is a named batch of placements. When placed as a group
// every position is relative to Origin.
type ModelCollection struct {
	Name      string          `yaml:"name"`
	Origin    registry.Vec3   `yaml:"origin,omitempty"`
	Instances []ModelInstance `yaml:"instances"`
}

// InstanceSpec is the declarative form of one GPU instance.
type InstanceSpec struct {
	Position registry.Vec3  `yaml:"position"`
	Rotation *registry.Vec3 `yaml:"rotation,omitempty"`
	Scale    *registry.Vec3 `yaml:"scale,omitempty"`
}

// InstancedGroupSpec describes one instanced batch. MaxInstances reserves
// hidden capacity beyond the listed instances.
type InstancedGroupSpec struct {
	ModelType    string         `yaml:"modelType"`
	MaxInstances int            `yaml:"maxInstances,omitempty"`
	Instances    []InstanceSpec `yaml:"instances"`
}

type InstancedCollection struct {
	Name   string               `yaml:"name"`
	Groups []InstancedGroupSpec `yaml:"groups"`
}

// AdSpec places one billboard from a registered ad definition. Zero Width
// or Height keeps the definition size.
type AdSpec struct {
	InstanceID       string         `yaml:"instanceId"`
	AdID             string         `yaml:"adId"`
	Position         registry.Vec3  `yaml:"position"`
	Rotation         *registry.Vec3 `yaml:"rotation,omitempty"`
	Width            float32        `yaml:"width,omitempty"`
	Height           float32        `yaml:"height,omitempty"`
	IncludeInEffects bool           `yaml:"includeInEffects,omitempty"`
}

// File is the top level of a collections document.
type File struct {
	Collections []ModelCollection     `yaml:"collections,omitempty"`
	Instanced   []InstancedCollection `yaml:"instanced,omitempty"`
	Ads         []AdSpec              `yaml:"ads,omitempty"`
}

// Size returns the number of placements the file describes.
func (f *File) Size() (models, instances int) {
	for _, c := range f.Collections {
		models += len(c.Instances)
	}
	for _, c := range f.Instanced {
		for _, g := range c.Groups {
			instances += len(g.Instances)
		}
	}
	return models, instances
}

// Merge appends the collections of other to f.
func (f *File) Merge(other *File) {
	if other == nil {
		return
	}
	f.Collections = append(f.Collections, other.Collections...)
	f.Instanced = append(f.Instanced, other.Instanced...)
	f.Ads = append(f.Ads, other.Ads...)
}
