package placer

import (
	"CityBuilder/internal/assets"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// LegacyModelType marks placements made from a raw file path rather than
// a registered definition.
const LegacyModelType = "LEGACY"

var (
	ErrPlacementInFlight = errors.New("placement already in flight")
	ErrNoMesh            = errors.New("model has no mesh")
	ErrMeshCount         = errors.New("instancing requires exactly 1 mesh")
	ErrUnknownInstance   = errors.New("unknown instance")
)

// MeshCountError reports a model unsuitable for instancing.
type MeshCountError struct {
	ModelType string
	Count     int
}

func (e *MeshCountError) Error() string {
	return fmt.Sprintf("%s: model has %d meshes; instancing requires exactly 1", e.ModelType, e.Count)
}

func (e *MeshCountError) Unwrap() error {
	if e.Count == 0 {
		return ErrNoMesh
	}
	return ErrMeshCount
}

// AssetLoader is the part of the asset manager the placers depend on.
type AssetLoader interface {
	LoadModel(ctx context.Context, path string, overrides registry.TextureSet) (*assets.LoadedModel, error)
	// LoadTextures returns colour roles tagged sRGB. The textures are shared
	// and must not be modified.
	LoadTextures(ctx context.Context, set registry.TextureSet) map[registry.TextureRole]*scene.Texture
}

// Option configures a placer.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers bounds how many placements or instance batches run at once.
// Non-positive values keep the default.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func buildOptions(workers int, opts []Option) options {
	o := options{workers: workers}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PartialVec3 updates only the components that are set.
type PartialVec3 struct {
	X, Y, Z *float32
}

func (p PartialVec3) Apply(v mgl32.Vec3) mgl32.Vec3 {
	if p.X != nil {
		v[0] = *p.X
	}
	if p.Y != nil {
		v[1] = *p.Y
	}
	if p.Z != nil {
		v[2] = *p.Z
	}
	return v
}

func (p PartialVec3) IsZero() bool {
	return p.X == nil && p.Y == nil && p.Z == nil
}

// Full sets every component from v.
func Full(v mgl32.Vec3) PartialVec3 {
	x, y, z := v[0], v[1], v[2]
	return PartialVec3{X: &x, Y: &y, Z: &z}
}

func OnlyX(x float32) PartialVec3 { return PartialVec3{X: &x} }
func OnlyY(y float32) PartialVec3 { return PartialVec3{Y: &y} }
func OnlyZ(z float32) PartialVec3 { return PartialVec3{Z: &z} }

func vecOr(v *registry.Vec3, fallback mgl32.Vec3) mgl32.Vec3 {
	if v == nil {
		return fallback
	}
	return v.Vec()
}

// CollectionResult reports a batch placement. Err joins the per-item failures.
type CollectionResult struct {
	Name      string
	Group     *scene.Node
	Placed    []*PlacedModel
	Succeeded int
	Total     int
	Err       error
}
