package placer

import (
	"CityBuilder/internal/collections"
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// InstanceData is the logical transform of one instance. Rotation is XYZ
// Euler angles in radians.
type InstanceData struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

func (d InstanceData) Matrix() mgl32.Mat4 {
	return scene.Compose(d.Position, scene.EulerToQuat(d.Rotation[0], d.Rotation[1], d.Rotation[2]), d.Scale)
}

// hiddenMatrix renders a spare slot at zero scale.
var hiddenMatrix = scene.Compose(mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{})

// InstancedGroup is one instanced draw batch. Instances holds the live
// logical transforms; buffer slots past len(Instances) are hidden.
type InstancedGroup struct {
	ModelType string
	Node      *scene.Node
	Mesh      *scene.InstancedMesh
	Instances []InstanceData

	owned []interface{ Dispose() }
}

// MaxInstances is the allocated buffer capacity.
func (g *InstancedGroup) MaxInstances() int {
	return g.Mesh.Capacity()
}

// InstancedPlacer draws many copies of one model type through a single
// instanced mesh per type.
type InstancedPlacer struct {
	registry *registry.Registry
	assets   AssetLoader

	mu     sync.Mutex
	groups map[string]*InstancedGroup

	workers int
	pool    pond.Pool
}

// NewInstancedPlacer creates a placer for instanced batches. Slot matrices
// are written on a pool of four workers unless WithWorkers says otherwise.
func NewInstancedPlacer(reg *registry.Registry, loader AssetLoader, opts ...Option) *InstancedPlacer {
	o := buildOptions(4, opts)
	return &InstancedPlacer{
		registry: reg,
		assets:   loader,
		groups:   make(map[string]*InstancedGroup),
		workers:  o.workers,
		pool:     pond.NewPool(o.workers),
	}
}

// CreateInstancedModel builds and tracks the batch for modelType. The buffer
// holds max(maxInstances, len(instances)) slots. The model must contain
// exactly one mesh. A batch already tracked for modelType is replaced.
func (ip *InstancedPlacer) CreateInstancedModel(ctx context.Context, modelType string, instances []InstanceData, maxInstances int) (*InstancedGroup, error) {
	def, err := ip.registry.MustDefinition(modelType)
	if err != nil {
		return nil, err
	}

	var (
		geo   *scene.Geometry
		mat   *scene.Material
		owned []interface{ Dispose() }
	)
	if def.Procedural {
		mesh := newGroundMesh(ctx, ip.assets, &def)
		geo, mat = mesh.Geometry, mesh.Material()
		owned = append(owned, geo)
	} else {
		model, err := ip.assets.LoadModel(ctx, def.FilePath, def.Textures)
		if err != nil {
			return nil, err
		}
		meshes := model.Root.MeshNodes()
		if len(meshes) != 1 {
			return nil, &MeshCountError{ModelType: modelType, Count: len(meshes)}
		}
		geo = meshes[0].Mesh.Geometry
		// The batch gets its own material so disposing it leaves the cached template intact.
		mat = meshes[0].Mesh.Material().Clone()
	}
	owned = append(owned, mat)

	capacity := maxInstances
	if len(instances) > capacity {
		capacity = len(instances)
	}
	im := scene.NewInstancedMesh(geo, mat, capacity)
	for i := 0; i < capacity; i++ {
		if i < len(instances) {
			im.SetMatrixAt(i, instances[i].Matrix())
		} else {
			im.SetMatrixAt(i, hiddenMatrix)
		}
	}
	im.Count = capacity
	im.NeedsUpdate = true

	node := scene.NewNode(modelType + "_instanced")
	node.Instanced = im
	node.UserData["modelType"] = modelType
	if def.ExcludeFromEffects {
		node.UserData["excludeFromEffects"] = true
	}

	g := &InstancedGroup{
		ModelType: modelType,
		Node:      node,
		Mesh:      im,
		Instances: append([]InstanceData(nil), instances...),
		owned:     append(owned, im),
	}

	ip.mu.Lock()
	if old, ok := ip.groups[modelType]; ok {
		logger.Log.Warn("Instanced group replaced", zap.String("modelType", modelType))
		ip.releaseLocked(old)
	}
	ip.groups[modelType] = g
	ip.mu.Unlock()

	logger.Log.Info("Instanced model created",
		zap.String("modelType", modelType),
		zap.Int("instances", len(instances)),
		zap.Int("capacity", capacity))
	return g, nil
}

// InstancedResult reports a PlaceInstancedCollection call.
type InstancedResult struct {
	Name      string
	Groups    []*InstancedGroup
	Succeeded int
	Total     int
	Err       error
}

// PlaceInstancedCollection creates and attaches every group of coll. A group
// that fails is logged and skipped.
func (ip *InstancedPlacer) PlaceInstancedCollection(ctx context.Context, coll collections.InstancedCollection, parent *scene.Node) InstancedResult {
	res := InstancedResult{Name: coll.Name, Total: len(coll.Groups)}
	created := make([]*InstancedGroup, len(coll.Groups))
	errs := make([]error, len(coll.Groups))

	group := ip.pool.NewGroup()
	for i, spec := range coll.Groups {
		group.Submit(func() {
			def, ok := ip.registry.GetDefinition(spec.ModelType)
			defaultScale := mgl32.Vec3{1, 1, 1}
			if ok {
				defaultScale = def.Scale()
			}
			g, err := ip.CreateInstancedModel(ctx, spec.ModelType, FromSpecs(spec.Instances, defaultScale), spec.MaxInstances)
			if err != nil {
				logger.Log.Error("Failed to create instanced group",
					zap.String("collection", coll.Name),
					zap.String("modelType", spec.ModelType),
					zap.Error(err))
				errs[i] = fmt.Errorf("%s/%s: %w", coll.Name, spec.ModelType, err)
				return
			}
			created[i] = g
		})
	}
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}

	ip.mu.Lock()
	for _, g := range created {
		if g == nil {
			continue
		}
		// A later create for the same type may have replaced this group.
		if ip.groups[g.ModelType] != g {
			continue
		}
		if parent != nil {
			parent.Add(g.Node)
		}
		res.Groups = append(res.Groups, g)
	}
	ip.mu.Unlock()

	res.Succeeded = len(res.Groups)
	res.Err = errors.Join(errs...)
	logger.Log.Info("Instanced collection placed",
		zap.String("collection", coll.Name),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("total", res.Total))
	return res
}

// FromSpecs converts declarative instances, filling a missing scale with
// defaultScale and a missing rotation with zero.
func FromSpecs(specs []collections.InstanceSpec, defaultScale mgl32.Vec3) []InstanceData {
	out := make([]InstanceData, len(specs))
	for i, s := range specs {
		out[i] = InstanceData{
			Position: s.Position.Vec(),
			Rotation: vecOr(s.Rotation, mgl32.Vec3{}),
			Scale:    vecOr(s.Scale, defaultScale),
		}
	}
	return out
}

// UpdateInstance changes the given components of one live instance and
// marks the buffer for upload. It reports false for an untracked type or an
// index outside the live instances.
func (ip *InstancedPlacer) UpdateInstance(modelType string, index int, position, rotation, scale *mgl32.Vec3) bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	g, ok := ip.groups[modelType]
	if !ok || index < 0 || index >= len(g.Instances) {
		logger.Log.Warn("Cannot update instance",
			zap.String("modelType", modelType),
			zap.Int("index", index))
		return false
	}
	d := g.Instances[index]
	if position != nil {
		d.Position = *position
	}
	if rotation != nil {
		d.Rotation = *rotation
	}
	if scale != nil {
		d.Scale = *scale
	}
	g.Instances[index] = d
	g.Mesh.SetMatrixAt(index, d.Matrix())
	g.Mesh.NeedsUpdate = true
	return true
}

// AddInstance fills the next hidden slot. It reports false when the buffer
// is full; the buffer is never reallocated.
func (ip *InstancedPlacer) AddInstance(modelType string, d InstanceData) (int, bool) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	g, ok := ip.groups[modelType]
	if !ok || len(g.Instances) >= g.Mesh.Capacity() {
		return -1, false
	}
	idx := len(g.Instances)
	g.Instances = append(g.Instances, d)
	g.Mesh.SetMatrixAt(idx, d.Matrix())
	g.Mesh.NeedsUpdate = true
	return idx, true
}

// Group returns the tracked batch for modelType.
func (ip *InstancedPlacer) Group(modelType string) (*InstancedGroup, bool) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	g, ok := ip.groups[modelType]
	return g, ok
}

// ModelTypes returns the tracked model types in sorted order.
func (ip *InstancedPlacer) ModelTypes() []string {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	out := make([]string, 0, len(ip.groups))
	for t := range ip.groups {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RemoveInstancedModel detaches and releases the batch for modelType.
func (ip *InstancedPlacer) RemoveInstancedModel(modelType string) bool {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	g, ok := ip.groups[modelType]
	if !ok {
		logger.Log.Warn("Cannot remove unknown instanced model", zap.String("modelType", modelType))
		return false
	}
	ip.releaseLocked(g)
	delete(ip.groups, modelType)
	return true
}

func (ip *InstancedPlacer) releaseLocked(g *InstancedGroup) {
	g.Node.RemoveFromParent()
	for _, r := range g.owned {
		r.Dispose()
	}
}

// Dispose releases every batch. It is safe to call on an empty placer and
// more than once.
func (ip *InstancedPlacer) Dispose() {
	ip.mu.Lock()
	n := len(ip.groups)
	for t, g := range ip.groups {
		ip.releaseLocked(g)
		delete(ip.groups, t)
	}
	ip.mu.Unlock()
	if n > 0 {
		logger.Log.Info("Instanced placer disposed", zap.Int("groups", n))
	}
}

// InstanceOptions control CreateInstancesFromPositions.
type InstanceOptions struct {
	// RandomRotation replaces the Y rotation with a uniform angle in [0, 2π).
	RandomRotation bool
	// ScaleRange, when set, replaces the scale with a uniform factor in [min, max].
	ScaleRange *[2]float32
	// Rand is the random source; nil uses a time-independent default seed.
	Rand *rand.Rand
}

// CreateInstancesFromPositions builds instance data sharing one rotation and
// scale, optionally randomised per instance.
func CreateInstancesFromPositions(positions []mgl32.Vec3, rotation, scale mgl32.Vec3, opts InstanceOptions) []InstanceData {
	rng := opts.Rand
	if rng == nil && (opts.RandomRotation || opts.ScaleRange != nil) {
		rng = rand.New(rand.NewSource(1))
	}
	out := make([]InstanceData, len(positions))
	for i, p := range positions {
		d := InstanceData{Position: p, Rotation: rotation, Scale: scale}
		if opts.RandomRotation {
			d.Rotation[1] = rng.Float32() * 2 * math.Pi
		}
		if r := opts.ScaleRange; r != nil {
			s := r[0] + rng.Float32()*(r[1]-r[0])
			d.Scale = mgl32.Vec3{s, s, s}
		}
		out[i] = d
	}
	return out
}
