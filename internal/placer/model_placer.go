package placer

import (
	"CityBuilder/internal/collections"
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlacedModel is the record of one live placement. Position, Scale and
// Rotation always match the transform of Node.
type PlacedModel struct {
	InstanceID string
	ModelType  string
	Collection string
	Position   mgl32.Vec3
	Scale      mgl32.Vec3
	// Rotation is XYZ Euler angles in radians.
	Rotation   mgl32.Vec3
	Definition *registry.ModelDefinition
	Node       *scene.Node

	// owned resources are disposed with the placement (procedural primitives).
	owned []interface{ Dispose() }
}

// LegacyModelConfig places a model straight from a file path.
type LegacyModelConfig struct {
	InstanceID string
	FilePath   string
	Textures   registry.TextureSet
	Position   registry.Vec3
	Scale      *registry.Vec3
	Rotation   *registry.Vec3
}

// ModelPlacer places uniquely identified models into a scene graph and keeps
// the instance id to node mapping. It is safe for concurrent use; all scene
// graph mutations it makes happen under its lock.
type ModelPlacer struct {
	registry *registry.Registry
	assets   AssetLoader

	mu      sync.Mutex
	placed  map[string]*PlacedModel
	pending map[string]struct{}
	groups  map[string]*scene.Node

	workers int
	pool    pond.Pool
}

// NewModelPlacer creates a placer resolving model types through reg and
// loading them through loader. Collections are placed on a pool of eight
// workers unless WithWorkers says otherwise.
func NewModelPlacer(reg *registry.Registry, loader AssetLoader, opts ...Option) *ModelPlacer {
	o := buildOptions(8, opts)
	return &ModelPlacer{
		registry: reg,
		assets:   loader,
		placed:   make(map[string]*PlacedModel),
		pending:  make(map[string]struct{}),
		groups:   make(map[string]*scene.Node),
		workers:  o.workers,
		pool:     pond.NewPool(o.workers),
	}
}

// PlaceModelInstance places inst under parent. An instance id that is already
// placed returns the existing placement; one that is still loading returns
// ErrPlacementInFlight. An empty id is replaced by a generated one.
func (p *ModelPlacer) PlaceModelInstance(ctx context.Context, inst collections.ModelInstance, parent *scene.Node) (*PlacedModel, error) {
	return p.placeInstance(ctx, inst, parent, "")
}

func (p *ModelPlacer) placeInstance(ctx context.Context, inst collections.ModelInstance, parent *scene.Node, collection string) (*PlacedModel, error) {
	d, err := p.registry.MustDefinition(inst.ModelType)
	if err != nil {
		logger.Log.Error("Cannot place model",
			zap.String("instanceId", inst.InstanceID),
			zap.String("modelType", inst.ModelType),
			zap.Error(err))
		return nil, err
	}
	def := &d
	build := func() (*scene.Node, []interface{ Dispose() }, error) {
		if def.Procedural {
			return p.buildProcedural(ctx, def)
		}
		model, err := p.assets.LoadModel(ctx, def.FilePath, def.Textures)
		if err != nil {
			return nil, nil, err
		}
		return model.Root, nil, nil
	}
	rec := &PlacedModel{
		InstanceID: inst.InstanceID,
		ModelType:  def.ID,
		Collection: collection,
		Position:   inst.Position.Vec(),
		Scale:      vecOr(inst.Scale, def.Scale()),
		Rotation:   vecOr(inst.Rotation, mgl32.Vec3{}),
		Definition: def,
	}
	return p.place(rec, parent, build)
}

// PlaceModel places a model from a raw file path. It shares the instance id
// space with registered placements under the LEGACY model type.
func (p *ModelPlacer) PlaceModel(ctx context.Context, cfg LegacyModelConfig, parent *scene.Node) (*PlacedModel, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("%w: legacy placement needs a file path", registry.ErrInvalidDefinition)
	}
	build := func() (*scene.Node, []interface{ Dispose() }, error) {
		model, err := p.assets.LoadModel(ctx, cfg.FilePath, cfg.Textures)
		if err != nil {
			return nil, nil, err
		}
		return model.Root, nil, nil
	}
	rec := &PlacedModel{
		InstanceID: cfg.InstanceID,
		ModelType:  LegacyModelType,
		Position:   cfg.Position.Vec(),
		Scale:      vecOr(cfg.Scale, mgl32.Vec3{1, 1, 1}),
		Rotation:   vecOr(cfg.Rotation, mgl32.Vec3{}),
	}
	return p.place(rec, parent, build)
}

func (p *ModelPlacer) place(rec *PlacedModel, parent *scene.Node, build func() (*scene.Node, []interface{ Dispose() }, error)) (*PlacedModel, error) {
	if rec.InstanceID == "" {
		rec.InstanceID = uuid.NewString()
	}
	id := rec.InstanceID

	p.mu.Lock()
	if existing, ok := p.placed[id]; ok {
		p.mu.Unlock()
		logger.Log.Warn("Instance already placed",
			zap.String("instanceId", id),
			zap.String("modelType", existing.ModelType))
		return existing, nil
	}
	if _, ok := p.pending[id]; ok {
		p.mu.Unlock()
		logger.Log.Warn("Instance placement already in flight", zap.String("instanceId", id))
		return nil, fmt.Errorf("%s: %w", id, ErrPlacementInFlight)
	}
	p.pending[id] = struct{}{}
	p.mu.Unlock()

	node, owned, err := build()

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
	if err != nil {
		logger.Log.Error("Failed to place model",
			zap.String("instanceId", id),
			zap.String("modelType", rec.ModelType),
			zap.Error(err))
		return nil, err
	}

	node.Name = fmt.Sprintf("%s_%s", rec.ModelType, id)
	node.Position = rec.Position
	node.Scale = rec.Scale
	node.Rotation = scene.EulerToQuat(rec.Rotation[0], rec.Rotation[1], rec.Rotation[2])
	node.UserData["instanceId"] = id
	node.UserData["modelType"] = rec.ModelType
	if rec.Definition != nil && rec.Definition.ExcludeFromEffects {
		node.UserData["excludeFromEffects"] = true
	}
	rec.Node = node
	rec.owned = owned

	if parent != nil {
		parent.Add(node)
	}
	p.placed[id] = rec

	logger.Log.Debug("Model placed",
		zap.String("instanceId", id),
		zap.String("modelType", rec.ModelType),
		zap.Float32s("position", rec.Position[:]))
	return rec, nil
}

// buildProcedural creates primitives that have no model file. The placement
// owns the resulting geometry and material.
func (p *ModelPlacer) buildProcedural(ctx context.Context, def *registry.ModelDefinition) (*scene.Node, []interface{ Dispose() }, error) {
	mesh := newGroundMesh(ctx, p.assets, def)
	node := scene.NewMeshNode(def.ID, mesh)
	return node, []interface{ Dispose() }{mesh.Geometry, mesh.Material()}, nil
}

// PlaceModelCollection places every instance of coll directly under parent.
func (p *ModelPlacer) PlaceModelCollection(ctx context.Context, coll collections.ModelCollection, parent *scene.Node) CollectionResult {
	return p.placeCollection(ctx, coll, parent)
}

// PlaceModelCollectionAsGroup places coll under a new group node positioned
// at coll.Origin, so instance positions are relative to the origin.
func (p *ModelPlacer) PlaceModelCollectionAsGroup(ctx context.Context, coll collections.ModelCollection, parent *scene.Node) CollectionResult {
	p.mu.Lock()
	group, ok := p.groups[coll.Name]
	if !ok {
		group = scene.NewNode(coll.Name)
		group.UserData["collection"] = coll.Name
		p.groups[coll.Name] = group
	}
	group.Position = coll.Origin.Vec()
	if parent != nil && group.Parent() != parent {
		parent.Add(group)
	}
	p.mu.Unlock()

	res := p.placeCollection(ctx, coll, group)
	res.Group = group
	return res
}

func (p *ModelPlacer) placeCollection(ctx context.Context, coll collections.ModelCollection, target *scene.Node) CollectionResult {
	res := CollectionResult{Name: coll.Name, Total: len(coll.Instances)}
	placed := make([]*PlacedModel, len(coll.Instances))
	errs := make([]error, len(coll.Instances))

	group := p.pool.NewGroup()
	for i, inst := range coll.Instances {
		group.Submit(func() {
			rec, err := p.placeInstance(ctx, inst, target, coll.Name)
			if err != nil {
				errs[i] = fmt.Errorf("%s/%s: %w", coll.Name, inst.InstanceID, err)
				return
			}
			placed[i] = rec
		})
	}
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}

	for _, rec := range placed {
		if rec != nil {
			res.Placed = append(res.Placed, rec)
		}
	}
	res.Succeeded = len(res.Placed)
	res.Err = errors.Join(errs...)

	logger.Log.Info("Collection placed",
		zap.String("collection", coll.Name),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("total", res.Total))
	return res
}

// RemoveModel detaches the node from its parent and forgets the instance.
// It reports false for an unknown id.
func (p *ModelPlacer) RemoveModel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.placed[id]
	if !ok {
		logger.Log.Warn("Cannot remove unknown instance", zap.String("instanceId", id))
		return false
	}
	p.removeLocked(rec)
	return true
}

func (p *ModelPlacer) removeLocked(rec *PlacedModel) {
	if rec.Node != nil {
		rec.Node.RemoveFromParent()
	}
	for _, r := range rec.owned {
		r.Dispose()
	}
	delete(p.placed, rec.InstanceID)
}

// RemoveCollection removes every placement made by the named collection and
// its group node, if any. It returns the number of removed placements.
func (p *ModelPlacer) RemoveCollection(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, rec := range p.placed {
		if rec.Collection == name {
			p.removeLocked(rec)
			n++
		}
	}
	if g, ok := p.groups[name]; ok {
		g.RemoveFromParent()
		delete(p.groups, name)
	}
	logger.Log.Info("Collection removed", zap.String("collection", name), zap.Int("removed", n))
	return n
}

func (p *ModelPlacer) update(id string, fn func(rec *PlacedModel)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.placed[id]
	if !ok {
		logger.Log.Warn("Cannot update unknown instance", zap.String("instanceId", id))
		return false
	}
	fn(rec)
	return true
}

func (p *ModelPlacer) UpdateModelPosition(id string, pos PartialVec3) bool {
	return p.update(id, func(rec *PlacedModel) {
		rec.Position = pos.Apply(rec.Position)
		rec.Node.Position = rec.Position
	})
}

func (p *ModelPlacer) UpdateModelScale(id string, scale PartialVec3) bool {
	return p.update(id, func(rec *PlacedModel) {
		rec.Scale = scale.Apply(rec.Scale)
		rec.Node.Scale = rec.Scale
	})
}

// UpdateModelRotation takes Euler angles in radians.
func (p *ModelPlacer) UpdateModelRotation(id string, rot PartialVec3) bool {
	return p.update(id, func(rec *PlacedModel) {
		rec.Rotation = rot.Apply(rec.Rotation)
		rec.Node.Rotation = scene.EulerToQuat(rec.Rotation[0], rec.Rotation[1], rec.Rotation[2])
	})
}

// GetPlacedModel returns a snapshot of the placement record.
func (p *ModelPlacer) GetPlacedModel(id string) (PlacedModel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.placed[id]
	if !ok {
		return PlacedModel{}, false
	}
	return *rec, true
}

// PlacedModels returns snapshots of every placement sorted by instance id.
func (p *ModelPlacer) PlacedModels() []PlacedModel {
	p.mu.Lock()
	out := make([]PlacedModel, 0, len(p.placed))
	for _, rec := range p.placed {
		out = append(out, *rec)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// GetModelStats counts placements per model type.
func (p *ModelPlacer) GetModelStats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := make(map[string]int)
	for _, rec := range p.placed {
		stats[rec.ModelType]++
	}
	return stats
}

// Count returns the number of placed models.
func (p *ModelPlacer) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.placed)
}

// Dispose removes every placement and group node. Shared asset resources
// stay with the asset manager.
func (p *ModelPlacer) Dispose() {
	p.mu.Lock()
	n := len(p.placed)
	for _, rec := range p.placed {
		p.removeLocked(rec)
	}
	for name, g := range p.groups {
		g.RemoveFromParent()
		delete(p.groups, name)
	}
	p.mu.Unlock()
	p.pool.StopAndWait()
	logger.Log.Info("Model placer disposed", zap.Int("removed", n))
}
