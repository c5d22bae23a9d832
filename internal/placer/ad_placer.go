package placer

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdPlacement requests one billboard. Inline is used when AdID is not
// registered. Zero Width or Height falls back to the definition size.
type AdPlacement struct {
	InstanceID string
	AdID       string
	Inline     *registry.AdDefinition
	Position   registry.Vec3
	Rotation   *registry.Vec3
	Width      float32
	Height     float32
	// IncludeInEffects opts the billboard back into bloom and other passes.
	IncludeInEffects bool
}

type PlacedAd struct {
	InstanceID string
	Definition registry.AdDefinition
	Node       *scene.Node
}

// AdPlacer builds emissive textured planes from ad definitions.
type AdPlacer struct {
	registry *registry.Registry
	assets   AssetLoader

	mu  sync.Mutex
	ads map[string]*PlacedAd
}

// NewAdPlacer creates a placer for the billboards registered in reg.
func NewAdPlacer(reg *registry.Registry, loader AssetLoader) *AdPlacer {
	return &AdPlacer{
		registry: reg,
		assets:   loader,
		ads:      make(map[string]*PlacedAd),
	}
}

// RegisterAd adds or replaces an ad definition at runtime.
func (ap *AdPlacer) RegisterAd(def registry.AdDefinition) error {
	return ap.registry.AddAd(def)
}

// PlaceAd builds the billboard and attaches it to parent. It fails with
// registry.ErrUnknownAd when the id is not registered and no inline
// definition is given.
func (ap *AdPlacer) PlaceAd(ctx context.Context, req AdPlacement, parent *scene.Node) (*PlacedAd, error) {
	def, ok := ap.registry.GetAd(req.AdID)
	if !ok {
		if req.Inline == nil {
			return nil, fmt.Errorf("%w: %q", registry.ErrUnknownAd, req.AdID)
		}
		def = *req.Inline
		if def.ID == "" {
			def.ID = req.AdID
		}
	}
	if req.InstanceID == "" {
		req.InstanceID = uuid.NewString()
	}

	ap.mu.Lock()
	if existing, ok := ap.ads[req.InstanceID]; ok {
		ap.mu.Unlock()
		logger.Log.Warn("Ad already placed", zap.String("instanceId", req.InstanceID))
		return existing, nil
	}
	ap.mu.Unlock()

	width, height := req.Width, req.Height
	if width <= 0 {
		width = def.Width
	}
	if height <= 0 {
		height = def.Height
	}
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}

	mat := ap.buildMaterial(ctx, def)
	node := scene.NewMeshNode(fmt.Sprintf("AD_%s_%s", def.ID, req.InstanceID), scene.NewMesh(scene.NewPlaneGeometry(width, height), mat))
	node.Position = req.Position.Vec()
	if req.Rotation != nil {
		node.Rotation = scene.EulerToQuat(req.Rotation.X, req.Rotation.Y, req.Rotation.Z)
	}
	node.UserData["instanceId"] = req.InstanceID
	node.UserData["adId"] = def.ID
	node.UserData["excludeFromEffects"] = !req.IncludeInEffects

	placed := &PlacedAd{InstanceID: req.InstanceID, Definition: def, Node: node}

	ap.mu.Lock()
	defer ap.mu.Unlock()
	if existing, ok := ap.ads[req.InstanceID]; ok {
		disposeAdNode(node)
		return existing, nil
	}
	if parent != nil {
		parent.Add(node)
	}
	ap.ads[req.InstanceID] = placed

	logger.Log.Debug("Ad placed",
		zap.String("instanceId", req.InstanceID),
		zap.String("adId", def.ID),
		zap.Float32("width", width),
		zap.Float32("height", height))
	return placed, nil
}

func (ap *AdPlacer) buildMaterial(ctx context.Context, def registry.AdDefinition) *scene.Material {
	mat := scene.NewMaterial("ad_" + def.ID)
	mat.Transparent = true
	mat.AlphaTest = 0.05
	mat.ToneMapped = false
	if def.IsDoubleSided() {
		mat.Side = scene.DoubleSide
	}

	mat.Emissive = mgl32.Vec3{1, 1, 1}
	if def.EmissiveColor != "" {
		c, err := scene.ParseColor(def.EmissiveColor)
		if err != nil {
			logger.Log.Warn("Ignoring ad emissive colour", zap.String("adId", def.ID), zap.Error(err))
		} else {
			mat.Emissive = c
		}
	}
	mat.EmissiveIntensity = def.EmissiveIntensity
	if mat.EmissiveIntensity <= 0 {
		mat.EmissiveIntensity = 1
	}

	set := registry.TextureSet{
		registry.RoleBase:     def.DiffuseTexture,
		registry.RoleEmissive: def.EmissiveTexture,
	}
	// Colour roles come back as sRGB; cached textures are shared and left alone.
	textures := ap.assets.LoadTextures(ctx, set)
	if t := textures[registry.RoleBase]; t != nil {
		mat.Map = t
		mat.AlphaMap = t
	}
	if t := textures[registry.RoleEmissive]; t != nil {
		mat.EmissiveMap = t
	} else {
		mat.EmissiveMap = mat.Map
	}
	return mat
}

// disposeAdNode frees the plane and material; textures stay in the cache.
func disposeAdNode(n *scene.Node) {
	if n.Mesh == nil {
		return
	}
	n.Mesh.Geometry.Dispose()
	for _, m := range n.Mesh.Materials {
		m.Dispose()
	}
}

// RemoveAd detaches and frees a placed billboard.
func (ap *AdPlacer) RemoveAd(instanceID string) bool {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ad, ok := ap.ads[instanceID]
	if !ok {
		logger.Log.Warn("Cannot remove unknown ad", zap.String("instanceId", instanceID))
		return false
	}
	ad.Node.RemoveFromParent()
	disposeAdNode(ad.Node)
	delete(ap.ads, instanceID)
	return true
}

// Get returns the placed billboard with instanceID.
func (ap *AdPlacer) Get(instanceID string) (*PlacedAd, bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ad, ok := ap.ads[instanceID]
	return ad, ok
}

// PlacedAds returns the placed instance ids in sorted order.
func (ap *AdPlacer) PlacedAds() []string {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ids := make([]string, 0, len(ap.ads))
	for id := range ap.ads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispose detaches and frees every placed billboard.
func (ap *AdPlacer) Dispose() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	for id, ad := range ap.ads {
		ad.Node.RemoveFromParent()
		disposeAdNode(ad.Node)
		delete(ap.ads, id)
	}
}
