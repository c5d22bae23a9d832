// Package city ties the registry, the asset manager, the placers and the
// effect decorators into one scene that can be loaded from collection files.
package city

import (
	"CityBuilder/internal/assets"
	"CityBuilder/internal/collections"
	"CityBuilder/internal/config"
	"CityBuilder/internal/effects"
	"CityBuilder/internal/logger"
	"CityBuilder/internal/placer"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Options tune how collections are placed.
type Options struct {
	// DefaultMaxInstances is used for instanced groups that reserve no capacity.
	DefaultMaxInstances int
	// Seed drives the emissive colour picks. Zero seeds from 1.
	Seed int64
	// RoofLights are used for definitions with roof lights.
	RoofLights effects.RoofLightOptions
	// Workers bounds the placer pools. Zero keeps their defaults.
	Workers int
}

// DefaultOptions seeds from 1 and uses the default roof light layout.
func DefaultOptions() Options {
	return Options{Seed: 1, RoofLights: effects.DefaultRoofLightOptions()}
}

// Summary reports what one Place call added.
type Summary struct {
	Source    string
	Models    int
	Instanced int
	Ads       int
	Emissive  int
	RoofLight int
	Err       error
}

// source remembers what a document placed so it can be unloaded again.
type source struct {
	collections    []string
	instancedTypes []string
	ads            []string
	materials      []*scene.Material
}

// City owns the scene graph and everything placed into it.
type City struct {
	Scene     *scene.Scene
	Registry  *registry.Registry
	Assets    *assets.Manager
	Models    *placer.ModelPlacer
	Instanced *placer.InstancedPlacer
	Ads       *placer.AdPlacer

	// Sync runs fn where the scene graph may be mutated and waits for it.
	// Nil runs fn on the calling goroutine.
	Sync func(fn func())

	opts Options
	rng  *rand.Rand

	mu      sync.Mutex
	sources map[string]*source
}

// New creates an empty city placing through reg and mgr.
func New(reg *registry.Registry, mgr *assets.Manager, opts Options) *City {
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	workers := placer.WithWorkers(opts.Workers)
	return &City{
		Scene:     scene.NewScene(),
		Registry:  reg,
		Assets:    mgr,
		Models:    placer.NewModelPlacer(reg, mgr, workers),
		Instanced: placer.NewInstancedPlacer(reg, mgr, workers),
		Ads:       placer.NewAdPlacer(reg, mgr),
		opts:      opts,
		rng:       rand.New(rand.NewSource(seed)),
		sources:   make(map[string]*source),
	}
}

// FromConfig builds the built-in registry, loads extra definitions named by
// the config and creates the asset manager.
func FromConfig(cfg *config.Config) (*City, error) {
	reg, err := registry.NewDefault()
	if err != nil {
		return nil, err
	}
	if cfg.Scene.Definitions != "" {
		n, err := reg.LoadFile(cfg.Scene.Definitions)
		if err != nil {
			return nil, fmt.Errorf("definitions: %w", err)
		}
		logger.Log.Info("Extra definitions loaded", zap.String("path", cfg.Scene.Definitions), zap.Int("count", n))
	}
	opts := DefaultOptions()
	opts.DefaultMaxInstances = cfg.Instancing.DefaultMaxInstances
	opts.Workers = cfg.Assets.Workers
	return New(reg, assets.NewManager(cfg.AssetOptions()...), opts), nil
}

func (c *City) sync(fn func()) {
	if c.Sync == nil {
		fn()
		return
	}
	c.Sync(fn)
}

// SourceKey is the name a file is loaded under: its absolute, cleaned path.
func SourceKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// LoadFile preloads and places the collections of the document at path,
// recording them under SourceKey(path).
func (c *City) LoadFile(ctx context.Context, path string) (Summary, error) {
	path = SourceKey(path)
	f, err := collections.LoadFile(path)
	if err != nil {
		return Summary{Source: path}, err
	}
	c.Preload(ctx, f)
	return c.Place(ctx, path, f), nil
}

// ReloadFile replaces whatever path placed before with its current content.
// The old placements stay when the file no longer parses.
func (c *City) ReloadFile(ctx context.Context, path string) (Summary, error) {
	path = SourceKey(path)
	f, err := collections.LoadFile(path)
	if err != nil {
		logger.Log.Warn("Reload skipped", zap.String("path", path), zap.Error(err))
		return Summary{Source: path}, err
	}
	c.Preload(ctx, f)
	var sum Summary
	c.sync(func() {
		c.unload(path)
		sum = c.place(ctx, path, f)
	})
	return sum, nil
}

// Preload warms the asset cache for every model a document references.
func (c *City) Preload(ctx context.Context, f *collections.File) assets.BatchResult {
	seen := map[string]bool{}
	var reqs []assets.ModelRequest
	add := func(modelType string) {
		if seen[modelType] {
			return
		}
		seen[modelType] = true
		def, ok := c.Registry.GetDefinition(modelType)
		if !ok || def.Procedural || def.FilePath == "" {
			return
		}
		reqs = append(reqs, assets.ModelRequest{Path: def.FilePath, Textures: def.Textures})
	}
	for _, coll := range f.Collections {
		for _, inst := range coll.Instances {
			add(inst.ModelType)
		}
	}
	for _, coll := range f.Instanced {
		for _, g := range coll.Groups {
			add(g.ModelType)
		}
	}
	return c.Assets.PreloadModels(ctx, reqs)
}

// Place adds every collection, instanced group and ad of f, recording them
// under name. Placing the same name twice adds to what is already there.
func (c *City) Place(ctx context.Context, name string, f *collections.File) Summary {
	var sum Summary
	c.sync(func() { sum = c.place(ctx, name, f) })
	return sum
}

func (c *City) place(ctx context.Context, name string, f *collections.File) Summary {
	c.mu.Lock()
	src, ok := c.sources[name]
	if !ok {
		src = &source{}
		c.sources[name] = src
	}
	c.mu.Unlock()

	sum := Summary{Source: name}
	var errs []error
	root := c.Scene.Node

	for _, coll := range f.Collections {
		res := c.Models.PlaceModelCollectionAsGroup(ctx, coll, root)
		src.collections = append(src.collections, coll.Name)
		sum.Models += res.Succeeded
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
		for _, rec := range res.Placed {
			e, r := c.decorate(rec, src)
			sum.Emissive += e
			sum.RoofLight += r
		}
	}

	for _, coll := range f.Instanced {
		coll.Groups = append([]collections.InstancedGroupSpec(nil), coll.Groups...)
		for i := range coll.Groups {
			if coll.Groups[i].MaxInstances == 0 {
				coll.Groups[i].MaxInstances = c.opts.DefaultMaxInstances
			}
		}
		res := c.Instanced.PlaceInstancedCollection(ctx, coll, root)
		for _, g := range res.Groups {
			src.instancedTypes = append(src.instancedTypes, g.ModelType)
			sum.Instanced += len(g.Instances)
		}
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}

	for _, ad := range f.Ads {
		placed, err := c.Ads.PlaceAd(ctx, placer.AdPlacement{
			InstanceID:       ad.InstanceID,
			AdID:             ad.AdID,
			Position:         ad.Position,
			Rotation:         ad.Rotation,
			Width:            ad.Width,
			Height:           ad.Height,
			IncludeInEffects: ad.IncludeInEffects,
		}, root)
		if err != nil {
			errs = append(errs, fmt.Errorf("ad %s: %w", ad.AdID, err))
			continue
		}
		src.ads = append(src.ads, placed.InstanceID)
		sum.Ads++
	}

	sum.Err = errors.Join(errs...)
	logger.Log.Info("Source placed",
		zap.String("source", name),
		zap.Int("models", sum.Models),
		zap.Int("instances", sum.Instanced),
		zap.Int("ads", sum.Ads),
		zap.Int("emissive", sum.Emissive),
		zap.Int("roofLights", sum.RoofLight))
	return sum
}

// decorate applies the emissive and roof light effects of the placement's
// definition.
func (c *City) decorate(rec *placer.PlacedModel, src *source) (emissive, roofLights int) {
	if rec.Definition == nil || rec.Node == nil {
		return 0, 0
	}
	def := *rec.Definition
	c.mu.Lock()
	clones := effects.ApplyEmissive(rec.Node, def, c.rng)
	src.materials = append(src.materials, clones...)
	c.mu.Unlock()
	if def.HasRoofLights {
		roofLights = len(effects.AddRoofLights(rec.Node, def, c.opts.RoofLights))
	}
	return len(clones), roofLights
}

// Unload removes everything placed under name, or under SourceKey(name) for
// a file loaded by LoadFile. It returns the number of removed placements.
func (c *City) Unload(name string) int {
	var n int
	c.sync(func() {
		n = c.unload(name)
		if n == 0 {
			n = c.unload(SourceKey(name))
		}
	})
	return n
}

func (c *City) unload(name string) int {
	c.mu.Lock()
	src, ok := c.sources[name]
	delete(c.sources, name)
	c.mu.Unlock()
	if !ok {
		return 0
	}
	n := 0
	for _, coll := range src.collections {
		n += c.Models.RemoveCollection(coll)
	}
	for _, t := range src.instancedTypes {
		if c.Instanced.RemoveInstancedModel(t) {
			n++
		}
	}
	for _, id := range src.ads {
		if c.Ads.RemoveAd(id) {
			n++
		}
	}
	for _, m := range src.materials {
		m.Dispose()
	}
	logger.Log.Info("Source unloaded", zap.String("source", name), zap.Int("removed", n))
	return n
}

// Sources lists the loaded document names.
func (c *City) Sources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sources))
	for name := range c.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stats is a snapshot of the scene contents and the asset caches.
type Stats struct {
	Models    map[string]int
	Instanced map[string]int
	Ads       int
	Assets    assets.Stats
}

// Stats collects the current counts from every placer and the asset manager.
func (c *City) Stats() Stats {
	s := Stats{
		Models:    c.Models.GetModelStats(),
		Instanced: map[string]int{},
		Ads:       len(c.Ads.PlacedAds()),
		Assets:    c.Assets.Stats(),
	}
	for _, t := range c.Instanced.ModelTypes() {
		if g, ok := c.Instanced.Group(t); ok {
			s.Instanced[t] = len(g.Instances)
		}
	}
	return s
}

// Dispose tears down every placement and then the asset caches.
func (c *City) Dispose() {
	c.sync(func() {
		c.mu.Lock()
		for name, src := range c.sources {
			for _, m := range src.materials {
				m.Dispose()
			}
			delete(c.sources, name)
		}
		c.mu.Unlock()
		c.Ads.Dispose()
		c.Instanced.Dispose()
		c.Models.Dispose()
	})
	c.Assets.Dispose()
}
