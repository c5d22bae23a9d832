package assets

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/registry"
	"CityBuilder/internal/scene"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultWorkers = 8

// Stats provides debugging information about the caches.
type Stats struct {
	Textures       int
	Models         int
	AlphaMasks     int
	CacheHits      int
	CacheMisses    int
	TextureDecodes int
	ModelParses    int
}

// Manager loads and caches textures and model templates and owns every
// resource it creates. It is safe for concurrent use.
type Manager struct {
	root      string
	workers   int
	harmonize HarmonizeOptions

	mu       sync.RWMutex
	textures map[string]*scene.Texture
	models   map[string]*LoadedModel
	masks    map[uint64]*scene.Texture
	// srgb holds the colour-space variants of cached linear textures, keyed by
	// the source texture id.
	srgb     map[uint64]*scene.Texture
	disposed bool
	stats    Stats

	textureFlight singleflight.Group
	modelFlight   singleflight.Group

	pool pond.Pool
}

// Option configures a Manager.
type Option func(*Manager)

// WithRoot resolves relative asset paths against dir.
func WithRoot(dir string) Option {
	return func(m *Manager) { m.root = dir }
}

// WithWorkers bounds the preload fan-out.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithHarmonize sets the PBR normalisation applied to every template.
func WithHarmonize(opts HarmonizeOptions) Option {
	return func(m *Manager) { m.harmonize = opts }
}

// NewManager creates an empty manager. The worker pool used by the preload
// batches is started here and stopped by Dispose.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		workers:   defaultWorkers,
		harmonize: DefaultHarmonizeOptions(),
		textures:  make(map[string]*scene.Texture),
		models:    make(map[string]*LoadedModel),
		masks:     make(map[uint64]*scene.Texture),
		srgb:      make(map[uint64]*scene.Texture),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pool = pond.NewPool(m.workers)
	return m
}

// resolve maps path onto the file it names. The result is the cache key, so
// every spelling of the same file shares one entry.
func (m *Manager) resolve(path string) string {
	if m.root == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(m.root, path)
}

// LoadTexture returns the cached texture for path, decoding it on first use.
// Concurrent first requests share a single decode. Cancelling ctx abandons
// the wait but not the decode, whose result is still cached. The texture
// keeps the colour space of the request that first decoded it.
func (m *Manager) LoadTexture(ctx context.Context, path string) (*scene.Texture, error) {
	return m.loadTexture(ctx, m.resolve(path), scene.ColorSpaceLinear)
}

// loadColorTexture is LoadTexture for colour data. A fresh decode is tagged
// sRGB; a texture already cached as linear is served as its sRGB variant.
func (m *Manager) loadColorTexture(ctx context.Context, key string) (*scene.Texture, error) {
	tex, err := m.loadTexture(ctx, key, scene.ColorSpaceSRGB)
	if err != nil {
		return nil, err
	}
	return m.srgbTexture(tex), nil
}

// loadTexture looks up or decodes the file at key. space applies only when
// this call starts the decode. Cached textures are never modified after
// they are published.
func (m *Manager) loadTexture(ctx context.Context, key string, space scene.ColorSpace) (*scene.Texture, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if tex, ok := m.textures[key]; ok {
		m.stats.CacheHits++
		m.mu.Unlock()
		logger.Log.Debug("Texture cache hit", zap.String("path", key))
		return tex, nil
	}
	m.stats.CacheMisses++
	m.mu.Unlock()

	ch := m.textureFlight.DoChan(key, func() (any, error) {
		return m.decodeTexture(key, space)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*scene.Texture), nil
	}
}

func (m *Manager) decodeTexture(key string, space scene.ColorSpace) (*scene.Texture, error) {
	// A flight that started after a previous one finished finds the result here.
	m.mu.RLock()
	tex, ok := m.textures[key]
	m.mu.RUnlock()
	if ok {
		return tex, nil
	}

	data, err := os.ReadFile(key)
	if err != nil {
		logger.Log.Error("Failed to read texture", zap.String("path", key), zap.Error(err))
		return nil, fmt.Errorf("load texture %q: %w", key, err)
	}
	img, err := decodeImage(data)
	if err != nil {
		logger.Log.Error("Failed to decode texture", zap.String("path", key), zap.Error(err))
		return nil, fmt.Errorf("load texture %q: %w", key, err)
	}
	tex = scene.NewTexture(key, img)
	tex.WrapS, tex.WrapT = scene.WrapRepeat, scene.WrapRepeat
	tex.ColorSpace = space

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TextureDecodes++
	if m.disposed {
		tex.Dispose()
		return nil, ErrDisposed
	}
	m.textures[key] = tex

	w, h := tex.Size()
	logger.Log.Info("Texture loaded and cached",
		zap.String("path", key),
		zap.Int("width", w),
		zap.Int("height", h))
	return tex, nil
}

// srgbTexture returns t tagged as sRGB colour data. A cached linear texture is
// replaced by a shared sRGB variant; any other texture belongs to the
// template being built and is converted in place.
func (m *Manager) srgbTexture(t *scene.Texture) *scene.Texture {
	if t == nil || t.ColorSpace == scene.ColorSpaceSRGB {
		return t
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.textures[t.Path]; !ok || cached != t {
		t.ColorSpace = scene.ColorSpaceSRGB
		t.NeedsUpdate = true
		return t
	}
	if v, ok := m.srgb[t.ID]; ok {
		return v
	}
	v := t.Clone()
	v.ColorSpace = scene.ColorSpaceSRGB
	m.srgb[t.ID] = v
	return v
}

// LoadTextures loads every role in parallel. Base and emissive roles come
// back as sRGB. A role that fails to load is logged and left out of the
// result.
func (m *Manager) LoadTextures(ctx context.Context, set registry.TextureSet) map[registry.TextureRole]*scene.Texture {
	out := make(map[registry.TextureRole]*scene.Texture, len(set))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, role := range set.Roles() {
		path := set[role]
		wg.Add(1)
		go func() {
			defer wg.Done()
			var (
				tex *scene.Texture
				err error
			)
			if role.IsColor() {
				tex, err = m.loadColorTexture(ctx, m.resolve(path))
			} else {
				tex, err = m.LoadTexture(ctx, path)
			}
			if err != nil {
				logger.Log.Warn("Texture role skipped",
					zap.String("role", string(role)),
					zap.String("path", path),
					zap.Error(err))
				return
			}
			mu.Lock()
			out[role] = tex
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// LoadModel returns an independent clone of the processed template for path
// with the given texture overrides bound. Templates are cached per
// ModelKey; failures leave nothing in the cache.
func (m *Manager) LoadModel(ctx context.Context, path string, overrides registry.TextureSet) (*LoadedModel, error) {
	key := ModelKey(path, overrides)

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if tmpl, ok := m.models[key]; ok {
		m.stats.CacheHits++
		m.mu.Unlock()
		return tmpl.Clone(), nil
	}
	m.stats.CacheMisses++
	m.mu.Unlock()

	ch := m.modelFlight.DoChan(key, func() (any, error) {
		return m.buildModel(key, path, overrides.Clone())
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*LoadedModel).Clone(), nil
	}
}

func (m *Manager) buildModel(key, path string, overrides registry.TextureSet) (*LoadedModel, error) {
	m.mu.RLock()
	tmpl, ok := m.models[key]
	m.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	full := m.resolve(path)
	loader, err := m.loaderFor(full)
	if err != nil {
		logger.Log.Error("Failed to load model", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	// Detached from the caller: other waiters may share this flight.
	ctx := context.Background()
	root, err := loader.Load(ctx, full)
	if err != nil {
		logger.Log.Error("Failed to load model", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("load model %q: %w", path, err)
	}

	if len(overrides.Roles()) > 0 {
		binder := &overrideBinder{
			textures:  m.LoadTextures(ctx, overrides),
			alphaMask: m.alphaMask,
		}
		binder.apply(root)
	}
	harmonize(root, m.harmonize, m.srgbTexture)

	tmpl = &LoadedModel{
		Path:      path,
		Key:       key,
		Root:      root,
		Materials: collectMaterials(root),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.ModelParses++
	if m.disposed {
		disposeTemplate(tmpl)
		return nil, ErrDisposed
	}
	m.models[key] = tmpl

	logger.Log.Info("Model loaded and cached",
		zap.String("path", path),
		zap.String("key", key),
		zap.Int("meshes", tmpl.MeshCount()),
		zap.Int("materials", len(tmpl.Materials)))
	return tmpl, nil
}

// alphaMask returns the cached inverted-luminance alpha map derived from src.
func (m *Manager) alphaMask(src *scene.Texture) *scene.Texture {
	if src == nil || src.Image == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mask, ok := m.masks[src.ID]; ok {
		return mask
	}
	mask := scene.NewTexture(src.Path+"#alpha", invertedLuminance(src.Image))
	mask.Offset, mask.Repeat, mask.Rotation = src.Offset, src.Repeat, src.Rotation
	mask.WrapS, mask.WrapT = src.WrapS, src.WrapT
	mask.FlipY = src.FlipY
	m.masks[src.ID] = mask
	return mask
}

// ModelRequest names one model to preload.
type ModelRequest struct {
	Path     string
	Textures registry.TextureSet
}

// BatchResult reports the outcome of a preload batch. Err joins the
// individual failures.
type BatchResult struct {
	Succeeded int
	Total     int
	Failed    []string
	Err       error
}

// PreloadModels loads every request through the worker pool and waits for
// all of them, whatever their outcome.
func (m *Manager) PreloadModels(ctx context.Context, reqs []ModelRequest) BatchResult {
	return m.batch(len(reqs), func(i int) (string, error) {
		_, err := m.LoadModel(ctx, reqs[i].Path, reqs[i].Textures)
		return reqs[i].Path, err
	})
}

// PreloadTextures decodes every path through the worker pool.
func (m *Manager) PreloadTextures(ctx context.Context, paths []string) BatchResult {
	return m.batch(len(paths), func(i int) (string, error) {
		_, err := m.LoadTexture(ctx, paths[i])
		return paths[i], err
	})
}

func (m *Manager) batch(n int, fn func(i int) (string, error)) BatchResult {
	res := BatchResult{Total: n}
	if n == 0 {
		return res
	}
	m.mu.RLock()
	disposed := m.disposed
	m.mu.RUnlock()
	if disposed {
		res.Err = ErrDisposed
		return res
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	group := m.pool.NewGroup()
	for i := 0; i < n; i++ {
		group.Submit(func() {
			name, err := fn(i)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, name)
				errs = append(errs, err)
				logger.Log.Warn("Preload item failed", zap.String("path", name), zap.Error(err))
				return
			}
			res.Succeeded++
		})
	}
	group.Wait()
	res.Err = errors.Join(errs...)

	logger.Log.Info("Preload finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("total", res.Total))
	return res
}

// Stats returns a snapshot of the cache counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.Textures = len(m.textures)
	s.Models = len(m.models)
	s.AlphaMasks = len(m.masks)
	return s
}

// Dispose releases every cached texture and template. It is safe on an empty
// or partially populated cache and may be called more than once. Loads still
// in flight finish but their results are discarded.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	textures, models, masks, srgb := m.textures, m.models, m.masks, m.srgb
	m.textures = make(map[string]*scene.Texture)
	m.models = make(map[string]*LoadedModel)
	m.masks = make(map[uint64]*scene.Texture)
	m.srgb = make(map[uint64]*scene.Texture)
	m.mu.Unlock()

	for _, tmpl := range models {
		disposeTemplate(tmpl)
	}
	for _, t := range textures {
		t.Dispose()
	}
	for _, t := range masks {
		t.Dispose()
	}
	for _, t := range srgb {
		t.Dispose()
	}
	m.pool.StopAndWait()

	logger.Log.Info("Asset manager disposed",
		zap.Int("textures", len(textures)),
		zap.Int("models", len(models)))
}
