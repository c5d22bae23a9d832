package registry

import (
	"CityBuilder/internal/logger"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownModel      = errors.New("unknown model type")
	ErrUnknownAd         = errors.New("unknown ad type")
	ErrInvalidDefinition = errors.New("invalid definition")
)

//go:embed data/definitions.yaml
var defaultDefinitions []byte

// Registry maps model and ad type keys to their load recipes. It only grows:
// definitions can be added or overwritten, never removed.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelDefinition
	ads    map[string]AdDefinition
}

func New() *Registry {
	return &Registry{
		models: make(map[string]ModelDefinition),
		ads:    make(map[string]AdDefinition),
	}
}

// NewDefault returns a registry holding the built-in city definitions.
func NewDefault() (*Registry, error) {
	r := New()
	if _, err := r.LoadYAMLBytes(defaultDefinitions); err != nil {
		return nil, fmt.Errorf("built-in definitions: %w", err)
	}
	return r, nil
}

// GetDefinition returns a copy of the definition registered under key.
func (r *Registry) GetDefinition(key string) (ModelDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.models[key]
	if !ok {
		return ModelDefinition{}, false
	}
	return def.clone(), true
}

// MustDefinition is GetDefinition with an ErrUnknownModel error for missing keys.
func (r *Registry) MustDefinition(key string) (ModelDefinition, error) {
	def, ok := r.GetDefinition(key)
	if !ok {
		return ModelDefinition{}, fmt.Errorf("%w: %q", ErrUnknownModel, key)
	}
	return def, nil
}

// AddDefinition inserts or overwrites a definition by ID.
func (r *Registry) AddDefinition(def ModelDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("%w: model definition without id", ErrInvalidDefinition)
	}
	r.mu.Lock()
	_, existed := r.models[def.ID]
	r.models[def.ID] = def.clone()
	r.mu.Unlock()

	if existed {
		logger.Log.Debug("Model definition overwritten", zap.String("id", def.ID))
	}
	return nil
}

// ValidateDefinition reports whether key exists and has a loadable file path.
// Procedural definitions need no file.
func (r *Registry) ValidateDefinition(key string) bool {
	def, ok := r.GetDefinition(key)
	if !ok {
		logger.Log.Warn("Model definition not found", zap.String("modelType", key))
		return false
	}
	if def.FilePath == "" && !def.Procedural {
		logger.Log.Warn("Model definition has no file path", zap.String("modelType", key))
		return false
	}
	return true
}

// Definitions returns the registered model ids sorted.
func (r *Registry) Definitions() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// ByCategory returns the definitions of a category sorted by id.
func (r *Registry) ByCategory(category string) []ModelDefinition {
	var out []ModelDefinition
	for _, id := range r.Definitions() {
		def, ok := r.GetDefinition(id)
		if ok && def.Category == category {
			out = append(out, def)
		}
	}
	return out
}

func (r *Registry) GetAd(key string) (AdDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.ads[key]
	if !ok {
		return AdDefinition{}, false
	}
	return def.clone(), true
}

// AddAd registers an ad definition at runtime, overwriting by ID.
func (r *Registry) AddAd(def AdDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("%w: ad definition without id", ErrInvalidDefinition)
	}
	if def.DiffuseTexture == "" {
		return fmt.Errorf("%w: ad %q has no diffuse texture", ErrInvalidDefinition, def.ID)
	}
	r.mu.Lock()
	r.ads[def.ID] = def.clone()
	r.mu.Unlock()
	return nil
}

func (r *Registry) Ads() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.ads))
	for id := range r.ads {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

type document struct {
	Models []ModelDefinition `yaml:"models"`
	Ads    []AdDefinition    `yaml:"ads"`
}

// LoadYAML registers every definition in a {models, ads} document and returns
// how many were added. Nothing is registered when the document has an invalid entry.
func (r *Registry) LoadYAML(rd io.Reader) (int, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return 0, err
	}
	return r.LoadYAMLBytes(data)
}

func (r *Registry) LoadYAMLBytes(data []byte) (int, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse definitions: %w", err)
	}
	for i, def := range doc.Models {
		if def.ID == "" {
			return 0, fmt.Errorf("%w: models[%d] has no id", ErrInvalidDefinition, i)
		}
	}
	for i, def := range doc.Ads {
		if def.ID == "" || def.DiffuseTexture == "" {
			return 0, fmt.Errorf("%w: ads[%d] needs id and diffuseTexture", ErrInvalidDefinition, i)
		}
	}
	for _, def := range doc.Models {
		_ = r.AddDefinition(def)
	}
	for _, def := range doc.Ads {
		_ = r.AddAd(def)
	}
	logger.Log.Info("Definitions loaded",
		zap.Int("models", len(doc.Models)),
		zap.Int("ads", len(doc.Ads)))
	return len(doc.Models) + len(doc.Ads), nil
}

func (r *Registry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := r.LoadYAML(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}
