package config

import (
	"CityBuilder/internal/assets"
	"CityBuilder/internal/logger"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

type AssetsConfig struct {
	Root             string  `toml:"root"`
	Workers          int     `toml:"workers"`
	FlattenBaseColor bool    `toml:"flatten_base_color"`
	AOIntensity      float32 `toml:"ao_intensity"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type InstancingConfig struct {
	DefaultMaxInstances int `toml:"default_max_instances"`
}

type CameraConfig struct {
	// Store is "file" or "sqlite".
	Store string `toml:"store"`
	Path  string `toml:"path"`
}

type SceneConfig struct {
	Definitions string   `toml:"definitions"`
	Collections []string `toml:"collections"`
}

type ViewerConfig struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

type Config struct {
	Assets     AssetsConfig     `toml:"assets"`
	Log        LogConfig        `toml:"log"`
	Instancing InstancingConfig `toml:"instancing"`
	Camera     CameraConfig     `toml:"camera"`
	Scene      SceneConfig      `toml:"scene"`
	Viewer     ViewerConfig     `toml:"viewer"`
}

func Default() *Config {
	return &Config{
		Assets:     AssetsConfig{Root: ".", Workers: 8, AOIntensity: 1},
		Log:        LogConfig{Level: "info"},
		Instancing: InstancingConfig{DefaultMaxInstances: 0},
		Camera:     CameraConfig{Store: "file", Path: "camera_state.json"},
		Viewer:     ViewerConfig{Width: 1280, Height: 720},
	}
}

// Load reads a TOML config over the defaults. A missing file is not an error.
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Log.Info("No config file found, using defaults", zap.String("path", path))
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	logger.Log.Info("Config loaded", zap.String("path", path))
	return cfg, nil
}

func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Assets.Root = abs(c.Assets.Root)
	c.Camera.Path = abs(c.Camera.Path)
	c.Scene.Definitions = abs(c.Scene.Definitions)
	for i, p := range c.Scene.Collections {
		c.Scene.Collections[i] = abs(p)
	}
}

func (c *Config) Validate() error {
	if c.Assets.Workers <= 0 {
		return fmt.Errorf("assets.workers must be positive, got %d", c.Assets.Workers)
	}
	if c.Assets.AOIntensity < 0 {
		return fmt.Errorf("assets.ao_intensity must not be negative")
	}
	if c.Instancing.DefaultMaxInstances < 0 {
		return fmt.Errorf("instancing.default_max_instances must not be negative")
	}
	switch c.Camera.Store {
	case "file", "sqlite":
	default:
		return fmt.Errorf("camera.store must be file or sqlite, got %q", c.Camera.Store)
	}
	if c.Viewer.Width <= 0 || c.Viewer.Height <= 0 {
		return fmt.Errorf("viewer size must be positive")
	}
	return nil
}

// AssetOptions turns the assets section into manager options.
func (c *Config) AssetOptions() []assets.Option {
	return []assets.Option{
		assets.WithRoot(c.Assets.Root),
		assets.WithWorkers(c.Assets.Workers),
		assets.WithHarmonize(assets.HarmonizeOptions{
			AOIntensity:      c.Assets.AOIntensity,
			FlattenBaseColor: c.Assets.FlattenBaseColor,
		}),
	}
}

// Save writes the config as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
