package main

import (
	"CityBuilder/internal/camstate"
	"CityBuilder/internal/city"
	"CityBuilder/internal/collections"
	"CityBuilder/internal/config"
	"CityBuilder/internal/engine"
	"CityBuilder/internal/logger"
	"CityBuilder/internal/renderer"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// GLFW must run on the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	var (
		configPath  = flag.String("config", "citybuilder.toml", "TOML config file")
		collPaths   = flag.String("collections", "", "comma separated collection files, added to the config list")
		watch       = flag.Bool("watch", false, "reload collection files when they change")
		view        = flag.Bool("view", false, "open the interactive viewer")
		district    = flag.Int("district", 0, "generate a procedural district of N x N tiles")
		seed        = flag.Int64("seed", 1, "district seed")
		level       = flag.String("log", "", "log level, overrides the config")
		resetCamera = flag.Bool("reset-camera", false, "discard the saved camera state")
	)
	flag.Parse()

	if err := run(*configPath, *collPaths, *watch, *view, *district, *seed, *level, *resetCamera); err != nil {
		logger.Log.Error("citybuilder failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(configPath, collPaths string, watch, view bool, district int, seed int64, level string, resetCamera bool) error {
	logger.Init("info")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if level == "" {
		level = cfg.Log.Level
	}
	logger.Init(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := city.FromConfig(cfg)
	if err != nil {
		return err
	}
	defer c.Dispose()

	var (
		viewer *engine.Viewer
		closed atomic.Bool
	)
	if view {
		viewer = engine.NewViewer(c.Scene, int32(cfg.Viewer.Width), int32(cfg.Viewer.Height))
		// Graph mutations run on the render thread while the window is open.
		c.Sync = func(fn func()) {
			if closed.Load() {
				fn()
				return
			}
			done := make(chan struct{})
			if err := viewer.Post(ctx, func() { fn(); close(done) }); err != nil {
				return
			}
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
	}

	paths := append([]string(nil), cfg.Scene.Collections...)
	for _, p := range strings.Split(collPaths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}

	load := func() error {
		start := time.Now()
		var errs []error
		if district > 0 {
			opts := collections.DefaultDistrictOptions()
			opts.Size = district
			opts.Seed = seed
			d := collections.GenerateDistrict(opts)
			f := d.File()
			c.Preload(ctx, f)
			if sum := c.Place(ctx, "district", f); sum.Err != nil {
				errs = append(errs, sum.Err)
			}
		}
		for _, p := range paths {
			sum, err := c.LoadFile(ctx, p)
			if err == nil {
				err = sum.Err
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		logStats(c, time.Since(start))
		return errors.Join(errs...)
	}

	if watch && len(paths) > 0 {
		go func() {
			err := c.Watch(ctx, paths, func(sum city.Summary, err error) {
				if err == nil && sum.Err != nil {
					logger.Log.Warn("Reload placed with errors", zap.String("source", sum.Source), zap.Error(sum.Err))
				}
			})
			if err != nil {
				logger.Log.Error("Watcher stopped", zap.Error(err))
			}
		}()
	}

	if viewer == nil {
		if err := load(); err != nil {
			logger.Log.Warn("Some placements failed", zap.Error(err))
		}
		if watch && len(paths) > 0 {
			<-ctx.Done()
		}
		return nil
	}

	store, err := camstate.Open(cfg.Camera.Store, cfg.Camera.Path)
	if err != nil {
		return fmt.Errorf("camera store: %w", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	if resetCamera {
		if err := camstate.Clear(store); err != nil {
			logger.Log.Warn("Could not clear camera state", zap.Error(err))
		}
	}
	restoreCamera(viewer.Camera, store)

	viewer.OnPick = func(hit renderer.Hit) {
		logger.Log.Info("Selected", zap.String("instanceId", hit.InstanceID), zap.Float32s("point", hit.Point[:]))
	}
	loaded := make(chan struct{})
	go func() {
		defer close(loaded)
		if err := load(); err != nil {
			logger.Log.Warn("Some placements failed", zap.Error(err))
		}
	}()

	runErr := viewer.Run(ctx)
	if err := camstate.Save(store, viewer.Camera.State(), time.Now()); err != nil {
		logger.Log.Warn("Could not save camera state", zap.Error(err))
	}
	closed.Store(true)
	stop()
	<-loaded
	return runErr
}

func restoreCamera(cam *renderer.Camera, store camstate.Storage) {
	state, err := camstate.Load(store, time.Now())
	switch {
	case err == nil:
		cam.Restore(state)
		logger.Log.Info("Camera state restored", zap.Time("saved", state.Time()))
	case errors.Is(err, camstate.ErrNotFound):
	case errors.Is(err, camstate.ErrExpired):
		logger.Log.Info("Camera state expired")
	default:
		logger.Log.Warn("Could not read camera state", zap.Error(err))
	}
}

func logStats(c *city.City, took time.Duration) {
	s := c.Stats()
	logger.Log.Info("City ready",
		zap.Duration("took", took),
		zap.Any("models", s.Models),
		zap.Any("instanced", s.Instanced),
		zap.Int("ads", s.Ads),
		zap.Int("textures", s.Assets.Textures),
		zap.Int("templates", s.Assets.Models),
		zap.Int("cacheHits", s.Assets.CacheHits),
		zap.Int("cacheMisses", s.Assets.CacheMisses))
}
