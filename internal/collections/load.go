package collections

import (
	"CityBuilder/internal/logger"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrInvalidCollection = errors.New("invalid collection")

// Decode reads a collections document and checks that every collection is
// named and every instance names a model type.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode collections: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	for i, c := range f.Collections {
		if c.Name == "" {
			return fmt.Errorf("%w: collection %d has no name", ErrInvalidCollection, i)
		}
		for j, inst := range c.Instances {
			if inst.ModelType == "" {
				return fmt.Errorf("%w: %s instance %d has no modelType", ErrInvalidCollection, c.Name, j)
			}
		}
	}
	for i, c := range f.Instanced {
		if c.Name == "" {
			return fmt.Errorf("%w: instanced collection %d has no name", ErrInvalidCollection, i)
		}
		for j, g := range c.Groups {
			if g.ModelType == "" {
				return fmt.Errorf("%w: %s group %d has no modelType", ErrInvalidCollection, c.Name, j)
			}
			if g.MaxInstances < 0 {
				return fmt.Errorf("%w: %s group %d has negative maxInstances", ErrInvalidCollection, c.Name, j)
			}
		}
	}
	for i, a := range f.Ads {
		if a.AdID == "" {
			return fmt.Errorf("%w: ad %d has no adId", ErrInvalidCollection, i)
		}
		if a.Width < 0 || a.Height < 0 {
			return fmt.Errorf("%w: ad %d has a negative size", ErrInvalidCollection, i)
		}
	}
	return nil
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	models, instances := f.Size()
	logger.Log.Info("Collections loaded",
		zap.String("path", path),
		zap.Int("collections", len(f.Collections)+len(f.Instanced)),
		zap.Int("models", models),
		zap.Int("instances", instances),
		zap.Int("ads", len(f.Ads)))
	return f, nil
}

// LoadFiles merges several documents in order. The first failure aborts.
func LoadFiles(paths ...string) (*File, error) {
	out := &File{}
	for _, p := range paths {
		f, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		out.Merge(f)
	}
	return out, nil
}
