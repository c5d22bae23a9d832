package assets

import (
	"CityBuilder/internal/scene"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported model format")
	ErrDisposed          = errors.New("asset manager disposed")
)

// modelLoader parses one file format into an unprocessed template node.
type modelLoader interface {
	Load(ctx context.Context, path string) (*scene.Node, error)
}

// textureResolver loads a texture referenced from inside a model file.
type textureResolver func(path string) (*scene.Texture, error)

type format int

const (
	formatUnknown format = iota
	formatGLTF
	formatOBJ
)

func (f format) String() string {
	switch f {
	case formatGLTF:
		return "gltf"
	case formatOBJ:
		return "obj"
	default:
		return "unknown"
	}
}

// formatFor picks the format from the file extension. Files without an
// extension are sniffed for the binary glTF magic.
func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glb", ".gltf":
		return formatGLTF
	case ".obj":
		return formatOBJ
	case "":
		if sniffGLB(path) {
			return formatGLTF
		}
	}
	return formatUnknown
}

func sniffGLB(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := f.Read(magic); err != nil {
		return false
	}
	return string(magic) == "glTF"
}

func (m *Manager) loaderFor(path string) (modelLoader, error) {
	// MTL maps are diffuse colour, already relative to the model file.
	resolver := func(p string) (*scene.Texture, error) {
		return m.loadColorTexture(context.Background(), filepath.Clean(p))
	}
	switch formatFor(path) {
	case formatGLTF:
		return &gltfLoader{}, nil
	case formatOBJ:
		return &objLoader{texture: resolver}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
