package assets

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/scene"
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// objLoader reads Wavefront OBJ geometry with optional MTL materials. Each
// usemtl section becomes its own mesh node under the returned group.
type objLoader struct {
	texture textureResolver
}

type faceVertex struct {
	vertexIdx   int32
	texCoordIdx int32
	normalIdx   int32
}

type objGroup struct {
	material string
	faces    []faceVertex
}

func (l *objLoader) Load(ctx context.Context, path string) (*scene.Node, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var (
		vertices      []float32
		textureCoords []float32
		normals       []float32
		groups        []*objGroup
		materials     = map[string]*mtlMaterial{}
	)
	current := &objGroup{}
	groups = append(groups, current)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "v":
			v, err := parseFloats(parts[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: vertex: %w", path, lineNo, err)
			}
			vertices = append(vertices, v...)
		case "vn":
			n, err := parseFloats(parts[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: normal: %w", path, lineNo, err)
			}
			normals = append(normals, n...)
		case "vt":
			uv, err := parseFloats(parts[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: texture coordinate: %w", path, lineNo, err)
			}
			textureCoords = append(textureCoords, uv...)
		case "f":
			face, err := parseFace(parts[1:], len(vertices)/3, len(textureCoords)/2, len(normals)/3)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: face: %w", path, lineNo, err)
			}
			current.faces = append(current.faces, face...)
		case "mtllib":
			if len(parts) < 2 {
				continue
			}
			mtlPath := filepath.Join(filepath.Dir(path), strings.Join(parts[1:], " "))
			loaded, err := loadMTL(mtlPath)
			if err != nil {
				logger.Log.Warn("Could not read material library", zap.String("path", mtlPath), zap.Error(err))
				continue
			}
			for name, m := range loaded {
				materials[name] = m
			}
		case "usemtl":
			if len(parts) < 2 {
				continue
			}
			name := parts[1]
			if len(current.faces) == 0 {
				current.material = name
				continue
			}
			current = &objGroup{material: name}
			groups = append(groups, current)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	root := scene.NewNode(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for i, g := range groups {
		if len(g.faces) == 0 {
			continue
		}
		geo := buildGeometry(g.faces, vertices, textureCoords, normals)
		mat := l.buildMaterial(g.material, materials[g.material])
		name := g.material
		if name == "" {
			name = fmt.Sprintf("%s_%d", root.Name, i)
		}
		root.Add(scene.NewMeshNode(name, scene.NewMesh(geo, mat)))
	}
	if root.ChildCount() == 0 {
		return nil, fmt.Errorf("%s: no faces", path)
	}

	logger.Log.Debug("OBJ model parsed",
		zap.String("path", path),
		zap.Int("vertices", len(vertices)/3),
		zap.Int("meshes", root.ChildCount()))
	return root, nil
}

func (l *objLoader) buildMaterial(name string, src *mtlMaterial) *scene.Material {
	if name == "" {
		name = "default"
	}
	m := scene.NewMaterial(name)
	if src == nil {
		return m
	}
	m.Color = src.diffuse
	m.Opacity = src.alpha
	m.Transparent = src.alpha < 1
	if src.shininess > 0 {
		// Phong exponent to an approximate roughness.
		m.Roughness = mgl32.Clamp(1-src.shininess/1000, 0.05, 1)
	}
	if src.diffuseMap != "" && l.texture != nil {
		tex, err := l.texture(src.diffuseMap)
		if err != nil {
			logger.Log.Warn("Material texture unavailable",
				zap.String("material", name),
				zap.String("path", src.diffuseMap),
				zap.Error(err))
		} else {
			m.Map = tex
		}
	}
	return m
}

// buildGeometry unifies separate position/uv/normal indices into one vertex
// buffer, recalculating normals when the file carries none.
func buildGeometry(faces []faceVertex, vertices, textureCoords, normals []float32) *scene.Geometry {
	type vertexKey struct{ v, vt, vn int32 }
	seen := make(map[vertexKey]uint32)

	var positions, uvs, outNormals []float32
	indices := make([]uint32, 0, len(faces))
	hasNormals := false

	for _, fv := range faces {
		key := vertexKey{fv.vertexIdx, fv.texCoordIdx, fv.normalIdx}
		if idx, ok := seen[key]; ok {
			indices = append(indices, idx)
			continue
		}
		idx := uint32(len(positions) / 3)
		seen[key] = idx

		positions = append(positions, vertices[fv.vertexIdx*3:fv.vertexIdx*3+3]...)
		if fv.texCoordIdx >= 0 {
			uvs = append(uvs, textureCoords[fv.texCoordIdx*2:fv.texCoordIdx*2+2]...)
		} else {
			uvs = append(uvs, 0, 0)
		}
		if fv.normalIdx >= 0 {
			outNormals = append(outNormals, normals[fv.normalIdx*3:fv.normalIdx*3+3]...)
			hasNormals = true
		} else {
			outNormals = append(outNormals, 0, 0, 0)
		}
		indices = append(indices, idx)
	}

	if !hasNormals {
		outNormals = recalculateNormals(positions, indices)
	}
	return scene.NewGeometry(positions, outNormals, uvs, indices)
}

func recalculateNormals(positions []float32, indices []uint32) []float32 {
	normals := make([]float32, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i]*3, indices[i+1]*3, indices[i+2]*3
		v0 := mgl32.Vec3{positions[i0], positions[i0+1], positions[i0+2]}
		v1 := mgl32.Vec3{positions[i1], positions[i1+1], positions[i1+2]}
		v2 := mgl32.Vec3{positions[i2], positions[i2+1], positions[i2+2]}
		n := v1.Sub(v0).Cross(v2.Sub(v0))
		for _, idx := range []uint32{i0, i1, i2} {
			normals[idx] += n[0]
			normals[idx+1] += n[1]
			normals[idx+2] += n[2]
		}
	}
	for i := 0; i+2 < len(normals); i += 3 {
		n := mgl32.Vec3{normals[i], normals[i+1], normals[i+2]}
		if n.Len() == 0 {
			n = mgl32.Vec3{0, 1, 0}
		} else {
			n = n.Normalize()
		}
		normals[i], normals[i+1], normals[i+2] = n[0], n[1], n[2]
	}
	return normals
}

func parseFloats(parts []string, want int) ([]float32, error) {
	if len(parts) < want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(parts))
	}
	out := make([]float32, want)
	for i := 0; i < want; i++ {
		val, err := strconv.ParseFloat(parts[i], 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", parts[i], err)
		}
		out[i] = float32(val)
	}
	return out, nil
}

// parseFace resolves 1-based and negative OBJ indices and triangulates
// polygons as a fan from the first vertex.
func parseFace(parts []string, nv, nvt, nvn int) ([]faceVertex, error) {
	if len(parts) < 3 {
		return nil, fmt.Errorf("face needs at least 3 vertices, got %d", len(parts))
	}
	face := make([]faceVertex, 0, len(parts))
	for _, part := range parts {
		vals := strings.Split(part, "/")

		v, err := resolveIndex(vals[0], nv)
		if err != nil {
			return nil, fmt.Errorf("vertex index: %w", err)
		}
		fv := faceVertex{vertexIdx: v, texCoordIdx: -1, normalIdx: -1}
		if len(vals) > 1 && vals[1] != "" {
			if fv.texCoordIdx, err = resolveIndex(vals[1], nvt); err != nil {
				return nil, fmt.Errorf("texture coordinate index: %w", err)
			}
		}
		if len(vals) > 2 && vals[2] != "" {
			if fv.normalIdx, err = resolveIndex(vals[2], nvn); err != nil {
				return nil, fmt.Errorf("normal index: %w", err)
			}
		}
		face = append(face, fv)
	}

	if len(face) == 3 {
		return face, nil
	}
	tris := make([]faceVertex, 0, (len(face)-2)*3)
	for i := 1; i < len(face)-1; i++ {
		tris = append(tris, face[0], face[i], face[i+1])
	}
	return tris, nil
}

func resolveIndex(s string, count int) (int32, error) {
	raw, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %q", s)
	}
	idx := int(raw) - 1
	if raw < 0 {
		idx = count + int(raw)
	}
	if idx < 0 || idx >= count {
		return 0, fmt.Errorf("%d out of range (have %d)", raw, count)
	}
	return int32(idx), nil
}

type mtlMaterial struct {
	diffuse    mgl32.Vec3
	shininess  float32
	alpha      float32
	diffuseMap string
}

func loadMTL(path string) (map[string]*mtlMaterial, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	materials := make(map[string]*mtlMaterial)
	var current *mtlMaterial
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "newmtl" {
			if len(fields) < 2 {
				continue
			}
			current = &mtlMaterial{diffuse: mgl32.Vec3{1, 1, 1}, alpha: 1}
			materials[fields[1]] = current
			continue
		}
		if current == nil {
			continue
		}
		switch fields[0] {
		case "Kd":
			if c, err := parseFloats(fields[1:], 3); err == nil {
				current.diffuse = mgl32.Vec3{c[0], c[1], c[2]}
			}
		case "Ns":
			if v, err := parseFloats(fields[1:], 1); err == nil {
				current.shininess = v[0]
			}
		case "d":
			if v, err := parseFloats(fields[1:], 1); err == nil {
				current.alpha = v[0]
			}
		case "map_Kd":
			if len(fields) >= 2 {
				tex := fields[len(fields)-1]
				if !filepath.IsAbs(tex) {
					tex = filepath.Join(filepath.Dir(path), tex)
				}
				current.diffuseMap = tex
			}
		}
	}
	return materials, scanner.Err()
}
