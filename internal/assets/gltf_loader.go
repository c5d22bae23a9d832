package assets

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/scene"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// gltfLoader reads .gltf and .glb scene graphs. Images embedded in or
// referenced by the file are decoded here and owned by the template.
type gltfLoader struct{}

type gltfContext struct {
	doc       *gltf.Document
	dir       string
	materials map[int]*scene.Material
	textures  map[int]*scene.Texture
}

func (l *gltfLoader) Load(ctx context.Context, path string) (*scene.Node, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gc := &gltfContext{
		doc:       doc,
		dir:       filepath.Dir(path),
		materials: make(map[int]*scene.Material),
		textures:  make(map[int]*scene.Texture),
	}

	root := scene.NewNode(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	for _, idx := range gc.rootNodes() {
		n, err := gc.buildNode(idx, 0)
		if err != nil {
			return nil, err
		}
		root.Add(n)
	}

	logger.Log.Debug("glTF model parsed",
		zap.String("path", path),
		zap.Int("nodes", len(doc.Nodes)),
		zap.Int("meshes", len(doc.Meshes)),
		zap.Int("materials", len(gc.materials)))
	return root, nil
}

// rootNodes returns the nodes of the default scene, or every parentless node
// when the file declares no scene.
func (gc *gltfContext) rootNodes() []int {
	doc := gc.doc
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			idx = *doc.Scene
		}
		return doc.Scenes[idx].Nodes
	}
	isChild := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

const maxNodeDepth = 128

func (gc *gltfContext) buildNode(idx, depth int) (*scene.Node, error) {
	if idx < 0 || idx >= len(gc.doc.Nodes) {
		return nil, fmt.Errorf("node index %d out of range", idx)
	}
	if depth > maxNodeDepth {
		return nil, fmt.Errorf("node hierarchy deeper than %d", maxNodeDepth)
	}
	src := gc.doc.Nodes[idx]
	name := src.Name
	if name == "" {
		name = fmt.Sprintf("node_%d", idx)
	}
	node := scene.NewNode(name)
	applyNodeTransform(node, src)

	if src.Mesh != nil {
		if err := gc.attachMesh(node, *src.Mesh); err != nil {
			return nil, err
		}
	}
	for _, c := range src.Children {
		child, err := gc.buildNode(c, depth+1)
		if err != nil {
			return nil, err
		}
		node.Add(child)
	}
	return node, nil
}

func applyNodeTransform(node *scene.Node, src *gltf.Node) {
	var m mgl32.Mat4
	for i, v := range src.Matrix {
		m[i] = float32(v)
	}
	if m != (mgl32.Mat4{}) && m != mgl32.Ident4() {
		node.Position, node.Rotation, node.Scale = scene.Decompose(m)
		return
	}

	t := src.Translation
	node.Position = mgl32.Vec3{float32(t[0]), float32(t[1]), float32(t[2])}

	r := src.Rotation
	if r != [4]float64{} {
		node.Rotation = mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}.Normalize()
	}
	s := src.Scale
	if s != [3]float64{} {
		node.Scale = mgl32.Vec3{float32(s[0]), float32(s[1]), float32(s[2])}
	}
}

// attachMesh puts a single-primitive mesh on node directly; multi-primitive
// meshes get one child node per primitive.
func (gc *gltfContext) attachMesh(node *scene.Node, meshIdx int) error {
	if meshIdx < 0 || meshIdx >= len(gc.doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", meshIdx)
	}
	src := gc.doc.Meshes[meshIdx]
	for i, p := range src.Primitives {
		geo, err := gc.readPrimitive(p)
		if err != nil {
			return fmt.Errorf("mesh %q primitive %d: %w", src.Name, i, err)
		}
		mat := gc.material(p.Material)
		mesh := scene.NewMesh(geo, mat)
		if len(src.Primitives) == 1 {
			node.Mesh = mesh
			continue
		}
		node.Add(scene.NewMeshNode(fmt.Sprintf("%s_%d", node.Name, i), mesh))
	}
	return nil
}

func (gc *gltfContext) readPrimitive(p *gltf.Primitive) (*scene.Geometry, error) {
	doc := gc.doc
	posIdx, ok := p.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("primitive without POSITION")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	var normals [][3]float32
	if idx, ok := p.Attributes["NORMAL"]; ok {
		if normals, err = modeler.ReadNormal(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read normals: %w", err)
		}
	}
	var uvs [][2]float32
	if idx, ok := p.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("read uvs: %w", err)
		}
	}

	var indices []uint32
	if p.Indices != nil {
		if indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil); err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	flatPos := make([]float32, 0, len(positions)*3)
	for _, v := range positions {
		flatPos = append(flatPos, v[0], v[1], v[2])
	}
	flatUV := make([]float32, 0, len(uvs)*2)
	for _, v := range uvs {
		flatUV = append(flatUV, v[0], v[1])
	}
	var flatNorm []float32
	if len(normals) == len(positions) {
		flatNorm = make([]float32, 0, len(normals)*3)
		for _, v := range normals {
			flatNorm = append(flatNorm, v[0], v[1], v[2])
		}
	} else {
		flatNorm = recalculateNormals(flatPos, indices)
	}
	return scene.NewGeometry(flatPos, flatNorm, flatUV, indices), nil
}

func (gc *gltfContext) material(idx *int) *scene.Material {
	if idx == nil || *idx < 0 || *idx >= len(gc.doc.Materials) {
		return scene.NewMaterial("default")
	}
	if m, ok := gc.materials[*idx]; ok {
		return m
	}
	src := gc.doc.Materials[*idx]
	m := scene.NewMaterial(src.Name)
	if m.Name == "" {
		m.Name = fmt.Sprintf("material_%d", *idx)
	}

	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if f := pbr.BaseColorFactor; f != nil {
			m.Color = mgl32.Vec3{float32(f[0]), float32(f[1]), float32(f[2])}
			m.Opacity = float32(f[3])
		}
		if pbr.MetallicFactor != nil {
			m.Metalness = float32(*pbr.MetallicFactor)
		} else {
			m.Metalness = 1
		}
		if pbr.RoughnessFactor != nil {
			m.Roughness = float32(*pbr.RoughnessFactor)
		}
		if ti := pbr.BaseColorTexture; ti != nil {
			m.Map = gc.texture(ti.Index, ti.Extensions)
		}
		if ti := pbr.MetallicRoughnessTexture; ti != nil {
			t := gc.texture(ti.Index, ti.Extensions)
			m.RoughnessMap = t
			m.MetalnessMap = t
		}
	}
	e := src.EmissiveFactor
	m.Emissive = mgl32.Vec3{float32(e[0]), float32(e[1]), float32(e[2])}
	if ti := src.EmissiveTexture; ti != nil {
		m.EmissiveMap = gc.texture(ti.Index, ti.Extensions)
	}
	if nt := src.NormalTexture; nt != nil && nt.Index != nil {
		m.NormalMap = gc.texture(*nt.Index, nil)
	}
	if ot := src.OcclusionTexture; ot != nil && ot.Index != nil {
		m.AOMap = gc.texture(*ot.Index, nil)
		if ot.Strength != nil {
			m.AOMapIntensity = float32(*ot.Strength)
		}
	}

	switch src.AlphaMode {
	case gltf.AlphaBlend:
		m.Transparent = true
		m.UserData["alphaMode"] = "BLEND"
	case gltf.AlphaMask:
		m.AlphaTest = 0.5
		m.UserData["alphaMode"] = "MASK"
	}
	if src.DoubleSided {
		m.Side = scene.DoubleSide
	}

	gc.materials[*idx] = m
	return m
}

// textureTransform is the KHR_texture_transform payload.
type textureTransform struct {
	Offset   [2]float32 `json:"offset"`
	Rotation float32    `json:"rotation"`
	Scale    *[2]float32 `json:"scale"`
}

const extTextureTransform = "KHR_texture_transform"

func (gc *gltfContext) texture(idx int, ext gltf.Extensions) *scene.Texture {
	base, ok := gc.textures[idx]
	if !ok {
		base = gc.decodeTexture(idx)
		gc.textures[idx] = base
	}
	if base == nil {
		return nil
	}

	raw, ok := ext[extTextureTransform]
	if !ok {
		return base
	}
	var tt textureTransform
	data, err := json.Marshal(raw)
	if err == nil {
		if rm, isRaw := raw.(json.RawMessage); isRaw {
			data = rm
		}
		err = json.Unmarshal(data, &tt)
	}
	if err != nil {
		logger.Log.Debug("Ignoring malformed texture transform", zap.Error(err))
		return base
	}
	t := base.Clone()
	t.Offset = mgl32.Vec2{tt.Offset[0], tt.Offset[1]}
	t.Rotation = tt.Rotation
	if tt.Scale != nil {
		t.Repeat = mgl32.Vec2{tt.Scale[0], tt.Scale[1]}
	}
	return t
}

func (gc *gltfContext) decodeTexture(idx int) *scene.Texture {
	doc := gc.doc
	if idx < 0 || idx >= len(doc.Textures) || doc.Textures[idx].Source == nil {
		return nil
	}
	src := doc.Textures[idx]
	imgIdx := *src.Source
	if imgIdx < 0 || imgIdx >= len(doc.Images) {
		return nil
	}
	im := doc.Images[imgIdx]

	data, name, err := gc.imageBytes(im, imgIdx)
	if err != nil {
		logger.Log.Warn("glTF image unavailable", zap.String("image", name), zap.Error(err))
		return nil
	}
	img, err := decodeImage(data)
	if err != nil {
		logger.Log.Warn("glTF image could not be decoded", zap.String("image", name), zap.Error(err))
		return nil
	}

	tex := scene.NewTexture(name, img)
	tex.FlipY = false
	tex.WrapS, tex.WrapT = scene.WrapRepeat, scene.WrapRepeat
	if src.Sampler != nil && *src.Sampler < len(doc.Samplers) {
		s := doc.Samplers[*src.Sampler]
		tex.WrapS = wrapMode(s.WrapS)
		tex.WrapT = wrapMode(s.WrapT)
	}
	return tex
}

func (gc *gltfContext) imageBytes(im *gltf.Image, idx int) ([]byte, string, error) {
	name := im.Name
	if name == "" {
		name = fmt.Sprintf("image_%d", idx)
	}
	if im.BufferView != nil {
		bvIdx := *im.BufferView
		if bvIdx < 0 || bvIdx >= len(gc.doc.BufferViews) {
			return nil, name, fmt.Errorf("buffer view %d out of range", bvIdx)
		}
		bv := gc.doc.BufferViews[bvIdx]
		if bv.Buffer < 0 || bv.Buffer >= len(gc.doc.Buffers) {
			return nil, name, fmt.Errorf("buffer %d out of range", bv.Buffer)
		}
		buf := gc.doc.Buffers[bv.Buffer].Data
		end := bv.ByteOffset + bv.ByteLength
		if end > len(buf) {
			return nil, name, fmt.Errorf("buffer view %d exceeds buffer", bvIdx)
		}
		return buf[bv.ByteOffset:end], name, nil
	}
	if strings.HasPrefix(im.URI, "data:") {
		comma := strings.IndexByte(im.URI, ',')
		if comma < 0 {
			return nil, name, fmt.Errorf("malformed data uri")
		}
		data, err := base64.StdEncoding.DecodeString(im.URI[comma+1:])
		return data, name, err
	}
	if im.URI == "" {
		return nil, name, fmt.Errorf("image without source")
	}
	rel, err := url.PathUnescape(im.URI)
	if err != nil {
		rel = im.URI
	}
	full := filepath.Join(gc.dir, filepath.FromSlash(rel))
	data, err := os.ReadFile(full)
	return data, full, err
}

func wrapMode(w gltf.WrappingMode) scene.WrapMode {
	switch w {
	case gltf.WrapClampToEdge:
		return scene.WrapClampToEdge
	case gltf.WrapMirroredRepeat:
		return scene.WrapMirroredRepeat
	default:
		return scene.WrapRepeat
	}
}
