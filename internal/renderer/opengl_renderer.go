package renderer

import (
	"CityBuilder/internal/logger"
	"CityBuilder/internal/scene"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

type gpuMesh struct {
	vao, vbo, ebo uint32
	indexCount    int32
}

type gpuInstances struct {
	vao, vbo uint32
	capacity int
}

const (
	unitBase = iota
	unitEmissive
	unitAlpha
	unitAO
)

// OpenGLRenderer draws a scene graph. Geometry, textures and instance buffers
// are uploaded the first time they are drawn and freed after the scene
// resource is disposed.
type OpenGLRenderer struct {
	defaultShader   Shader
	defaultTexture  uint32
	defaultMaterial *scene.Material

	meshes    *handleCache[*scene.Geometry, gpuMesh]
	textures  *handleCache[*scene.Texture, uint32]
	instances *handleCache[*scene.InstancedMesh, gpuInstances]

	ClearColor mgl32.Vec3
	stats      Stats
}

func NewOpenGLRenderer() *OpenGLRenderer {
	return &OpenGLRenderer{
		meshes:     newHandleCache[*scene.Geometry, gpuMesh]("meshes"),
		textures:   newHandleCache[*scene.Texture, uint32]("textures"),
		instances:  newHandleCache[*scene.InstancedMesh, gpuInstances]("instances"),
		ClearColor: mgl32.Vec3{0.02, 0.02, 0.06},

		defaultMaterial: scene.NewMaterial("default"),
	}
}

func (rend *OpenGLRenderer) Init(width, height int32, _ *glfw.Window) error {
	if err := gl.Init(); err != nil {
		logger.Log.Error("OpenGL initialization failed", zap.Error(err))
		return err
	}
	if Debug {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	}
	gl.Viewport(0, 0, width, height)

	rend.defaultShader = InitShader()
	if !rend.defaultShader.Compile() {
		return errors.New("default shader failed to build")
	}
	white := image.NewRGBA(image.Rect(0, 0, 1, 1))
	white.Set(0, 0, color.White)
	rend.defaultTexture = createTexture(white, gl.REPEAT, gl.REPEAT, false)

	logger.Log.Info("OpenGL render initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))))
	return nil
}

func (rend *OpenGLRenderer) UpdateViewport(width, height int32) {
	gl.Viewport(0, 0, width, height)
}

func (rend *OpenGLRenderer) Stats() Stats {
	return rend.stats
}

// freeReleased deletes GPU objects whose scene resources were disposed.
func (rend *OpenGLRenderer) freeReleased() {
	freed := 0
	for _, m := range rend.meshes.Drain() {
		deleteMesh(m)
		freed++
	}
	for _, id := range rend.textures.Drain() {
		gl.DeleteTextures(1, &id)
		freed++
	}
	for _, in := range rend.instances.Drain() {
		deleteInstances(in)
		freed++
	}
	rend.stats.Freed += freed
}

func (rend *OpenGLRenderer) Render(root *scene.Node, camera *Camera, light *Light) {
	rend.freeReleased()

	gl.ClearColor(rend.ClearColor.X(), rend.ClearColor.Y(), rend.ClearColor.Z(), 1.0)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	if DepthTestEnabled {
		gl.Enable(gl.DEPTH_TEST)
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}

	frame := BuildFrame(root, camera.Position)
	shader := &rend.defaultShader
	shader.Use()
	shader.SetMat4("viewProjection", camera.GetViewProjection())
	shader.SetVec3("viewPos", camera.Position)
	rend.setLights(shader, light, frame.Lights)

	rend.stats.DrawCalls = 0
	gl.Disable(gl.BLEND)
	gl.DepthMask(true)
	for i := range frame.Opaque {
		rend.draw(shader, &frame.Opaque[i])
	}
	gl.Enable(gl.BLEND)
	for i := range frame.Transparent {
		rend.draw(shader, &frame.Transparent[i])
	}
	gl.Disable(gl.BLEND)
	gl.DepthMask(true)
	gl.Disable(gl.CULL_FACE)

	rend.stats.Meshes = rend.meshes.Stats().Live
	rend.stats.Textures = rend.textures.Stats().Live
	rend.stats.Instanced = rend.instances.Stats().Live
	rend.stats.Lights = len(frame.Lights)
}

func (rend *OpenGLRenderer) setLights(shader *Shader, light *Light, points []PointLightItem) {
	if light == nil {
		light = CreateNightLight()
	}
	shader.SetVec3("light.direction", light.Direction)
	shader.SetVec3("light.color", light.Color)
	shader.SetFloat("light.intensity", light.Intensity)
	shader.SetFloat("light.ambientStrength", light.AmbientStrength)

	shader.SetInt("pointLightCount", int32(len(points)))
	for i, p := range points {
		shader.SetVec3(fmt.Sprintf("pointLightPositions[%d]", i), p.Position)
		shader.SetVec3(fmt.Sprintf("pointLightColors[%d]", i), mgl32.Vec3(p.Light.Color))
		shader.SetFloat(fmt.Sprintf("pointLightIntensities[%d]", i), p.Light.Intensity)
		shader.SetFloat(fmt.Sprintf("pointLightDistances[%d]", i), p.Light.Distance)
	}
}

func (rend *OpenGLRenderer) draw(shader *Shader, item *DrawItem) {
	mesh, ok := rend.mesh(item.Geometry)
	if !ok {
		return
	}
	mat := item.Material
	if mat == nil {
		mat = rend.defaultMaterial
	}
	rend.applyMaterial(shader, mat)
	shader.SetMat4("model", item.World)

	count := mesh.indexCount
	if item.Count > 0 {
		count = int32(item.Count)
	}
	offset := gl.PtrOffset(item.Start * 4)

	if item.Instanced != nil {
		in, ok := rend.instanceBuffer(item.Instanced, mesh)
		if !ok {
			return
		}
		shader.SetBool("isInstanced", true)
		gl.BindVertexArray(in.vao)
		gl.DrawElementsInstanced(gl.TRIANGLES, count, gl.UNSIGNED_INT, offset, int32(item.Instanced.Count))
	} else {
		shader.SetBool("isInstanced", false)
		gl.BindVertexArray(mesh.vao)
		gl.DrawElements(gl.TRIANGLES, count, gl.UNSIGNED_INT, offset)
	}
	gl.BindVertexArray(0)
	rend.stats.DrawCalls++
}

func (rend *OpenGLRenderer) applyMaterial(shader *Shader, mat *scene.Material) {
	shader.SetVec3("diffuseColor", mat.Color)
	shader.SetVec3("emissiveColor", mat.Emissive)
	shader.SetFloat("emissiveIntensity", mat.EmissiveIntensity)
	shader.SetFloat("roughness", mat.Roughness)
	shader.SetFloat("metalness", mat.Metalness)
	shader.SetFloat("opacity", mat.Opacity)
	shader.SetFloat("alphaTest", mat.AlphaTest)
	shader.SetFloat("aoIntensity", mat.AOMapIntensity)
	shader.SetBool("toneMapped", mat.ToneMapped)
	shader.SetMat3("uvTransform", uvMatrix(mat.Map))

	rend.bindTexture(shader, unitBase, "baseMap", "hasBaseMap", mat.Map)
	rend.bindTexture(shader, unitEmissive, "emissiveMap", "hasEmissiveMap", mat.EmissiveMap)
	rend.bindTexture(shader, unitAlpha, "alphaMap", "hasAlphaMap", mat.AlphaMap)
	rend.bindTexture(shader, unitAO, "aoMap", "hasAOMap", mat.AOMap)

	switch mat.Side {
	case scene.DoubleSide:
		gl.Disable(gl.CULL_FACE)
	case scene.BackSide:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		if FaceCullingEnabled {
			gl.Enable(gl.CULL_FACE)
			gl.CullFace(gl.BACK)
		} else {
			gl.Disable(gl.CULL_FACE)
		}
	}
	if blended(mat) {
		gl.DepthMask(mat.DepthWrite)
		if mat.Blending == scene.BlendAdditive {
			gl.BlendFunc(gl.SRC_ALPHA, gl.ONE)
		} else {
			gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		}
	} else {
		gl.DepthMask(true)
	}
}

func (rend *OpenGLRenderer) bindTexture(shader *Shader, unit uint32, sampler, flag string, tex *scene.Texture) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	id, ok := rend.texture(tex)
	if !ok {
		id = rend.defaultTexture
	}
	gl.BindTexture(gl.TEXTURE_2D, id)
	shader.SetInt(sampler, int32(unit))
	shader.SetBool(flag, ok)
}

func (rend *OpenGLRenderer) texture(tex *scene.Texture) (uint32, bool) {
	if tex == nil || tex.Disposed() {
		return 0, false
	}
	if id, ok := rend.textures.Get(tex); ok {
		if tex.NeedsUpdate && tex.Image != nil {
			id = rend.uploadTexture(tex)
			tex.NeedsUpdate = false
			rend.textures.Replace(tex, id)
		}
		return id, true
	}
	if tex.Image == nil {
		return 0, false
	}
	id := rend.uploadTexture(tex)
	tex.NeedsUpdate = false
	rend.textures.Put(tex, id)
	return id, true
}

func (rend *OpenGLRenderer) uploadTexture(tex *scene.Texture) uint32 {
	return createTexture(toRGBA(tex.Image, tex.FlipY), glWrap(tex.WrapS), glWrap(tex.WrapT), tex.ColorSpace == scene.ColorSpaceSRGB)
}

func (rend *OpenGLRenderer) mesh(geo *scene.Geometry) (gpuMesh, bool) {
	if geo == nil || geo.Disposed() || len(geo.Indices) == 0 {
		return gpuMesh{}, false
	}
	if m, ok := rend.meshes.Get(geo); ok {
		return m, true
	}
	m := uploadGeometry(geo)
	rend.meshes.Put(geo, m)
	return m, true
}

// instanceBuffer uploads the matrices when the mesh asks for it, then clears
// the flag.
func (rend *OpenGLRenderer) instanceBuffer(im *scene.InstancedMesh, mesh gpuMesh) (gpuInstances, bool) {
	if im.Disposed() || len(im.Matrices) == 0 {
		return gpuInstances{}, false
	}
	in, ok := rend.instances.Get(im)
	if !ok {
		in = createInstanceVAO(mesh)
		rend.instances.Put(im, in)
		im.NeedsUpdate = true
	}
	if needsUpload(im, in) {
		size := len(im.Matrices) * int(unsafe.Sizeof(mgl32.Mat4{}))
		gl.BindBuffer(gl.ARRAY_BUFFER, in.vbo)
		if in.capacity != len(im.Matrices) {
			gl.BufferData(gl.ARRAY_BUFFER, size, gl.Ptr(im.Matrices), gl.DYNAMIC_DRAW)
			in.capacity = len(im.Matrices)
			rend.instances.Replace(im, in)
		} else {
			gl.BufferSubData(gl.ARRAY_BUFFER, 0, size, gl.Ptr(im.Matrices))
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, 0)
		im.NeedsUpdate = false
	}
	return in, true
}

// needsUpload reports whether the instance buffer must be written.
func needsUpload(im *scene.InstancedMesh, in gpuInstances) bool {
	return im.NeedsUpdate || in.capacity != len(im.Matrices)
}

func (rend *OpenGLRenderer) Cleanup() {
	for _, m := range rend.meshes.All() {
		deleteMesh(m)
	}
	for _, id := range rend.textures.All() {
		gl.DeleteTextures(1, &id)
	}
	for _, in := range rend.instances.All() {
		deleteInstances(in)
	}
	if rend.defaultTexture != 0 {
		gl.DeleteTextures(1, &rend.defaultTexture)
		rend.defaultTexture = 0
	}
	rend.defaultShader.Delete()
	logger.Log.Info("OpenGL renderer cleaned up", zap.Int("freed", rend.stats.Freed))
}

func uploadGeometry(geo *scene.Geometry) gpuMesh {
	data := geo.Interleaved()
	var m gpuMesh
	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STATIC_DRAW)

	gl.GenBuffers(1, &m.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(geo.Indices)*4, gl.Ptr(geo.Indices), gl.STATIC_DRAW)

	bindVertexLayout()
	gl.BindVertexArray(0)
	m.indexCount = int32(len(geo.Indices))
	return m
}

// bindVertexLayout describes the interleaved [pos, uv, normal] layout of the
// bound ARRAY_BUFFER.
func bindVertexLayout() {
	stride := int32(8 * 4)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, stride, gl.PtrOffset(3*4))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(2, 3, gl.FLOAT, false, stride, gl.PtrOffset(5*4))
	gl.EnableVertexAttribArray(2)
}

// createInstanceVAO builds a VAO over the mesh buffers plus a per-instance
// mat4 attribute at locations 3..6.
func createInstanceVAO(mesh gpuMesh) gpuInstances {
	var in gpuInstances
	gl.GenVertexArrays(1, &in.vao)
	gl.BindVertexArray(in.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, mesh.vbo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, mesh.ebo)
	bindVertexLayout()

	gl.GenBuffers(1, &in.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, in.vbo)
	matSize := int32(unsafe.Sizeof(mgl32.Mat4{}))
	for i := 0; i < 4; i++ {
		loc := uint32(3 + i)
		gl.EnableVertexAttribArray(loc)
		gl.VertexAttribPointer(loc, 4, gl.FLOAT, false, matSize, gl.PtrOffset(i*16))
		gl.VertexAttribDivisor(loc, 1)
	}
	gl.BindVertexArray(0)
	in.capacity = -1
	return in
}

func deleteMesh(m gpuMesh) {
	gl.DeleteVertexArrays(1, &m.vao)
	gl.DeleteBuffers(1, &m.vbo)
	gl.DeleteBuffers(1, &m.ebo)
}

func deleteInstances(in gpuInstances) {
	gl.DeleteVertexArrays(1, &in.vao)
	gl.DeleteBuffers(1, &in.vbo)
}

func createTexture(rgba *image.RGBA, wrapS, wrapT int32, srgb bool) uint32 {
	internal := int32(gl.RGBA8)
	if srgb {
		internal = gl.SRGB8_ALPHA8
	}
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal,
		int32(rgba.Rect.Dx()), int32(rgba.Rect.Dy()),
		0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(rgba.Pix))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, wrapS)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, wrapT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.GenerateMipmap(gl.TEXTURE_2D)
	return id
}

func glWrap(w scene.WrapMode) int32 {
	switch w {
	case scene.WrapRepeat:
		return gl.REPEAT
	case scene.WrapMirroredRepeat:
		return gl.MIRRORED_REPEAT
	default:
		return gl.CLAMP_TO_EDGE
	}
}

// toRGBA converts img to a tightly packed RGBA image with its origin at
// (0,0). With flipY the rows are reversed so row 0 is the bottom of the image.
func toRGBA(img image.Image, flipY bool) *image.RGBA {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) || rgba.Stride != b.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	if !flipY {
		return rgba
	}
	out := image.NewRGBA(rgba.Rect)
	h, stride := rgba.Rect.Dy(), rgba.Stride
	for y := 0; y < h; y++ {
		copy(out.Pix[y*stride:(y+1)*stride], rgba.Pix[(h-1-y)*stride:(h-y)*stride])
	}
	return out
}

func GenShader(source string, shaderType uint32) (uint32, bool) {
	shader := gl.CreateShader(shaderType)
	cSources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, cSources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		logger.Log.Error("Failed to compile", zap.Uint32("shaderType", shaderType), zap.String("log", log))
		gl.DeleteShader(shader)
		return 0, false
	}
	return shader, true
}

func GenShaderProgram(vertexShader, fragmentShader uint32) (uint32, bool) {
	program := gl.CreateProgram()
	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	ok := status != gl.FALSE
	if !ok {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		logger.Log.Error("Failed to link program", zap.String("log", log))
	}
	gl.DetachShader(program, vertexShader)
	gl.DeleteShader(vertexShader)
	gl.DetachShader(program, fragmentShader)
	gl.DeleteShader(fragmentShader)
	if !ok {
		gl.DeleteProgram(program)
		return 0, false
	}
	return program, true
}
