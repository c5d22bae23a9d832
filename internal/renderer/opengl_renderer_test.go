package renderer

import (
	"CityBuilder/internal/scene"
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRGBAFlipsRows(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255})

	flat := toRGBA(img, false)
	assert.Equal(t, []uint8{255, 0, 0, 255, 0, 0, 255, 255}, flat.Pix)

	flipped := toRGBA(img, true)
	assert.Equal(t, []uint8{0, 0, 255, 255, 255, 0, 0, 255}, flipped.Pix)
	assert.Equal(t, []uint8{255, 0, 0, 255, 0, 0, 255, 255}, img.Pix, "source untouched")
}

func TestToRGBARepacksSubImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Set(2, 2, color.RGBA{G: 255, A: 255})
	sub := src.SubImage(image.Rect(2, 2, 4, 4))

	out := toRGBA(sub, false)
	require.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, 8, out.Stride)
	assert.Equal(t, []uint8{0, 255, 0, 255}, out.Pix[:4])

	same := image.NewRGBA(image.Rect(0, 0, 2, 2))
	assert.Same(t, same, toRGBA(same, false))
}

func TestGLWrap(t *testing.T) {
	assert.Equal(t, int32(gl.REPEAT), glWrap(scene.WrapRepeat))
	assert.Equal(t, int32(gl.MIRRORED_REPEAT), glWrap(scene.WrapMirroredRepeat))
	assert.Equal(t, int32(gl.CLAMP_TO_EDGE), glWrap(scene.WrapClampToEdge))
}

func TestNeedsUpload(t *testing.T) {
	im := scene.NewInstancedMesh(scene.NewBoxGeometry(1, 1, 1), scene.NewMaterial("m"), 3)
	assert.True(t, needsUpload(im, gpuInstances{capacity: 3}), "new meshes start dirty")

	im.NeedsUpdate = false
	assert.False(t, needsUpload(im, gpuInstances{capacity: 3}))
	assert.True(t, needsUpload(im, gpuInstances{capacity: 2}), "capacity changed")
}

func TestBlended(t *testing.T) {
	m := scene.NewMaterial("m")
	assert.False(t, blended(m))
	assert.False(t, blended(nil))

	m.Transparent = true
	assert.True(t, blended(m))

	add := scene.NewMaterial("logo")
	add.Blending = scene.BlendAdditive
	assert.True(t, blended(add))
}
