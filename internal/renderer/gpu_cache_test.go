package renderer

import (
	"CityBuilder/internal/scene"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleCacheReleasesOnDispose(t *testing.T) {
	c := newHandleCache[*scene.Texture, uint32]("textures")
	tex := scene.NewTexture("a.png", nil)

	c.Put(tex, 7)
	got, ok := c.Get(tex)
	assert.True(t, ok)
	assert.Equal(t, uint32(7), got)
	assert.Empty(t, c.Drain())

	tex.Dispose()
	_, ok = c.Get(tex)
	assert.False(t, ok)
	assert.Equal(t, []uint32{7}, c.Drain())
	assert.Empty(t, c.Drain(), "drain clears the queue")

	s := c.Stats()
	assert.Equal(t, 1, s.Uploads)
	assert.Equal(t, 1, s.Hits)
	assert.Equal(t, 0, s.Live)
	assert.Equal(t, 1, s.Released)
}

func TestHandleCachePutDisposedKey(t *testing.T) {
	c := newHandleCache[*scene.Geometry, gpuMesh]("meshes")
	geo := scene.NewBoxGeometry(1, 1, 1)
	geo.Dispose()

	c.Put(geo, gpuMesh{vao: 3})
	assert.Equal(t, []gpuMesh{{vao: 3}}, c.Drain())
	assert.Zero(t, c.Stats().Live)
}

func TestHandleCacheReplaceQueuesOldHandle(t *testing.T) {
	c := newHandleCache[*scene.Texture, uint32]("textures")
	tex := scene.NewTexture("a.png", nil)

	c.Put(tex, 1)
	c.Replace(tex, 2)
	assert.Equal(t, []uint32{1}, c.Drain())

	got, _ := c.Get(tex)
	assert.Equal(t, uint32(2), got)

	// Only the current handle is released; the listener from Put fires once.
	tex.Dispose()
	assert.Equal(t, []uint32{2}, c.Drain())
}

func TestHandleCacheAll(t *testing.T) {
	c := newHandleCache[*scene.Texture, uint32]("textures")
	a, b := scene.NewTexture("a.png", nil), scene.NewTexture("b.png", nil)
	c.Put(a, 1)
	c.Put(b, 2)
	a.Dispose()

	assert.ElementsMatch(t, []uint32{1, 2}, c.All())
	assert.Empty(t, c.All())
	assert.Zero(t, c.Stats().Live)

	// Disposing after All must not queue a handle that was already returned.
	b.Dispose()
	assert.Empty(t, c.Drain())
}
