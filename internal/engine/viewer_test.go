package engine

import (
	"CityBuilder/internal/scene"
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsOnDrain(t *testing.T) {
	v := NewViewer(scene.NewScene(), 800, 600)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, v.Post(context.Background(), func() { order = append(order, i) }))
	}
	assert.Empty(t, order)

	assert.Equal(t, 3, v.runTasks())
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Zero(t, v.runTasks())
}

func TestPostGivesUpWhenQueueFull(t *testing.T) {
	v := NewViewer(scene.NewScene(), 800, 600)
	v.tasks = make(chan func(), 1)
	require.NoError(t, v.Post(context.Background(), func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, v.Post(ctx, func() {}), context.Canceled)
}

func TestPickFromScreenCentre(t *testing.T) {
	s := scene.NewScene()
	house := scene.NewMeshNode("house", scene.NewMesh(scene.NewBoxGeometry(4, 4, 4), scene.NewMaterial("wall")))
	house.UserData["instanceId"] = "house-1"
	s.Add(house)

	v := NewViewer(s, 800, 600)
	v.Camera.Position = mgl32.Vec3{0, 0, 20}
	v.Camera.LookAt(mgl32.Vec3{})

	hit, ok := v.pick(400, 300, 800, 600)
	require.True(t, ok)
	assert.Equal(t, "house-1", hit.InstanceID)
	assert.InDelta(t, 18, hit.Distance, 1e-3)

	_, ok = v.pick(0, 0, 0, 0)
	assert.False(t, ok)
}
