package city

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsChangedFile(t *testing.T) {
	c, dir := newCity(t)
	path := filepath.Join(dir, "city.yaml")
	writeFile(t, path, cityDoc)
	_, err := c.LoadFile(context.Background(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu      sync.Mutex
		reloads []Summary
	)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, []string{path}, func(s Summary, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				reloads = append(reloads, s)
			}
		})
	}()

	// Give the watcher time to register before touching the file.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "other.yaml"), "collections: []\n")
	writeFile(t, path, "collections:\n  - name: block\n    instances:\n      - {instanceId: h9, modelType: HOUSE, position: [0, 0, 0]}\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloads) > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, ok := c.Models.GetPlacedModel("h9")
	assert.True(t, ok)
	_, ok = c.Models.GetPlacedModel("h1")
	assert.False(t, ok)
}

func TestWatchRelativePathReplacesPlacements(t *testing.T) {
	c, dir := newCity(t)
	writeFile(t, filepath.Join(dir, "city.yaml"), cityDoc)
	t.Chdir(dir)
	_, err := c.LoadFile(context.Background(), "city.yaml")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan Summary, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, []string{"city.yaml"}, func(s Summary, err error) {
			if err != nil {
				return
			}
			select {
			case reloaded <- s:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, "city.yaml", "collections:\n  - name: block\n    instances:\n      - {instanceId: h1, modelType: HOUSE, position: [9, 0, 0]}\n")

	timeout := time.After(5 * time.Second)
	for placed := false; !placed; {
		select {
		case sum := <-reloaded:
			placed = sum.Models == 1
		case <-timeout:
			t.Fatal("no reload after the file changed")
		}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{filepath.Join(dir, "city.yaml")}, c.Sources())
	h1, ok := c.Models.GetPlacedModel("h1")
	require.True(t, ok)
	assert.Equal(t, float32(9), h1.Position.X())
	_, ok = c.Models.GetPlacedModel("h2")
	assert.False(t, ok)
	assert.Empty(t, c.Ads.PlacedAds())
}
