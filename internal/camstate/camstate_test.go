package camstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Storage {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenSQLite(filepath.Join(dir, "camera.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Storage{
		"memory": &MemoryStorage{},
		"file":   NewFileStorage(filepath.Join(dir, "nested", "camera.json")),
		"sqlite": db,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := Load(store, now)
			assert.ErrorIs(t, err, ErrNotFound)

			want := State{Position: Vec3{X: 10, Y: 80, Z: -40}, Target: Vec3{Y: 5}}
			require.NoError(t, Save(store, want, now))

			got, err := Load(store, now.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, want.Position, got.Position)
			assert.Equal(t, want.Target, got.Target)
			assert.Equal(t, now.UnixMilli(), got.Timestamp)

			require.NoError(t, Clear(store))
			_, err = Load(store, now)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestExpiredStateIsRemoved(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, Save(store, State{Position: Vec3{X: 1}}, now))

			_, err := Load(store, now.Add(MaxAge+time.Minute))
			assert.ErrorIs(t, err, ErrExpired)

			_, ok, err := store.GetItem(Key)
			require.NoError(t, err)
			assert.False(t, ok, "expired entry must be deleted")
		})
	}
}

func TestWireFormat(t *testing.T) {
	store := &MemoryStorage{}
	now := time.UnixMilli(1700000000123)
	require.NoError(t, Save(store, State{Position: Vec3{X: 1, Y: 2, Z: 3}, Target: Vec3{X: 4, Y: 5, Z: 6}}, now))

	raw, ok, _ := store.GetItem("cityBuilderCameraState")
	require.True(t, ok)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, map[string]any{"x": 1.0, "y": 2.0, "z": 3.0}, doc["position"])
	assert.Equal(t, map[string]any{"x": 4.0, "y": 5.0, "z": 6.0}, doc["target"])
	assert.Equal(t, 1700000000123.0, doc["timestamp"])
}

func TestUnreadableStateIsDiscarded(t *testing.T) {
	store := &MemoryStorage{}
	require.NoError(t, store.SetItem(Key, "{not json"))
	_, err := Load(store, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok, _ := store.GetItem(Key)
	assert.False(t, ok)
}

func TestFileStorageKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	fs := NewFileStorage(path)
	require.NoError(t, fs.SetItem("other", "1"))
	require.NoError(t, Save(fs, State{}, time.Now()))
	require.NoError(t, Clear(fs))

	v, ok, err := fs.GetItem("other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, _, err = fs.GetItem("other")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open("file", filepath.Join(t.TempDir(), "c.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	_, err = Open("cookie", "x")
	assert.Error(t, err)
}
