// Package camstate persists the last camera position between sessions.
package camstate

import (
	"CityBuilder/internal/logger"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	Key    = "cityBuilderCameraState"
	MaxAge = 24 * time.Hour
)

var (
	ErrNotFound = errors.New("camera state not found")
	ErrExpired  = errors.New("camera state expired")
)

// Storage is a string key/value store in the manner of browser local storage.
// GetItem reports ok=false for a missing key.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type State struct {
	Position Vec3 `json:"position"`
	Target   Vec3 `json:"target"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

func (s State) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Save stamps the state with now and stores it under Key.
func Save(store Storage, state State, now time.Time) error {
	state.Timestamp = now.UnixMilli()
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := store.SetItem(Key, string(data)); err != nil {
		return fmt.Errorf("save camera state: %w", err)
	}
	logger.Log.Debug("Camera state saved", zap.Any("position", state.Position))
	return nil
}

// Load returns the stored state. A state older than MaxAge is removed and
// reported as ErrExpired. Unreadable entries are removed too.
func Load(store Storage, now time.Time) (State, error) {
	raw, ok, err := store.GetItem(Key)
	if err != nil {
		return State{}, fmt.Errorf("load camera state: %w", err)
	}
	if !ok {
		return State{}, ErrNotFound
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		logger.Log.Warn("Discarding unreadable camera state", zap.Error(err))
		_ = store.RemoveItem(Key)
		return State{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if now.Sub(state.Time()) > MaxAge {
		if err := store.RemoveItem(Key); err != nil {
			logger.Log.Warn("Failed to remove expired camera state", zap.Error(err))
		}
		return State{}, ErrExpired
	}
	return state, nil
}

func Clear(store Storage) error {
	return store.RemoveItem(Key)
}
