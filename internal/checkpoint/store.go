// Package checkpoint persists setup progress so a crashed run can be
// diagnosed and resumed.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ServiceState is the persisted slice of a service record.
type ServiceState struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Port   int    `json:"port,omitempty"`
}

// Checkpoint is the snapshot written after every phase transition.
type Checkpoint struct {
	Stage     string                  `json:"stage"`
	Timestamp time.Time               `json:"timestamp"`
	Services  map[string]ServiceState `json:"services"`
}

// Store persists checkpoints as JSON on disk.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore returns a JSON-backed checkpoint store.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint. The second return value is false when no usable
// checkpoint exists; a corrupt file is logged and treated as absent rather
// than failing the run.
func (s *Store) Load(ctx context.Context) (Checkpoint, bool, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, false, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn().Str("path", s.path).Err(err).Msg("checkpoint corrupt, starting fresh")
		return Checkpoint{}, false, nil
	}
	if cp.Services == nil {
		cp.Services = map[string]ServiceState{}
	}
	return cp, true, nil
}

// Save writes the checkpoint to disk atomically.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.Services == nil {
		cp.Services = map[string]ServiceState{}
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	encoder := json.NewEncoder(tempFile)
	if err := encoder.Encode(cp); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		cleanup()
		return err
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return nil
}

// Clear removes the checkpoint file. Missing files are not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
