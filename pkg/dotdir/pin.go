package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	pinFile = "pin.json"
)

// PinState represents the persisted pin: the graph node a user has marked
// as the current focus. Inspect and browse sessions start from it.
type PinState struct {
	// NodeID is the id of the pinned node.
	NodeID string `json:"node_id"`

	// Hash is the pinned node's content hash at pin time. A later lookup
	// that finds a different hash for the same id means the log was
	// rewritten underneath the pin.
	Hash string `json:"hash"`

	// PinnedAt records when the pin was set.
	PinnedAt time.Time `json:"pinned_at"`
}

// LoadPinState loads the pin from a target .spool/pin.json.
// Returns nil, nil if no pin exists.
// If overrideDir is non-empty, it is used instead of the default .spool/ location.
func (m *Manager) LoadPinState(overrideDir string) (*PinState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, pinFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pin state: %w", err)
	}

	state := &PinState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing pin state: %w", err)
	}

	return state, nil
}

// SavePin persists the pin to a target .spool/pin.json.
func (m *Manager) SavePin(state *PinState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil pin state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pin state: %w", err)
	}

	path := filepath.Join(dir, pinFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing pin state: %w", err)
	}

	return nil
}

// ClearPin removes the pin file, so the next inspect or browse session
// starts from the graph roots.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearPin(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, pinFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing pin state: %w", err)
	}

	return nil
}
