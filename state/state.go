// state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateManagerInterface is what the orchestrator needs from persisted state.
type StateManagerInterface interface {
	// GetFullState returns a deep copy of the current state for startup reconciliation.
	GetFullState() AppState
	// UpdateRiskLevels replaces the persisted protective levels.
	UpdateRiskLevels(levels map[string]LevelState) error
	// UpdateRealizedPNL stores the cumulative realized profit.
	UpdateRealizedPNL(pnl float64) error
}

// LevelState is the persisted form of a position's stop and target.
type LevelState struct {
	Direction  string    `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppState is the top-level structure persisted to the state file.
type AppState struct {
	RiskLevels  map[string]LevelState `json:"risk_levels"`
	RealizedPNL float64               `json:"realized_pnl"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// StateManager is the JSON file implementation of StateManagerInterface.
type StateManager struct {
	mu       sync.RWMutex
	filePath string
	state    *AppState
}

var _ StateManagerInterface = (*StateManager)(nil)

// NewStateManager loads existing state, or creates the file with an empty state when it does not exist.
func NewStateManager(filePath string) (*StateManager, error) {
	sm := &StateManager{
		filePath: filePath,
		state:    &AppState{RiskLevels: make(map[string]LevelState)},
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := sm.load(); err != nil {
		if os.IsNotExist(err) {
			if err := sm.save(); err != nil {
				return nil, fmt.Errorf("failed to create initial empty state file: %w", err)
			}
			return sm, nil
		}
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}
	if sm.state.RiskLevels == nil {
		sm.state.RiskLevels = make(map[string]LevelState)
	}
	return sm, nil
}

// save writes atomically through a temporary file. Callers hold the lock.
func (sm *StateManager) save() error {
	sm.state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(sm.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for saving: %w", err)
	}

	tmpFilePath := sm.filePath + ".tmp"
	if err := os.WriteFile(tmpFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temporary state file: %w", err)
	}
	return os.Rename(tmpFilePath, sm.filePath)
}

func (sm *StateManager) load() error {
	data, err := os.ReadFile(sm.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, sm.state)
}

func (sm *StateManager) GetFullState() AppState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	copied := *sm.state
	copied.RiskLevels = make(map[string]LevelState, len(sm.state.RiskLevels))
	for k, v := range sm.state.RiskLevels {
		copied.RiskLevels[k] = v
	}
	return copied
}

func (sm *StateManager) UpdateRiskLevels(levels map[string]LevelState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.RiskLevels = make(map[string]LevelState, len(levels))
	for k, v := range levels {
		sm.state.RiskLevels[k] = v
	}
	return sm.save()
}

func (sm *StateManager) UpdateRealizedPNL(pnl float64) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state.RealizedPNL = pnl
	return sm.save()
}
