// state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bhtaylor94/Stock-data/ledger"
	"github.com/bhtaylor94/Stock-data/logs"
	"github.com/bhtaylor94/Stock-data/profit"
	"github.com/bhtaylor94/Stock-data/risk"
)

// StateManagerInterface is what the engine needs from persistence.
type StateManagerInterface interface {
	// GetFullState returns a deep copy of the persisted state.
	GetFullState() AppState
	// Save replaces the persisted state atomically.
	Save(st AppState) error
}

// AppState is the top-level structure persisted to the state file.
type AppState struct {
	SavedAt       time.Time                       `json:"saved_at"`
	Mode          string                          `json:"mode"`
	Positions     []ledger.Position               `json:"positions"`
	Risk          risk.State                      `json:"risk"`
	StrategyStats map[string]profit.StrategyStats `json:"strategy_stats"`
	LastLoss      map[string]bool                 `json:"last_loss"`
}

func (st AppState) clone() AppState {
	out := st
	out.Positions = append([]ledger.Position(nil), st.Positions...)
	out.Risk.TrailingStops = make(map[string]float64, len(st.Risk.TrailingStops))
	for k, v := range st.Risk.TrailingStops {
		out.Risk.TrailingStops[k] = v
	}
	out.Risk.ConsecutiveLosses = make(map[string]int, len(st.Risk.ConsecutiveLosses))
	for k, v := range st.Risk.ConsecutiveLosses {
		out.Risk.ConsecutiveLosses[k] = v
	}
	out.StrategyStats = make(map[string]profit.StrategyStats, len(st.StrategyStats))
	for k, v := range st.StrategyStats {
		out.StrategyStats[k] = v
	}
	out.LastLoss = make(map[string]bool, len(st.LastLoss))
	for k, v := range st.LastLoss {
		out.LastLoss[k] = v
	}
	return out
}

// StateManager is the file implementation of StateManagerInterface.
type StateManager struct {
	mu       sync.RWMutex
	filePath string
	state    AppState
}

// NewStateManager loads existing state, or creates an empty state file if none exists.
func NewStateManager(filePath string) (*StateManager, error) {
	sm := &StateManager{filePath: filePath}

	if err := sm.load(); err != nil {
		if os.IsNotExist(err) {
			logs.Infof("[State] State file not found at %s. Starting with a fresh state.", filePath)
			if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
			if err := sm.save(); err != nil {
				return nil, fmt.Errorf("failed to create initial empty state file: %w", err)
			}
			return sm, nil
		}
		return nil, fmt.Errorf("failed to load initial state: %w", err)
	}
	return sm, nil
}

// LoadState reads a state file without creating or modifying it.
func LoadState(filePath string) (AppState, error) {
	sm := &StateManager{filePath: filePath}
	if err := sm.load(); err != nil {
		return AppState{}, err
	}
	return sm.state.clone(), nil
}

// save writes to a temporary file and renames it over the target. Callers hold the lock.
func (sm *StateManager) save() error {
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
	return json.Unmarshal(data, &sm.state)
}

func (sm *StateManager) GetFullState() AppState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state.clone()
}

func (sm *StateManager) Save(st AppState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.state = st.clone()
	if sm.state.SavedAt.IsZero() {
		sm.state.SavedAt = time.Now()
	}
	return sm.save()
}

// Path is the state file location.
func (sm *StateManager) Path() string { return sm.filePath }
