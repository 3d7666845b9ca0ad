package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Sriram-PR/sitemap-builder/pkg/models"
	"github.com/Sriram-PR/sitemap-builder/pkg/orchestrate"
	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

const stateFileName = "watch_state.json"

// SiteState contains the last run information for a site
type SiteState struct {
	LastRunTime    time.Time               `json:"last_run_time"`
	LastRunID      string                  `json:"last_run_id"`
	LastRunSuccess bool                    `json:"last_run_success"`
	Status         models.GenerationStatus `json:"status"`
	URLCount       int                     `json:"url_count"`
	FilesWritten   int                     `json:"files_written"`
	FilesSkipped   int                     `json:"files_skipped"`
	ErrorMessage   string                  `json:"error_message,omitempty"`
}

// WatchState contains the persistent state for the watcher
type WatchState struct {
	Sites     map[string]SiteState `json:"sites"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	fs        afero.Fs
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager storing its file under stateDir on fs
func NewStateManager(fs afero.Fs, stateDir string) *StateManager {
	return &StateManager{
		fs:        fs,
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state: WatchState{
			Sites: make(map[string]SiteState),
		},
	}
}

// Load loads the state from disk
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := afero.ReadFile(m.fs, m.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No state file yet, start fresh
			m.state = WatchState{
				Sites: make(map[string]SiteState),
			}
			return nil
		}
		return fmt.Errorf("%w: failed to read state file: %w", utils.ErrFilesystem, err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("%w: failed to parse state file: %w", utils.ErrParsing, err)
	}

	if m.state.Sites == nil {
		m.state.Sites = make(map[string]SiteState)
	}

	return nil
}

// Save saves the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := m.fs.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create state directory: %w", utils.ErrFilesystem, err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := afero.WriteFile(m.fs, m.statePath, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write state file: %w", utils.ErrFilesystem, err)
	}

	return nil
}

// GetSiteState returns the state for a specific site
func (m *StateManager) GetSiteState(siteKey string) (SiteState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Sites[siteKey]
	return state, ok
}

// UpdateSiteState records the outcome of one generation run
func (m *StateManager) UpdateSiteState(result orchestrate.SiteResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := SiteState{
		LastRunTime:    time.Now(),
		LastRunID:      result.RunID,
		LastRunSuccess: result.Success,
		Status:         result.Status,
		URLCount:       result.URLCount,
		FilesWritten:   result.FilesWritten,
		FilesSkipped:   result.FilesSkipped,
	}
	if result.Error != nil {
		state.ErrorMessage = result.Error.Error()
	}
	m.state.Sites[result.SiteKey] = state
}

// ShouldRun checks if a site is due for periodic regeneration
func (m *StateManager) ShouldRun(siteKey string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sites[siteKey]
	if !ok {
		// Never run before, should run now
		return true
	}

	return time.Since(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the site should next run
func (m *StateManager) GetNextRunTime(siteKey string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Sites[siteKey]
	if !ok {
		return time.Now()
	}

	return state.LastRunTime.Add(interval)
}

// GetAllSiteStates returns a copy of all site states
func (m *StateManager) GetAllSiteStates() map[string]SiteState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]SiteState, len(m.state.Sites))
	for k, v := range m.state.Sites {
		result[k] = v
	}
	return result
}
