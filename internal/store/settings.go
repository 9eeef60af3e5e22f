package store

import (
	"context"
	"sync"

	"marketanalytics/webclient/internal/models"
)

// SettingsStore persists the workspace settings that survive a restart.
type SettingsStore interface {
	Load(ctx context.Context) (models.Settings, error)
	SaveAPIURL(ctx context.Context, apiURL string) error
	SaveSession(ctx context.Context, session models.Session) error
	ClearSession(ctx context.Context) error
}

// MemorySettings is a process-local SettingsStore.
type MemorySettings struct {
	mu       sync.Mutex
	settings models.Settings
}

func (m *MemorySettings) Load(context.Context) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.settings
	if out.Session != nil {
		s := *out.Session
		out.Session = &s
	}
	return out, nil
}

func (m *MemorySettings) SaveAPIURL(_ context.Context, apiURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.APIURL = apiURL
	return nil
}

func (m *MemorySettings) SaveSession(_ context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.Session = &session
	return nil
}

func (m *MemorySettings) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.Session = nil
	return nil
}
