package services

import (
	"context"
	"errors"
	"fmt"

	"marketanalytics/webclient/internal/models"
)

func workspaceKey(token, suffix string) string {
	return fmt.Sprintf("workspace:%s:%s", token, suffix)
}

// SettingsRepository keeps the durable settings of one workspace in Redis.
type SettingsRepository struct {
	redis      *RedisClient
	token      string
	defaultURL string
}

// NewSettingsRepository returns the settings of workspace token. Load
// reports defaultURL until another URL is saved.
func NewSettingsRepository(redis *RedisClient, token, defaultURL string) *SettingsRepository {
	return &SettingsRepository{redis: redis, token: token, defaultURL: defaultURL}
}

func (s *SettingsRepository) Load(ctx context.Context) (models.Settings, error) {
	settings := models.Settings{APIURL: s.defaultURL}

	var apiURL string
	err := s.redis.GetJSON(ctx, workspaceKey(s.token, "api_url"), &apiURL)
	switch {
	case err == nil && apiURL != "":
		settings.APIURL = apiURL
	case err != nil && !errors.Is(err, ErrNotFound):
		return settings, fmt.Errorf("load api url: %w", err)
	}

	var session models.Session
	err = s.redis.GetJSON(ctx, workspaceKey(s.token, "session"), &session)
	switch {
	case err == nil:
		settings.Session = &session
	case !errors.Is(err, ErrNotFound):
		return settings, fmt.Errorf("load session: %w", err)
	}
	return settings, nil
}

func (s *SettingsRepository) SaveAPIURL(ctx context.Context, apiURL string) error {
	return s.redis.SetJSON(ctx, workspaceKey(s.token, "api_url"), apiURL)
}

func (s *SettingsRepository) SaveSession(ctx context.Context, session models.Session) error {
	return s.redis.SetJSON(ctx, workspaceKey(s.token, "session"), session)
}

func (s *SettingsRepository) ClearSession(ctx context.Context) error {
	return s.redis.Delete(ctx, workspaceKey(s.token, "session"))
}
