package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"marketanalytics/webclient/internal/models"
	"marketanalytics/webclient/internal/store"
)

// ErrWorkspaceNotFound is returned for a token with no stored workspace.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// StoreFactory builds the action store of a workspace over its durable
// settings.
type StoreFactory func(token string, settings store.SettingsStore) *store.Store

// WorkspaceService creates workspaces and keeps one live store per
// workspace. A workspace that exists in Redis but not in memory (after a
// restart) is rebuilt from its persisted settings.
type WorkspaceService struct {
	redis      *RedisClient
	newStore   StoreFactory
	defaultURL string
	logger     *zap.Logger

	mu     sync.Mutex
	stores map[string]*store.Store
}

// NewWorkspaceService creates a new WorkspaceService.
func NewWorkspaceService(redis *RedisClient, defaultURL string, newStore StoreFactory, logger *zap.Logger) *WorkspaceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkspaceService{
		redis:      redis,
		newStore:   newStore,
		defaultURL: defaultURL,
		logger:     logger,
		stores:     map[string]*store.Store{},
	}
}

// Create registers a new workspace and returns its store.
func (w *WorkspaceService) Create(ctx context.Context) (*store.Store, error) {
	meta := models.Workspace{Token: uuid.New().String(), CreatedAt: time.Now().UTC()}
	if err := w.redis.SetJSON(ctx, workspaceKey(meta.Token, "meta"), meta); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return w.open(ctx, meta.Token)
}

// Get returns the store of workspace token. A cached store whose workspace
// expired in Redis is evicted and reported as not found.
func (w *WorkspaceService) Get(ctx context.Context, token string) (*store.Store, error) {
	exists, err := w.Exists(ctx, token)
	if err != nil {
		return nil, err
	}
	if !exists {
		w.evict(token)
		return nil, ErrWorkspaceNotFound
	}

	w.mu.Lock()
	st, ok := w.stores[token]
	w.mu.Unlock()
	if ok {
		return st, nil
	}
	return w.open(ctx, token)
}

// Exists reports whether token names a stored workspace.
func (w *WorkspaceService) Exists(ctx context.Context, token string) (bool, error) {
	if _, err := uuid.Parse(token); err != nil {
		return false, nil
	}
	ok, err := w.redis.Exists(ctx, workspaceKey(token, "meta"))
	if err != nil {
		return false, fmt.Errorf("lookup workspace: %w", err)
	}
	return ok, nil
}

// Heartbeat refreshes the TTL on all keys of a workspace.
func (w *WorkspaceService) Heartbeat(ctx context.Context, token string) error {
	exists, err := w.Exists(ctx, token)
	if err != nil {
		return err
	}
	if !exists {
		w.evict(token)
		return ErrWorkspaceNotFound
	}
	return w.redis.RefreshTTL(ctx, fmt.Sprintf("workspace:%s:", token))
}

// Sweep evicts every live store whose workspace expired in Redis and
// returns how many were evicted.
func (w *WorkspaceService) Sweep(ctx context.Context) (int, error) {
	w.mu.Lock()
	tokens := make([]string, 0, len(w.stores))
	for token := range w.stores {
		tokens = append(tokens, token)
	}
	w.mu.Unlock()

	evicted := 0
	for _, token := range tokens {
		exists, err := w.Exists(ctx, token)
		if err != nil {
			return evicted, err
		}
		if !exists && w.evict(token) {
			evicted++
		}
	}
	return evicted, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (w *WorkspaceService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Sweep(ctx)
			if err != nil {
				w.logger.Warn("workspace sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				w.logger.Info("evicted expired workspaces", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of live stores.
func (w *WorkspaceService) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stores)
}

// Close closes the event hub of every live store.
func (w *WorkspaceService) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for token, st := range w.stores {
		st.Events().Close()
		delete(w.stores, token)
	}
}

func (w *WorkspaceService) evict(token string) bool {
	w.mu.Lock()
	st, ok := w.stores[token]
	delete(w.stores, token)
	w.mu.Unlock()
	if ok {
		st.Events().Close()
		w.logger.Debug("workspace evicted", zap.String("workspace", token))
	}
	return ok
}

// open builds and restores a store without holding w.mu; when another
// caller opened the same workspace first, its store wins.
func (w *WorkspaceService) open(ctx context.Context, token string) (*store.Store, error) {
	st := w.newStore(token, NewSettingsRepository(w.redis, token, w.defaultURL))
	if err := st.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore workspace %s: %w", token, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.stores[token]; ok {
		st.Events().Close()
		return existing, nil
	}
	w.stores[token] = st
	w.logger.Debug("workspace opened", zap.String("workspace", token))
	return st, nil
}
