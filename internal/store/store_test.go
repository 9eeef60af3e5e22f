package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"marketanalytics/webclient/internal/apiclient"
	"marketanalytics/webclient/internal/mockapi"
	"marketanalytics/webclient/internal/models"
	"marketanalytics/webclient/internal/result"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// statuses returns the status sequence seen on slot.
func (l *eventLog) statuses(slot string) []result.Status {
	var out []result.Status
	for _, e := range l.all() {
		if e.Kind == KindTransition && e.Slot == slot {
			out = append(out, e.Status)
		}
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

type fixture struct {
	backend  *mockapi.Server
	url      string
	settings *MemorySettings
	events   *eventLog
	store    *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := mockapi.New()
	backend.AddUser("test@test.com", "tester", "test123")
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	f := &fixture{backend: backend, url: srv.URL, settings: &MemorySettings{}, events: &eventLog{}}
	f.store = f.open()
	return f
}

// open builds a fresh store over the same backend and durable settings, as
// a restarted process would.
func (f *fixture) open() *Store {
	return New("ws-test",
		apiclient.NewProvider(apiclient.Config{BaseURL: f.url}),
		WithSettings(f.settings),
		WithObserver(f.events),
	)
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	r, err := f.store.Login(context.Background(), "test@test.com", "test123")
	require.NoError(t, err)
	require.True(t, r.IsSuccess())
}

func (f *fixture) createProduct(t *testing.T, name, url string) models.Product {
	t.Helper()
	r, err := f.store.CreateProduct(context.Background(), name, url)
	require.NoError(t, err)
	p, ok := r.Data()
	require.True(t, ok, "create product: %+v", r)
	return p
}

var (
	settledOK  = []result.Status{result.StatusLoading, result.StatusSuccess}
	settledErr = []result.Status{result.StatusLoading, result.StatusError}
)

func TestLoginStartsPersistentSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.store.Login(ctx, "test@test.com", "test123")
	require.NoError(t, err)
	resp, ok := r.Data()
	require.True(t, ok)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, settledOK, f.events.statuses(SlotAuth))
	assert.Equal(t, ScreenProducts, f.store.Screen())
	assert.Equal(t, resp.AccessToken, f.store.Provider().Config().Token)

	saved, err := f.settings.Load(ctx)
	require.NoError(t, err)
	require.True(t, saved.Session.LoggedIn())
	assert.Equal(t, "test@test.com", saved.Session.Email)

	restarted := f.open()
	assert.Equal(t, ScreenAuth, restarted.Screen())
	require.NoError(t, restarted.Restore(ctx))
	assert.Equal(t, ScreenProducts, restarted.Screen())
	require.NotNil(t, restarted.Session())
	assert.Equal(t, "tester", restarted.Session().Username)
	assert.True(t, restarted.LoadProducts(ctx).IsSuccess(), "restored token must be accepted")
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Login(context.Background(), "test@test.com", "nope")
	require.NoError(t, err)
	fail, ok := r.Failure()
	require.True(t, ok)
	assert.Equal(t, 401, fail.Code)
	assert.Equal(t, "Incorrect email or password", fail.Message)
	assert.Equal(t, settledErr, f.events.statuses(SlotAuth))
	assert.Equal(t, ScreenAuth, f.store.Screen())
	assert.Nil(t, f.store.Session())
}

func TestRegisterStartsSession(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Register(context.Background(), "new@test.com", "newbie", "pw", "pw")
	require.NoError(t, err)
	require.True(t, r.IsSuccess())
	assert.Equal(t, "newbie", f.store.Session().Username)

	r, err = f.store.Register(context.Background(), "new@test.com", "again", "pw", "pw")
	require.NoError(t, err)
	fail, _ := r.Failure()
	assert.Equal(t, "Email already registered", fail.Message)
}

func TestValidationNeverTouchesSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neg := -1

	checks := []struct {
		name string
		run  func() error
	}{
		{"blank email", func() error { _, err := f.store.Login(ctx, " ", "x"); return err }},
		{"blank password", func() error { _, err := f.store.Login(ctx, "a@b.c", ""); return err }},
		{"password mismatch", func() error { _, err := f.store.Register(ctx, "a@b.c", "u", "one", "two"); return err }},
		{"blank username", func() error { _, err := f.store.Register(ctx, "a@b.c", "", "p", "p"); return err }},
		{"blank name", func() error { _, err := f.store.CreateProduct(ctx, "", "https://ozon.ru/x"); return err }},
		{"non http url", func() error { _, err := f.store.CreateProduct(ctx, "x", "ftp://ozon.ru/x"); return err }},
		{"zero id", func() error { _, err := f.store.ParseProduct(ctx, 0); return err }},
		{"negative limit", func() error { _, err := f.store.LoadReviews(ctx, 1, apiclient.ReviewQuery{Limit: &neg}); return err }},
		{"negative offset", func() error { _, err := f.store.LoadReviews(ctx, 1, apiclient.ReviewQuery{Offset: &neg}); return err }},
		{"bad date", func() error {
			_, err := f.store.LoadAnalytics(ctx, 1, apiclient.AnalyticsQuery{StartDate: "01.05.2024"})
			return err
		}},
		{"start after end", func() error {
			_, err := f.store.LoadAnalytics(ctx, 1, apiclient.AnalyticsQuery{StartDate: "2024-05-02", EndDate: "2024-05-01"})
			return err
		}},
		{"blank api url", func() error { return f.store.UpdateAPIURL(ctx, "  ") }},
	}
	for _, tc := range checks {
		t.Run(tc.name, func(t *testing.T) {
			var verr *ValidationError
			assert.True(t, errors.As(tc.run(), &verr))
		})
	}

	assert.Empty(t, f.events.all())
	assert.Empty(t, f.backend.Order())
}

func TestCreateProductReloadsListOnce(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.ResetHits()

	created := f.createProduct(t, "iPhone 15", "https://wildberries.ru/x")
	assert.Equal(t, models.MarketplaceWildberries, created.Marketplace)
	assert.Equal(t, 1, f.backend.Hits("GET /api/products"))

	list, ok := f.store.Products().Data()
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "iPhone 15", list[0].Name)

	again, ok := f.store.LoadProducts(context.Background()).Data()
	require.True(t, ok)
	assert.Len(t, again, 1)
}

func TestParseReloadsProductThenReviews(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	p := f.createProduct(t, "iPhone 15", "https://wildberries.ru/x")
	f.backend.ResetHits()
	f.events.reset()

	r, err := f.store.ParseProduct(context.Background(), p.ID)
	require.NoError(t, err)
	parsed, _ := r.Data()
	assert.Equal(t, 3, parsed.NewReviews)

	assert.Equal(t, []string{
		"POST /api/products/:id/parse",
		"GET /api/products/:id",
		"GET /api/products/:id/reviews",
	}, f.backend.Order())
	assert.Equal(t, settledOK, f.events.statuses(SlotParsing))
	assert.Equal(t, settledOK, f.events.statuses(SlotSelectedProduct))
	assert.Equal(t, settledOK, f.events.statuses(SlotReviews))

	var order []string
	for _, e := range f.events.all() {
		order = append(order, e.Slot+":"+e.Status.String())
	}
	assert.Equal(t, []string{
		"parsing:loading", "parsing:success",
		"selected_product:loading", "selected_product:success",
		"reviews:loading", "reviews:success",
	}, order)

	detail, _ := f.store.SelectedProduct().Data()
	assert.Equal(t, models.ParsingCompleted, detail.ParsingStatus)
	assert.Equal(t, 3, detail.ReviewCount)
	reviews, _ := f.store.Reviews().Data()
	assert.Len(t, reviews, 3)
}

func TestAnalyzeReloadsAnalyticsThenReviews(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	p := f.createProduct(t, "iPhone 15", "https://wildberries.ru/x")
	_, err := f.store.ParseProduct(context.Background(), p.ID)
	require.NoError(t, err)
	f.backend.ResetHits()

	r, err := f.store.AnalyzeProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, r.IsSuccess())
	assert.Equal(t, []string{
		"POST /api/analytics/products/:id/analyze",
		"GET /api/analytics/products/:id",
		"GET /api/products/:id/reviews",
	}, f.backend.Order())

	snap, ok := f.store.Analytics().Data()
	require.True(t, ok)
	assert.Equal(t, 3, snap.TotalReviews)
	assert.Equal(t, 1, snap.PositiveCount)
	assert.Equal(t, 1, snap.NeutralCount)
	assert.Equal(t, 1, snap.NegativeCount)

	reviews, _ := f.store.Reviews().Data()
	require.Len(t, reviews, 3)
	for _, rv := range reviews {
		assert.NotNil(t, rv.SentimentLabel)
	}
}

func TestFailedMutationDoesNotChain(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	other := f.createProduct(t, "Mystery", "https://example.com/item")
	f.backend.ResetHits()

	r, err := f.store.ParseProduct(context.Background(), other.ID)
	require.NoError(t, err)
	fail, ok := r.Failure()
	require.True(t, ok)
	assert.Equal(t, 400, fail.Code)

	r, err = f.store.ParseProduct(context.Background(), 99)
	require.NoError(t, err)
	fail, _ = r.Failure()
	assert.Equal(t, 404, fail.Code)
	assert.Equal(t, "Product not found", fail.Message)

	assert.Equal(t, []string{"POST /api/products/:id/parse", "POST /api/products/:id/parse"}, f.backend.Order())
	assert.True(t, f.store.SelectedProduct().IsIdle())
	assert.True(t, f.store.Reviews().IsIdle())
}

func TestDeleteProductRemovesItFromList(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	p := f.createProduct(t, "iPhone 15", "https://wildberries.ru/x")
	ctx := context.Background()

	r, err := f.store.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, r.IsSuccess())

	list, ok := f.store.Products().Data()
	require.True(t, ok)
	assert.Empty(t, list)

	detail, err := f.store.LoadProduct(ctx, p.ID)
	require.NoError(t, err)
	fail, ok := detail.Failure()
	require.True(t, ok)
	assert.Equal(t, 404, fail.Code)
}

func TestLogoutClearsEverySlot(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()
	p := f.createProduct(t, "iPhone 15", "https://wildberries.ru/x")
	_, _ = f.store.ParseProduct(ctx, p.ID)
	_, _ = f.store.AnalyzeProduct(ctx, p.ID)
	_, _ = f.store.LoadSummary(ctx, p.ID)
	require.True(t, f.store.Summary().IsSuccess())

	require.NoError(t, f.store.Logout(ctx))

	snap := f.store.Snapshot()
	for name, v := range snap.Slots {
		status := v.(interface{ Status() result.Status }).Status()
		assert.Equal(t, result.StatusIdle, status, "slot %s", name)
	}
	assert.False(t, snap.LoggedIn)
	assert.Equal(t, ScreenAuth, snap.Screen)
	assert.Empty(t, f.store.Provider().Config().Token)
	saved, _ := f.settings.Load(ctx)
	assert.Nil(t, saved.Session)

	f.backend.AddUser("other@test.com", "other", "pw")
	r, err := f.store.Login(ctx, "other@test.com", "pw")
	require.NoError(t, err)
	require.True(t, r.IsSuccess())
	assert.True(t, f.store.SelectedProduct().IsIdle())
	assert.True(t, f.store.Reviews().IsIdle())
	list, ok := f.store.LoadProducts(ctx).Data()
	require.True(t, ok)
	assert.Empty(t, list)
}

func TestSwitchingUserDropsDerivedState(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()
	p := f.createProduct(t, "iPhone 15", "https://wildberries.ru/x")
	_, _ = f.store.LoadProduct(ctx, p.ID)
	require.True(t, f.store.SelectedProduct().IsSuccess())

	_, err := f.store.DeleteProduct(ctx, f.createProduct(t, "Galaxy", "https://ozon.ru/y").ID)
	require.NoError(t, err)
	require.True(t, f.store.CreateProductState().IsSuccess())
	require.True(t, f.store.DeleteProductState().IsSuccess())

	f.backend.AddUser("other@test.com", "other", "pw")
	_, err = f.store.Login(ctx, "other@test.com", "pw")
	require.NoError(t, err)
	assert.True(t, f.store.SelectedProduct().IsIdle())
	assert.True(t, f.store.Products().IsIdle())
	assert.True(t, f.store.CreateProductState().IsIdle())
	assert.True(t, f.store.DeleteProductState().IsIdle())
}

// slowSessionSettings holds the first SaveSession until released.
type slowSessionSettings struct {
	*MemorySettings
	once     sync.Once
	entered  chan struct{}
	released chan struct{}
}

func (s *slowSessionSettings) SaveSession(ctx context.Context, session models.Session) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.released
	})
	return s.MemorySettings.SaveSession(ctx, session)
}

func TestLogoutDuringSessionSaveWins(t *testing.T) {
	f := newFixture(t)
	slow := &slowSessionSettings{
		MemorySettings: f.settings,
		entered:        make(chan struct{}),
		released:       make(chan struct{}),
	}
	st := New("ws-test",
		apiclient.NewProvider(apiclient.Config{BaseURL: f.url}),
		WithSettings(slow),
		WithObserver(f.events),
	)
	ctx := context.Background()

	done := make(chan result.Result[models.AuthResponse])
	go func() {
		r, _ := st.Login(ctx, "test@test.com", "test123")
		done <- r
	}()
	<-slow.entered
	require.NoError(t, st.Logout(ctx))
	close(slow.released)
	r := <-done
	assert.True(t, r.IsSuccess(), "the call itself succeeded")

	assert.Nil(t, st.Session())
	assert.Equal(t, ScreenAuth, st.Screen())
	assert.Empty(t, st.Provider().Config().Token)
	assert.True(t, st.Auth().IsIdle())
	saved, err := f.settings.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, saved.Session)
}

func TestLoginAfterLogoutPersistsNewSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()
	require.NoError(t, f.store.Logout(ctx))
	f.login(t)

	require.NotNil(t, f.store.Session())
	saved, err := f.settings.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved.Session)
	assert.Equal(t, f.store.Session().Token, saved.Session.Token)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	first := f.createProduct(t, "Slow", "https://ozon.ru/slow")
	second := f.createProduct(t, "Fast", "https://ozon.ru/fast")
	f.backend.ResetHits()
	f.backend.SetDelay("/api/products/1", 300*time.Millisecond)
	require.Equal(t, 1, first.ID)

	done := make(chan result.Result[models.Product], 1)
	go func() {
		r, _ := f.store.LoadProduct(context.Background(), first.ID)
		done <- r
	}()
	require.Eventually(t, func() bool {
		return f.backend.Hits("GET /api/products/:id") == 1
	}, time.Second, 5*time.Millisecond)

	fast, err := f.store.LoadProduct(context.Background(), second.ID)
	require.NoError(t, err)
	require.True(t, fast.IsSuccess())

	slow := <-done
	slowProduct, ok := slow.Data()
	require.True(t, ok, "the superseded call still reports its own outcome")
	assert.Equal(t, first.ID, slowProduct.ID)

	current, ok := f.store.SelectedProduct().Data()
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID)
}

func TestClearDiscardsInFlightResponse(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	p := f.createProduct(t, "iPhone 15", "https://wildberries.ru/x")
	f.backend.ResetHits()
	f.backend.SetDelay("/api/analytics/products/1/summary", 200*time.Millisecond)
	require.Equal(t, 1, p.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.store.LoadSummary(context.Background(), p.ID)
	}()
	require.Eventually(t, func() bool {
		return f.store.Summary().IsLoading()
	}, time.Second, 5*time.Millisecond)

	f.store.ClearSummary()
	<-done
	assert.True(t, f.store.Summary().IsIdle())
}

func TestUpdateAPIURLPersistsAndRebuildsClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.store.Provider().Client()

	require.NoError(t, f.store.UpdateAPIURL(ctx, " http://api.example.com/ "))
	assert.Equal(t, "http://api.example.com", f.store.Provider().Config().BaseURL)
	assert.NotSame(t, before, f.store.Provider().Client())

	saved, _ := f.settings.Load(ctx)
	assert.Equal(t, "http://api.example.com", saved.APIURL)

	restarted := f.open()
	require.NoError(t, restarted.Restore(ctx))
	assert.Equal(t, "http://api.example.com", restarted.Provider().Config().BaseURL)
}

func TestClearByName(t *testing.T) {
	f := newFixture(t)
	r, _ := f.store.Login(context.Background(), "test@test.com", "bad")
	require.True(t, r.IsError())

	require.NoError(t, f.store.Clear(SlotAuth))
	assert.True(t, f.store.Auth().IsIdle())
	assert.ErrorIs(t, f.store.Clear("products"), ErrUnknownSlot)
}

func TestEventsReachHubSubscribers(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.store.Events().Subscribe()
	defer cancel()

	f.store.LoadProducts(context.Background())

	first, second := <-events, <-events
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, "ws-test", first.Workspace)
	assert.Equal(t, result.StatusLoading, first.Status)
	assert.Equal(t, result.StatusError, second.Status)
}

func TestSnapshotJSON(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	raw, err := json.Marshal(f.store.Snapshot())
	require.NoError(t, err)
	var decoded struct {
		Screen   string `json:"screen"`
		LoggedIn bool   `json:"logged_in"`
		User     struct {
			Username string `json:"username"`
		} `json:"user"`
		Slots map[string]struct {
			Status string `json:"status"`
		} `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "products", decoded.Screen)
	assert.True(t, decoded.LoggedIn)
	assert.Equal(t, "tester", decoded.User.Username)
	assert.Equal(t, "success", decoded.Slots[SlotAuth].Status)
	assert.Equal(t, "idle", decoded.Slots[SlotReviews].Status)
	assert.Len(t, decoded.Slots, len(SlotNames))
}
