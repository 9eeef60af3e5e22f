// Package store holds the client-side state of one workspace: one Result
// slot per logical action, the current session and the active screen.
package store

import (
	"sync"

	"go.uber.org/zap"
	"marketanalytics/webclient/internal/apiclient"
	"marketanalytics/webclient/internal/models"
	"marketanalytics/webclient/internal/result"
)

// Screen is the navigation area the presentation layer should show.
type Screen string

const (
	ScreenAuth     Screen = "auth"
	ScreenProducts Screen = "products"
)

// Slot names.
const (
	SlotAuth            = "auth"
	SlotProducts        = "products"
	SlotSelectedProduct = "selected_product"
	SlotCreateProduct   = "create_product"
	SlotDeleteProduct   = "delete_product"
	SlotParsing         = "parsing"
	SlotReviews         = "reviews"
	SlotAnalytics       = "analytics"
	SlotSummary         = "summary"
	SlotAnalyze         = "analyze"
)

// SlotNames lists every slot in display order.
var SlotNames = []string{
	SlotAuth, SlotProducts, SlotSelectedProduct, SlotCreateProduct, SlotDeleteProduct,
	SlotParsing, SlotReviews, SlotAnalytics, SlotSummary, SlotAnalyze,
}

// Store is safe for concurrent use.
type Store struct {
	workspace string
	provider  *apiclient.Provider
	settings  SettingsStore
	logger    *zap.Logger
	observers []Observer
	hub       *Hub

	auth            *result.Slot[models.AuthResponse]
	products        *result.Slot[[]models.Product]
	selectedProduct *result.Slot[models.Product]
	createProduct   *result.Slot[models.Product]
	deleteProduct   *result.Slot[models.DeleteResult]
	parsing         *result.Slot[models.ParseResult]
	reviews         *result.Slot[[]models.Review]
	analytics       *result.Slot[models.AnalyticsSnapshot]
	summary         *result.Slot[models.SummaryResult]
	analyze         *result.Slot[models.AnalyzeResult]

	// emitMu orders event delivery; it is taken while a slot is locked and
	// never the other way around.
	emitMu sync.Mutex
	seq    uint64

	// sessionMu serialises session changes (login commit, logout, restore)
	// and is taken before any slot lock. sessionEpoch counts them.
	sessionMu    sync.Mutex
	sessionEpoch uint64

	mu      sync.Mutex
	session *models.Session
	screen  Screen
}

// Option customises a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithObserver registers o for every event.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// WithSettings sets the durable settings backend. The default keeps them in
// memory.
func WithSettings(ss SettingsStore) Option {
	return func(s *Store) { s.settings = ss }
}

// New returns a store for workspace that calls the API through provider.
// All slots start Idle and the screen starts at ScreenAuth.
func New(workspace string, provider *apiclient.Provider, opts ...Option) *Store {
	s := &Store{
		workspace: workspace,
		provider:  provider,
		logger:    zap.NewNop(),
		hub:       NewHub(0),
		screen:    ScreenAuth,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings == nil {
		s.settings = &MemorySettings{}
	}
	s.logger = s.logger.With(zap.String("workspace", workspace))

	l := s.onTransition
	s.auth = result.NewSlot[models.AuthResponse](SlotAuth, l)
	s.products = result.NewSlot[[]models.Product](SlotProducts, l)
	s.selectedProduct = result.NewSlot[models.Product](SlotSelectedProduct, l)
	s.createProduct = result.NewSlot[models.Product](SlotCreateProduct, l)
	s.deleteProduct = result.NewSlot[models.DeleteResult](SlotDeleteProduct, l)
	s.parsing = result.NewSlot[models.ParseResult](SlotParsing, l)
	s.reviews = result.NewSlot[[]models.Review](SlotReviews, l)
	s.analytics = result.NewSlot[models.AnalyticsSnapshot](SlotAnalytics, l)
	s.summary = result.NewSlot[models.SummaryResult](SlotSummary, l)
	s.analyze = result.NewSlot[models.AnalyzeResult](SlotAnalyze, l)
	return s
}

// Workspace returns the workspace token the store belongs to.
func (s *Store) Workspace() string { return s.workspace }

// Events returns the hub every event is published to.
func (s *Store) Events() *Hub { return s.hub }

// Provider returns the API client provider.
func (s *Store) Provider() *apiclient.Provider { return s.provider }

// Session returns a copy of the current session, or nil when logged out.
func (s *Store) Session() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Screen returns the active screen.
func (s *Store) Screen() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

func (s *Store) Auth() result.Result[models.AuthResponse] { return s.auth.Get() }
func (s *Store) Products() result.Result[[]models.Product] { return s.products.Get() }
func (s *Store) SelectedProduct() result.Result[models.Product] { return s.selectedProduct.Get() }
func (s *Store) CreateProductState() result.Result[models.Product] { return s.createProduct.Get() }
func (s *Store) DeleteProductState() result.Result[models.DeleteResult] { return s.deleteProduct.Get() }
func (s *Store) ParsingState() result.Result[models.ParseResult] { return s.parsing.Get() }
func (s *Store) Reviews() result.Result[[]models.Review] { return s.reviews.Get() }
func (s *Store) Analytics() result.Result[models.AnalyticsSnapshot] { return s.analytics.Get() }
func (s *Store) Summary() result.Result[models.SummaryResult] { return s.summary.Get() }
func (s *Store) AnalyzeState() result.Result[models.AnalyzeResult] { return s.analyze.Get() }

// User is the part of the session the presentation layer may see.
type User struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Snapshot is the full observable state of a store.
type Snapshot struct {
	Workspace string         `json:"workspace"`
	Seq       uint64         `json:"seq"`
	Screen    Screen         `json:"screen"`
	APIURL    string         `json:"api_url"`
	LoggedIn  bool           `json:"logged_in"`
	User      *User          `json:"user,omitempty"`
	Slots     map[string]any `json:"slots"`
}

// Snapshot returns the current state. Slots are read one at a time, so a
// snapshot taken while actions run may mix generations; Seq is the last
// event delivered before the read started.
func (s *Store) Snapshot() Snapshot {
	s.emitMu.Lock()
	seq := s.seq
	s.emitMu.Unlock()

	snap := Snapshot{
		Workspace: s.workspace,
		Seq:       seq,
		Screen:    s.Screen(),
		APIURL:    s.provider.Config().BaseURL,
		Slots: map[string]any{
			SlotAuth:            s.auth.Get(),
			SlotProducts:        s.products.Get(),
			SlotSelectedProduct: s.selectedProduct.Get(),
			SlotCreateProduct:   s.createProduct.Get(),
			SlotDeleteProduct:   s.deleteProduct.Get(),
			SlotParsing:         s.parsing.Get(),
			SlotReviews:         s.reviews.Get(),
			SlotAnalytics:       s.analytics.Get(),
			SlotSummary:         s.summary.Get(),
			SlotAnalyze:         s.analyze.Get(),
		},
	}
	if sess := s.Session(); sess.LoggedIn() {
		snap.LoggedIn = true
		snap.User = &User{UserID: sess.UserID, Username: sess.Username, Email: sess.Email}
	}
	return snap
}

func (s *Store) onTransition(t result.Transition) {
	s.emit(Event{
		Kind:    KindTransition,
		Slot:    t.Slot,
		Subject: t.Subject,
		Status:  t.Status,
		Result:  t.Value,
	})
}

func (s *Store) emit(e Event) {
	e.Workspace = s.workspace
	if sess := s.Session(); sess != nil {
		e.UserID = sess.UserID
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.seq++
	e.Seq = s.seq
	for _, o := range s.observers {
		o.Observe(e)
	}
	s.hub.Observe(e)
}

func (s *Store) navigate(screen Screen) {
	s.mu.Lock()
	changed := s.screen != screen
	s.screen = screen
	s.mu.Unlock()
	if changed {
		s.emit(Event{Kind: KindNavigation, Screen: screen})
	}
}
