package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"marketanalytics/webclient/internal/apiclient"
	"marketanalytics/webclient/internal/models"
	"marketanalytics/webclient/internal/result"
)

// Every action follows the same shape: validate, Begin, call, Resolve, and
// only when the write was applied and succeeded, run its follow-ups in
// order. Actions return the Result their own call settled with; a
// ValidationError is returned instead when the input is rejected.

func settle[T any](s *Store, slot *result.Slot[T], t result.Ticket, v T, err error) (result.Result[T], bool) {
	r := apiclient.Settle(v, err)
	applied := slot.Resolve(t, r)
	if !applied {
		s.logger.Debug("discarded stale response",
			zap.String("slot", slot.Name()),
			zap.String("subject", t.Subject()),
			zap.Uint64("generation", t.Generation()),
		)
	}
	return r, applied
}

func subjectOf(id int) string { return strconv.Itoa(id) }

// --- auth ---

// Login authenticates and, on success, starts a session.
func (s *Store) Login(ctx context.Context, email, password string) (result.Result[models.AuthResponse], error) {
	if err := validateLogin(email, password); err != nil {
		return result.Idle[models.AuthResponse](), err
	}
	email = strings.TrimSpace(email)

	t := s.auth.Begin(email)
	resp, err := s.provider.Client().Login(ctx, models.LoginRequest{Email: email, Password: password})
	r, applied := settle(s, s.auth, t, resp, err)
	if applied && r.IsSuccess() {
		s.startSession(ctx, t, email, resp)
	}
	return r, nil
}

// Register creates an account and, on success, starts a session.
func (s *Store) Register(ctx context.Context, email, username, password, confirm string) (result.Result[models.AuthResponse], error) {
	if err := validateRegister(email, username, password, confirm); err != nil {
		return result.Idle[models.AuthResponse](), err
	}
	email = strings.TrimSpace(email)

	t := s.auth.Begin(email)
	resp, err := s.provider.Client().Register(ctx, models.RegisterRequest{
		Email:    email,
		Username: strings.TrimSpace(username),
		Password: password,
	})
	r, applied := settle(s, s.auth, t, resp, err)
	if applied && r.IsSuccess() {
		s.startSession(ctx, t, email, resp)
	}
	return r, nil
}

// startSession persists the session, points the client at the new token
// and moves to the products screen. Nothing is committed when the auth slot
// moved on since t (a Logout or a newer login); the durable session is then
// rewritten from the in-memory one. Derived state of a different previous
// user is dropped first.
func (s *Store) startSession(ctx context.Context, t result.Ticket, email string, resp models.AuthResponse) {
	session := models.Session{
		Token:    resp.AccessToken,
		UserID:   resp.UserID,
		Username: resp.Username,
		Email:    email,
	}

	s.sessionMu.Lock()
	epoch := s.sessionEpoch
	s.sessionMu.Unlock()

	err := s.settings.SaveSession(ctx, session)

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.auth.Generation() != t.Generation() {
		s.logger.Debug("dropped superseded session", zap.Int("user_id", session.UserID))
		if err := s.repairSessionLocked(ctx); err != nil {
			s.logger.Warn("failed to restore persisted session", zap.Error(err))
		}
		return
	}
	if err == nil && s.sessionEpoch != epoch {
		err = s.settings.SaveSession(ctx, session)
	}
	if err != nil {
		s.logger.Warn("failed to persist session", zap.Error(err))
	}

	s.provider.SetToken(session.Token)
	s.mu.Lock()
	prev := s.session
	s.session = &session
	s.mu.Unlock()
	s.sessionEpoch++

	if prev != nil && prev.UserID != session.UserID {
		s.products.Clear()
		s.createProduct.Clear()
		s.deleteProduct.Clear()
		s.ClearProductStates()
	}
	s.navigate(ScreenProducts)
}

// repairSessionLocked rewrites the durable session from the in-memory one
// after a write that lost a race. sessionMu must be held.
func (s *Store) repairSessionLocked(ctx context.Context) error {
	s.sessionEpoch++
	if current := s.Session(); current != nil {
		return s.settings.SaveSession(ctx, *current)
	}
	return s.settings.ClearSession(ctx)
}

// Logout forgets the session and resets every slot to Idle. The in-memory
// state is cleared even when the durable session cannot be removed.
func (s *Store) Logout(ctx context.Context) error {
	s.sessionMu.Lock()
	s.provider.ClearAuth()
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	s.sessionEpoch++
	epoch := s.sessionEpoch

	s.auth.Clear()
	s.products.Clear()
	s.createProduct.Clear()
	s.deleteProduct.Clear()
	s.ClearProductStates()
	s.navigate(ScreenAuth)
	s.sessionMu.Unlock()

	err := s.settings.ClearSession(ctx)

	s.sessionMu.Lock()
	if s.sessionEpoch != epoch {
		err = s.repairSessionLocked(ctx)
	}
	s.sessionMu.Unlock()

	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// --- products ---

func (s *Store) LoadProducts(ctx context.Context) result.Result[[]models.Product] {
	t := s.products.Begin("")
	products, err := s.provider.Client().ListProducts(ctx)
	r, _ := settle(s, s.products, t, products, err)
	return r
}

func (s *Store) LoadProduct(ctx context.Context, id int) (result.Result[models.Product], error) {
	if err := validateProductID(id); err != nil {
		return result.Idle[models.Product](), err
	}
	return s.loadProduct(ctx, id), nil
}

func (s *Store) loadProduct(ctx context.Context, id int) result.Result[models.Product] {
	t := s.selectedProduct.Begin(subjectOf(id))
	p, err := s.provider.Client().GetProduct(ctx, id)
	r, _ := settle(s, s.selectedProduct, t, p, err)
	return r
}

// CreateProduct registers a product and reloads the product list.
func (s *Store) CreateProduct(ctx context.Context, name, rawURL string) (result.Result[models.Product], error) {
	if err := validateProductCreate(name, rawURL); err != nil {
		return result.Idle[models.Product](), err
	}
	req := models.ProductCreate{Name: strings.TrimSpace(name), URL: strings.TrimSpace(rawURL)}

	t := s.createProduct.Begin(req.URL)
	p, err := s.provider.Client().CreateProduct(ctx, req)
	r, applied := settle(s, s.createProduct, t, p, err)
	if applied && r.IsSuccess() {
		s.LoadProducts(ctx)
	}
	return r, nil
}

// DeleteProduct removes a product and reloads the product list.
func (s *Store) DeleteProduct(ctx context.Context, id int) (result.Result[models.DeleteResult], error) {
	if err := validateProductID(id); err != nil {
		return result.Idle[models.DeleteResult](), err
	}

	t := s.deleteProduct.Begin(subjectOf(id))
	resp, err := s.provider.Client().DeleteProduct(ctx, id)
	r, applied := settle(s, s.deleteProduct, t, resp, err)
	if applied && r.IsSuccess() {
		s.LoadProducts(ctx)
	}
	return r, nil
}

// ParseProduct starts scraping and then reloads the product, then its
// reviews.
func (s *Store) ParseProduct(ctx context.Context, id int) (result.Result[models.ParseResult], error) {
	if err := validateProductID(id); err != nil {
		return result.Idle[models.ParseResult](), err
	}

	t := s.parsing.Begin(subjectOf(id))
	resp, err := s.provider.Client().ParseProduct(ctx, id)
	r, applied := settle(s, s.parsing, t, resp, err)
	if applied && r.IsSuccess() {
		s.loadProduct(ctx, id)
		s.loadReviews(ctx, id, apiclient.ReviewQuery{})
	}
	return r, nil
}

func (s *Store) LoadReviews(ctx context.Context, id int, q apiclient.ReviewQuery) (result.Result[[]models.Review], error) {
	if err := validateProductID(id); err != nil {
		return result.Idle[[]models.Review](), err
	}
	if err := validateReviewQuery(q); err != nil {
		return result.Idle[[]models.Review](), err
	}
	return s.loadReviews(ctx, id, q), nil
}

func (s *Store) loadReviews(ctx context.Context, id int, q apiclient.ReviewQuery) result.Result[[]models.Review] {
	t := s.reviews.Begin(subjectOf(id))
	reviews, err := s.provider.Client().ListReviews(ctx, id, q)
	r, _ := settle(s, s.reviews, t, reviews, err)
	return r
}

// --- analytics ---

// AnalyzeProduct runs sentiment analysis and then reloads the analytics
// snapshot, then the reviews whose labels may have changed.
func (s *Store) AnalyzeProduct(ctx context.Context, id int) (result.Result[models.AnalyzeResult], error) {
	if err := validateProductID(id); err != nil {
		return result.Idle[models.AnalyzeResult](), err
	}

	t := s.analyze.Begin(subjectOf(id))
	resp, err := s.provider.Client().AnalyzeProduct(ctx, id)
	r, applied := settle(s, s.analyze, t, resp, err)
	if applied && r.IsSuccess() {
		s.loadAnalytics(ctx, id, apiclient.AnalyticsQuery{})
		s.loadReviews(ctx, id, apiclient.ReviewQuery{})
	}
	return r, nil
}

func (s *Store) LoadAnalytics(ctx context.Context, id int, q apiclient.AnalyticsQuery) (result.Result[models.AnalyticsSnapshot], error) {
	if err := validateProductID(id); err != nil {
		return result.Idle[models.AnalyticsSnapshot](), err
	}
	if err := validateAnalyticsQuery(q); err != nil {
		return result.Idle[models.AnalyticsSnapshot](), err
	}
	return s.loadAnalytics(ctx, id, q), nil
}

func (s *Store) loadAnalytics(ctx context.Context, id int, q apiclient.AnalyticsQuery) result.Result[models.AnalyticsSnapshot] {
	t := s.analytics.Begin(subjectOf(id))
	snap, err := s.provider.Client().GetAnalytics(ctx, id, q)
	r, _ := settle(s, s.analytics, t, snap, err)
	return r
}

func (s *Store) LoadSummary(ctx context.Context, id int) (result.Result[models.SummaryResult], error) {
	if err := validateProductID(id); err != nil {
		return result.Idle[models.SummaryResult](), err
	}

	t := s.summary.Begin(subjectOf(id))
	sum, err := s.provider.Client().GetSummary(ctx, id)
	r, _ := settle(s, s.summary, t, sum, err)
	return r, nil
}

// --- clears ---

func (s *Store) ClearAuthState()          { s.auth.Clear() }
func (s *Store) ClearCreateProductState() { s.createProduct.Clear() }
func (s *Store) ClearParsingState()       { s.parsing.Clear() }
func (s *Store) ClearAnalyzeState()       { s.analyze.Clear() }
func (s *Store) ClearSummary()            { s.summary.Clear() }
func (s *Store) ClearAnalytics()          { s.analytics.Clear() }

// ClearProductStates resets everything derived from the selected product.
func (s *Store) ClearProductStates() {
	s.selectedProduct.Clear()
	s.reviews.Clear()
	s.parsing.Clear()
	s.analytics.Clear()
	s.summary.Clear()
	s.analyze.Clear()
}

// ErrUnknownSlot is returned by Clear for a slot that cannot be cleared by
// name.
var ErrUnknownSlot = errors.New("unknown slot")

// Clear resets one slot by name.
func (s *Store) Clear(slot string) error {
	switch slot {
	case SlotAuth:
		s.ClearAuthState()
	case SlotCreateProduct:
		s.ClearCreateProductState()
	case SlotParsing:
		s.ClearParsingState()
	case SlotAnalyze:
		s.ClearAnalyzeState()
	case SlotSummary:
		s.ClearSummary()
	case SlotAnalytics:
		s.ClearAnalytics()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	return nil
}

// --- settings ---

// UpdateAPIURL persists a new base URL and points the client at it.
func (s *Store) UpdateAPIURL(ctx context.Context, raw string) error {
	if err := validateHTTPURL("api_url", raw); err != nil {
		return err
	}
	u := apiclient.NormalizeBaseURL(raw)
	if err := s.settings.SaveAPIURL(ctx, u); err != nil {
		return fmt.Errorf("save api url: %w", err)
	}
	s.provider.SetBaseURL(u)
	return nil
}

// Restore applies the persisted settings. A stored session logs the
// workspace straight into the products screen.
func (s *Store) Restore(ctx context.Context) error {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.APIURL != "" {
		s.provider.SetBaseURL(settings.APIURL)
	}
	if !settings.Session.LoggedIn() {
		return nil
	}

	session := *settings.Session
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.provider.SetToken(session.Token)
	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	s.sessionEpoch++
	s.navigate(ScreenProducts)
	return nil
}
