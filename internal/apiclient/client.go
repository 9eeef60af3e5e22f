// Package apiclient calls the remote market analytics API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"marketanalytics/webclient/internal/models"
)

// DefaultTimeout bounds a whole request, including reading the body.
const DefaultTimeout = 60 * time.Second

// Config is the immutable configuration a Client is built from.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Recorder receives one observation per API call.
type Recorder interface {
	ObserveCall(op string, status int, outcome string, elapsed time.Duration)
}

// Call outcomes reported to a Recorder.
const (
	OutcomeOK        = "ok"
	OutcomeHTTP      = "http_error"
	OutcomeTransport = "transport_error"
	OutcomeDecode    = "decode_error"
)

// Client calls the market analytics API with one fixed configuration.
type Client struct {
	cfg        Config
	httpClient *http.Client
	recorder   Recorder
	logger     *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The configured timeout is
// not applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return c
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config { return c.cfg }

// NormalizeBaseURL trims whitespace and trailing slashes.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// --- auth ---

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.AuthResponse, error) {
	var resp models.AuthResponse
	err := c.doJSON(ctx, "register", http.MethodPost, "/api/auth/register", nil, req, &resp)
	return resp, err
}

func (c *Client) Login(ctx context.Context, req models.LoginRequest) (models.AuthResponse, error) {
	var resp models.AuthResponse
	err := c.doJSON(ctx, "login", http.MethodPost, "/api/auth/login", nil, req, &resp)
	return resp, err
}

// --- products ---

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := c.doJSON(ctx, "list_products", http.MethodGet, "/api/products", nil, nil, &products)
	return products, err
}

func (c *Client) GetProduct(ctx context.Context, id int) (models.Product, error) {
	var p models.Product
	err := c.doJSON(ctx, "get_product", http.MethodGet, productPath(id), nil, nil, &p)
	return p, err
}

func (c *Client) CreateProduct(ctx context.Context, req models.ProductCreate) (models.Product, error) {
	var p models.Product
	err := c.doJSON(ctx, "create_product", http.MethodPost, "/api/products", nil, req, &p)
	return p, err
}

func (c *Client) DeleteProduct(ctx context.Context, id int) (models.DeleteResult, error) {
	var resp models.DeleteResult
	err := c.doJSON(ctx, "delete_product", http.MethodDelete, productPath(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) ParseProduct(ctx context.Context, id int) (models.ParseResult, error) {
	var resp models.ParseResult
	err := c.doJSON(ctx, "parse_product", http.MethodPost, productPath(id)+"/parse", nil, nil, &resp)
	return resp, err
}

// ReviewQuery pages a review listing. Nil fields are omitted.
type ReviewQuery struct {
	Limit  *int
	Offset *int
}

func (q ReviewQuery) values() url.Values {
	v := url.Values{}
	if q.Limit != nil {
		v.Set("limit", strconv.Itoa(*q.Limit))
	}
	if q.Offset != nil {
		v.Set("offset", strconv.Itoa(*q.Offset))
	}
	return v
}

func (c *Client) ListReviews(ctx context.Context, productID int, q ReviewQuery) ([]models.Review, error) {
	var reviews []models.Review
	err := c.doJSON(ctx, "list_reviews", http.MethodGet, productPath(productID)+"/reviews", q.values(), nil, &reviews)
	return reviews, err
}

// --- analytics ---

func (c *Client) AnalyzeProduct(ctx context.Context, productID int) (models.AnalyzeResult, error) {
	var resp models.AnalyzeResult
	err := c.doJSON(ctx, "analyze_product", http.MethodPost, analyticsPath(productID)+"/analyze", nil, nil, &resp)
	return resp, err
}

// AnalyticsQuery restricts the analytics window. Empty dates are omitted.
type AnalyticsQuery struct {
	StartDate string
	EndDate   string
}

func (q AnalyticsQuery) values() url.Values {
	v := url.Values{}
	if q.StartDate != "" {
		v.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("end_date", q.EndDate)
	}
	return v
}

func (c *Client) GetAnalytics(ctx context.Context, productID int, q AnalyticsQuery) (models.AnalyticsSnapshot, error) {
	var snap models.AnalyticsSnapshot
	err := c.doJSON(ctx, "get_analytics", http.MethodGet, analyticsPath(productID), q.values(), nil, &snap)
	return snap, err
}

func (c *Client) GetSummary(ctx context.Context, productID int) (models.SummaryResult, error) {
	var resp models.SummaryResult
	err := c.doJSON(ctx, "get_summary", http.MethodGet, analyticsPath(productID)+"/summary", nil, nil, &resp)
	return resp, err
}

func productPath(id int) string { return fmt.Sprintf("/api/products/%d", id) }

func analyticsPath(id int) string { return fmt.Sprintf("/api/analytics/products/%d", id) }

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, payload, out any) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, method, path, query, payload, out)
	c.observe(op, status, err, time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, &TransportError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(c.cfg.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &TransportError{Op: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &HTTPError{Status: resp.StatusCode, Detail: detailMessage(raw)}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return resp.StatusCode, &DecodeError{Status: resp.StatusCode}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return resp.StatusCode, &DecodeError{Status: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, nil
}

func (c *Client) observe(op string, status int, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	switch err.(type) {
	case nil:
	case *HTTPError:
		outcome = OutcomeHTTP
	case *DecodeError:
		outcome = OutcomeDecode
	default:
		outcome = OutcomeTransport
	}
	if c.recorder != nil {
		c.recorder.ObserveCall(op, status, outcome, elapsed)
	}
	if err != nil {
		c.logger.Debug("api call failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
}
