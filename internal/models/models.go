package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Marketplace is the e-commerce site a product page belongs to.
type Marketplace string

const (
	MarketplaceWildberries  Marketplace = "wildberries"
	MarketplaceOzon         Marketplace = "ozon"
	MarketplaceYandexMarket Marketplace = "yandex-market"
	MarketplaceOther        Marketplace = "other"
)

// ParseMarketplace maps a server value onto the known set. Unknown values,
// including the backend's "unknown" and "aliexpress", become other.
func ParseMarketplace(s string) Marketplace {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wildberries", "wb":
		return MarketplaceWildberries
	case "ozon":
		return MarketplaceOzon
	case "yandex-market", "yandex_market", "yandexmarket":
		return MarketplaceYandexMarket
	default:
		return MarketplaceOther
	}
}

// UnmarshalJSON normalises the marketplace name.
func (m *Marketplace) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*m = ParseMarketplace(s)
	return nil
}

// marketplaceHosts maps URL fragments to marketplaces, checked in order.
var marketplaceHosts = []struct {
	fragment    string
	marketplace Marketplace
}{
	{"wildberries.ru", MarketplaceWildberries},
	{"wb.ru", MarketplaceWildberries},
	{"ozon.ru", MarketplaceOzon},
	{"ozon.com", MarketplaceOzon},
	{"market.yandex.ru", MarketplaceYandexMarket},
	{"yandex.ru/market", MarketplaceYandexMarket},
}

// DetectMarketplace identifies the marketplace from a product URL.
func DetectMarketplace(url string) Marketplace {
	lower := strings.ToLower(url)
	for _, h := range marketplaceHosts {
		if strings.Contains(lower, h.fragment) {
			return h.marketplace
		}
	}
	return MarketplaceOther
}

// ParsingStatus is the backend's scraping state for a product.
type ParsingStatus string

const (
	ParsingIdle      ParsingStatus = "idle"
	ParsingRunning   ParsingStatus = "parsing"
	ParsingCompleted ParsingStatus = "completed"
	ParsingError     ParsingStatus = "error"
)

// SentimentLabel is the class derived from a sentiment score.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// LabelForScore classifies a score in [-1, 1].
func LabelForScore(score float64) SentimentLabel {
	switch {
	case score > 0.1:
		return SentimentPositive
	case score < -0.1:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// --- auth ---

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON body for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by both login and register.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int    `json:"user_id"`
	Username    string `json:"username"`
}

// Session is the locally persisted login. A missing token means logged out.
type Session struct {
	Token    string `json:"token"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// LoggedIn reports whether the session carries a token.
func (s *Session) LoggedIn() bool {
	return s != nil && s.Token != ""
}

// Settings is everything a workspace keeps in durable storage.
type Settings struct {
	APIURL  string   `json:"api_url"`
	Session *Session `json:"session,omitempty"`
}

// --- products ---

// Product is a tracked marketplace product.
type Product struct {
	ID            int           `json:"id"`
	UserID        int           `json:"user_id"`
	Name          string        `json:"name"`
	URL           string        `json:"url"`
	Marketplace   Marketplace   `json:"marketplace"`
	ParsingStatus ParsingStatus `json:"parsing_status"`
	LastParsedAt  *string       `json:"last_parsed_at"`
	ReviewCount   int           `json:"review_count"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
}

// ProductCreate is the JSON body for POST /api/products.
type ProductCreate struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Review is a single scraped customer review.
type Review struct {
	ID             int             `json:"id"`
	ProductID      int             `json:"product_id"`
	Author         *string         `json:"author"`
	Rating         *int            `json:"rating"`
	Text           string          `json:"text"`
	Date           string          `json:"date"`
	Sentiment      *float64        `json:"sentiment"`
	SentimentLabel *SentimentLabel `json:"sentiment_label"`
	Summary        *string         `json:"summary"`
}

// ParseResult is returned by POST /api/products/{id}/parse.
type ParseResult struct {
	Message     string `json:"message"`
	ParsedCount int    `json:"parsed_count"`
	NewReviews  int    `json:"new_reviews"`
}

// DeleteResult is returned by DELETE /api/products/{id}.
type DeleteResult struct {
	Message string `json:"message"`
}

// --- analytics ---

// AnalyzeResult is returned by POST /api/analytics/products/{id}/analyze.
type AnalyzeResult struct {
	Message       string `json:"message"`
	AnalyzedCount int    `json:"analyzed_count"`
}

// TimelinePoint is the average sentiment of one day.
type TimelinePoint struct {
	Date      string  `json:"date"`
	Sentiment float64 `json:"sentiment"`
	Count     int     `json:"count"`
}

// AnalyticsSnapshot is the server-computed sentiment breakdown of a product.
type AnalyticsSnapshot struct {
	ProductID        int             `json:"product_id"`
	TotalReviews     int             `json:"total_reviews"`
	PositiveCount    int             `json:"positive_count"`
	NegativeCount    int             `json:"negative_count"`
	NeutralCount     int             `json:"neutral_count"`
	AverageSentiment float64         `json:"average_sentiment"`
	Timeline         []TimelinePoint `json:"timeline"`
}

// SummaryResult is an AI-generated digest of a product's reviews.
type SummaryResult struct {
	ProductID    int    `json:"product_id"`
	Summary      string `json:"summary"`
	TotalReviews int    `json:"total_reviews"`
}

// ErrorBody is the backend's error envelope. Detail is usually a string but
// FastAPI validation failures send a list of objects.
type ErrorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// --- notifications ---

// Notification is published to the broker when a mutating action settles.
type Notification struct {
	Workspace string    `json:"workspace"`
	UserID    int       `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// --- workspaces ---

// Workspace is the metadata stored for one front-end instance.
type Workspace struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}
