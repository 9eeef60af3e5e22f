// Package mockapi is an in-memory stand-in for the remote market analytics
// API. It implements the REST surface the client consumes and records hits
// per route so tests can assert refresh chains.
package mockapi

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"marketanalytics/webclient/internal/models"
)

type user struct {
	id       int
	email    string
	username string
	password string
}

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	engine *gin.Engine

	mu            sync.Mutex
	users         map[string]*user
	tokens        map[string]int
	products      map[int]*models.Product
	reviews       map[int][]models.Review
	nextUserID    int
	nextProductID int
	nextReviewID  int
	hits          map[string]int
	order         []string
	delays        map[string]time.Duration
	now           func() time.Time
}

// New returns an empty backend.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		users:    map[string]*user{},
		tokens:   map[string]int{},
		products: map[int]*models.Product{},
		reviews:  map[int][]models.Review{},
		hits:     map[string]int{},
		delays:   map[string]time.Duration{},
		now:      func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) },
	}

	r := gin.New()
	r.Use(s.track)

	api := r.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	authed := api.Group("")
	authed.Use(s.requireToken)
	authed.GET("/products", s.listProducts)
	authed.POST("/products", s.createProduct)
	authed.GET("/products/:id", s.getProduct)
	authed.DELETE("/products/:id", s.deleteProduct)
	authed.POST("/products/:id/parse", s.parseProduct)
	authed.GET("/products/:id/reviews", s.listReviews)
	authed.POST("/analytics/products/:id/analyze", s.analyze)
	authed.GET("/analytics/products/:id", s.analytics)
	authed.GET("/analytics/products/:id/summary", s.summary)

	s.engine = r
	return s
}

// Handler exposes the backend for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.engine }

// AddUser creates an account and returns its id.
func (s *Server) AddUser(email, username, password string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, username, password).id
}

// Hits returns how many requests matched route, e.g. "GET /api/products/:id".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// Order returns the routes hit so far, oldest first.
func (s *Server) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// ResetHits forgets recorded hits.
func (s *Server) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = map[string]int{}
	s.order = nil
}

// SetDelay holds every request for the exact path for d. Zero removes it.
func (s *Server) SetDelay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.delays, path)
		return
	}
	s.delays[path] = d
}

func (s *Server) track(c *gin.Context) {
	s.mu.Lock()
	route := c.Request.Method + " " + c.FullPath()
	s.hits[route]++
	s.order = append(s.order, route)
	delay := s.delays[c.Request.URL.Path]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	c.Next()
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) addUserLocked(email, username, password string) *user {
	s.nextUserID++
	u := &user{id: s.nextUserID, email: email, username: username, password: password}
	s.users[email] = u
	return u
}

func (s *Server) issueTokenLocked(u *user) gin.H {
	token := fmt.Sprintf("token-%d-%d", u.id, len(s.tokens)+1)
	s.tokens[token] = u.id
	return gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      u.id,
		"username":     u.username,
	}
}

func (s *Server) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" || req.Username == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"detail": []gin.H{{"loc": []string{"body"}, "msg": "field required", "type": "value_error.missing"}},
		})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[req.Email]; ok {
		detail(c, http.StatusBadRequest, "Email already registered")
		return
	}
	u := s.addUserLocked(req.Email, req.Username, req.Password)
	c.JSON(http.StatusOK, s.issueTokenLocked(u))
}

func (s *Server) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Email]
	if !ok || u.password != req.Password {
		detail(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	c.JSON(http.StatusOK, s.issueTokenLocked(u))
}

func (s *Server) requireToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		detail(c, http.StatusUnauthorized, "Token not provided")
		return
	}
	s.mu.Lock()
	userID, ok := s.tokens[strings.TrimPrefix(header, "Bearer ")]
	s.mu.Unlock()
	if !ok {
		detail(c, http.StatusUnauthorized, "Invalid token")
		return
	}
	c.Set("user_id", userID)
	c.Next()
}

// ownedProductLocked resolves :id to a product of the caller. It writes the error
// response itself and returns nil on failure.
func (s *Server) ownedProductLocked(c *gin.Context) *models.Product {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"detail": []gin.H{{"loc": []string{"path", "id"}, "msg": "value is not a valid integer", "type": "type_error.integer"}},
		})
		return nil
	}
	p, ok := s.products[id]
	if !ok || p.UserID != c.GetInt("user_id") {
		detail(c, http.StatusNotFound, "Product not found")
		return nil
	}
	return p
}

func (s *Server) listProducts(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := c.GetInt("user_id")
	out := make([]models.Product, 0)
	for _, p := range s.products {
		if p.UserID == owner {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, out)
}

func (s *Server) createProduct(c *gin.Context) {
	var req models.ProductCreate
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.URL == "" {
		detail(c, http.StatusBadRequest, "name and url are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProductID++
	ts := s.now().Format("2006-01-02T15:04:05")
	p := &models.Product{
		ID:            s.nextProductID,
		UserID:        c.GetInt("user_id"),
		Name:          req.Name,
		URL:           req.URL,
		Marketplace:   models.DetectMarketplace(req.URL),
		ParsingStatus: models.ParsingIdle,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	s.products[p.ID] = p
	c.JSON(http.StatusOK, p)
}

func (s *Server) getProduct(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ownedProductLocked(c)
	if p == nil {
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProduct(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ownedProductLocked(c)
	if p == nil {
		return
	}
	delete(s.products, p.ID)
	delete(s.reviews, p.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

var sampleReviews = []struct {
	author string
	rating int
	text   string
	day    int
}{
	{"Anna", 5, "Great phone, battery lasts two days", 1},
	{"Ivan", 3, "Fine overall, camera is average", 1},
	{"Olga", 1, "Arrived broken, support did not help", 2},
}

func (s *Server) parseProduct(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ownedProductLocked(c)
	if p == nil {
		return
	}
	if p.Marketplace == models.MarketplaceOther {
		p.ParsingStatus = models.ParsingError
		detail(c, http.StatusBadRequest, "Parsing for this marketplace is not supported")
		return
	}
	added := 0
	if len(s.reviews[p.ID]) == 0 {
		for _, sr := range sampleReviews {
			s.nextReviewID++
			author, rating := sr.author, sr.rating
			s.reviews[p.ID] = append(s.reviews[p.ID], models.Review{
				ID:        s.nextReviewID,
				ProductID: p.ID,
				Author:    &author,
				Rating:    &rating,
				Text:      sr.text,
				Date:      fmt.Sprintf("2024-05-%02dT10:00:00", sr.day),
			})
			added++
		}
	}
	ts := s.now().Format("2006-01-02T15:04:05")
	p.ParsingStatus = models.ParsingCompleted
	p.LastParsedAt = &ts
	p.ReviewCount = len(s.reviews[p.ID])
	p.UpdatedAt = ts
	c.JSON(http.StatusOK, models.ParseResult{
		Message:     "Parsing completed",
		ParsedCount: len(s.reviews[p.ID]),
		NewReviews:  added,
	})
}

func (s *Server) listReviews(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ownedProductLocked(c)
	if p == nil {
		return
	}
	all := s.reviews[p.ID]
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := append([]models.Review{}, all[offset:end]...)
	c.JSON(http.StatusOK, out)
}

func (s *Server) analyze(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ownedProductLocked(c)
	if p == nil {
		return
	}
	count := 0
	list := s.reviews[p.ID]
	for i := range list {
		if list[i].Sentiment != nil {
			continue
		}
		rating := 3
		if list[i].Rating != nil {
			rating = *list[i].Rating
		}
		score := float64(rating-3) / 2
		label := models.LabelForScore(score)
		list[i].Sentiment = &score
		list[i].SentimentLabel = &label
		count++
	}
	c.JSON(http.StatusOK, models.AnalyzeResult{Message: "Analysis completed", AnalyzedCount: count})
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func (s *Server) analytics(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ownedProductLocked(c)
	if p == nil {
		return
	}
	start, end := c.Query("start_date"), c.Query("end_date")
	snap := models.AnalyticsSnapshot{ProductID: p.ID, Timeline: []models.TimelinePoint{}}
	type day struct {
		sum   float64
		count int
	}
	days := map[string]*day{}
	var total float64
	for _, r := range s.reviews[p.ID] {
		if r.Sentiment == nil {
			continue
		}
		date := r.Date[:10]
		if (start != "" && date < start) || (end != "" && date > end) {
			continue
		}
		snap.TotalReviews++
		total += *r.Sentiment
		switch *r.SentimentLabel {
		case models.SentimentPositive:
			snap.PositiveCount++
		case models.SentimentNegative:
			snap.NegativeCount++
		default:
			snap.NeutralCount++
		}
		d, ok := days[date]
		if !ok {
			d = &day{}
			days[date] = d
		}
		d.sum += *r.Sentiment
		d.count++
	}
	if snap.TotalReviews > 0 {
		snap.AverageSentiment = round3(total / float64(snap.TotalReviews))
	}
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		snap.Timeline = append(snap.Timeline, models.TimelinePoint{
			Date:      k,
			Sentiment: round3(days[k].sum / float64(days[k].count)),
			Count:     days[k].count,
		})
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) summary(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ownedProductLocked(c)
	if p == nil {
		return
	}
	list := s.reviews[p.ID]
	if len(list) == 0 {
		detail(c, http.StatusNotFound, "Reviews not found")
		return
	}
	c.JSON(http.StatusOK, models.SummaryResult{
		ProductID:    p.ID,
		Summary:      fmt.Sprintf("Customers mostly discuss %s: %s.", p.Name, strings.ToLower(list[0].Text)),
		TotalReviews: len(list),
	})
}
