package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"marketanalytics/webclient/internal/apiclient"
	"marketanalytics/webclient/internal/middleware"
	"marketanalytics/webclient/internal/services"
	"marketanalytics/webclient/internal/store"
)

// HealthCheck is one dependency checked by GET /api/health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	workspaces *services.WorkspaceService
	checks     []HealthCheck
	logger     *zap.Logger
	heartbeat  time.Duration
}

// NewHandler creates a Handler with all required services.
func NewHandler(workspaces *services.WorkspaceService, checks []HealthCheck, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{workspaces: workspaces, checks: checks, logger: logger, heartbeat: 15 * time.Second}
}

// HealthCheck returns 200 if the server and its dependencies are healthy.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := gin.H{}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": "market-analytics-webclient",
		"checks":  checks,
	})
}

// --- workspaces ---

// CreateWorkspace creates a new workspace and returns its token.
func (h *Handler) CreateWorkspace(c *gin.Context) {
	st, err := h.workspaces.Create(c.Request.Context())
	if err != nil {
		h.logger.Error("create workspace failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create workspace"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": st.Workspace()})
}

// Heartbeat refreshes the TTL of a workspace.
func (h *Handler) Heartbeat(c *gin.Context) {
	token := middleware.WorkspaceToken(c)
	err := h.workspaces.Heartbeat(c.Request.Context(), token)
	if errors.Is(err, services.ErrWorkspaceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "workspace not found or expired"})
		return
	}
	if err != nil {
		h.logger.Error("heartbeat failed", zap.String("workspace", token), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// State returns the full workspace snapshot.
func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Store(c).Snapshot())
}

// --- auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	r, err := middleware.Store(c).Login(actionContext(c), req.Email, req.Password)
	respond(c, r, err)
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	r, err := middleware.Store(c).Register(actionContext(c), req.Email, req.Username, req.Password, req.ConfirmPassword)
	respond(c, r, err)
}

func (h *Handler) Logout(c *gin.Context) {
	st := middleware.Store(c)
	if err := st.Logout(actionContext(c)); err != nil {
		h.logger.Error("logout failed", zap.String("workspace", st.Workspace()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear stored session"})
		return
	}
	c.JSON(http.StatusOK, st.Snapshot())
}

// --- settings ---

type settingsRequest struct {
	APIURL string `json:"api_url"`
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if !bind(c, &req) {
		return
	}
	st := middleware.Store(c)
	if err := st.UpdateAPIURL(actionContext(c), req.APIURL); err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			validationFailed(c, verr)
			return
		}
		h.logger.Error("save settings failed", zap.String("workspace", st.Workspace()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_url": st.Provider().Config().BaseURL})
}

// --- products ---

type createProductRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (h *Handler) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Store(c).LoadProducts(actionContext(c)))
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if !bind(c, &req) {
		return
	}
	r, err := middleware.Store(c).CreateProduct(actionContext(c), req.Name, req.URL)
	respond(c, r, err)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	r, err := middleware.Store(c).LoadProduct(actionContext(c), id)
	respond(c, r, err)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	r, err := middleware.Store(c).DeleteProduct(actionContext(c), id)
	respond(c, r, err)
}

func (h *Handler) ParseProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	r, err := middleware.Store(c).ParseProduct(actionContext(c), id)
	respond(c, r, err)
}

func (h *Handler) ListReviews(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var q apiclient.ReviewQuery
	if q.Limit, ok = optionalInt(c, "limit"); !ok {
		return
	}
	if q.Offset, ok = optionalInt(c, "offset"); !ok {
		return
	}
	r, err := middleware.Store(c).LoadReviews(actionContext(c), id, q)
	respond(c, r, err)
}

// ClearProductStates resets everything derived from the selected product.
func (h *Handler) ClearProductStates(c *gin.Context) {
	st := middleware.Store(c)
	st.ClearProductStates()
	c.JSON(http.StatusOK, st.Snapshot())
}

// ClearSlot resets one slot by name.
func (h *Handler) ClearSlot(c *gin.Context) {
	st := middleware.Store(c)
	if err := st.Clear(c.Param("slot")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st.Snapshot())
}

// --- analytics ---

func (h *Handler) AnalyzeProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	r, err := middleware.Store(c).AnalyzeProduct(actionContext(c), id)
	respond(c, r, err)
}

func (h *Handler) GetAnalytics(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	q := apiclient.AnalyticsQuery{StartDate: c.Query("start_date"), EndDate: c.Query("end_date")}
	r, err := middleware.Store(c).LoadAnalytics(actionContext(c), id, q)
	respond(c, r, err)
}

func (h *Handler) GetSummary(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	r, err := middleware.Store(c).LoadSummary(actionContext(c), id)
	respond(c, r, err)
}

// --- helpers ---

// actionContext detaches store actions from the client connection: a
// browser that navigates away must not turn an in-flight call into an
// Error. The API client timeout still bounds the call.
func actionContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func bind(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// respond writes the settled Result, or 400 for rejected input.
func respond(c *gin.Context, r any, err error) {
	if err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			validationFailed(c, verr)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

func validationFailed(c *gin.Context, verr *store.ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
}

func productID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id", "field": "id"})
		return 0, false
	}
	return id, true
}

func optionalInt(c *gin.Context, key string) (*int, bool) {
	raw, present := c.GetQuery(key)
	if !present || raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer", "field": key})
		return nil, false
	}
	return &n, true
}
