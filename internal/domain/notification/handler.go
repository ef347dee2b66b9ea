package notification

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"herald/internal/common"
)

// Handler handles HTTP requests for the notification domain.
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /api/v1/notifications
// Validates, persists the record in pending and enqueues dispatch.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	n, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		slog.Error("create notification failed",
			"error", err,
			"channel", req.Channel,
			"recipient", req.Recipient,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusCreated, n)
}

// Get handles GET /api/v1/notifications/:id
func (h *Handler) Get(c *gin.Context) {
	n, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, n)
}

// List handles GET /api/v1/notifications
func (h *Handler) List(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid query parameters: "+err.Error())
		return
	}

	resp, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// MarkRead handles POST /api/v1/notifications/:id/read
// Applies an external read receipt; repeated receipts are no-ops.
func (h *Handler) MarkRead(c *gin.Context) {
	n, err := h.service.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, n)
}

// Audit handles GET /api/v1/notifications/:id/audit
func (h *Handler) Audit(c *gin.Context) {
	changes, err := h.service.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, changes)
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, stats)
}

// GetTemplate handles GET /api/v1/templates/:id
func (h *Handler) GetTemplate(c *gin.Context) {
	tmpl, err := h.service.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, tmpl)
}

// RegisterRoutes registers notification routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/notifications", h.Create)
	rg.GET("/notifications", h.List)
	rg.GET("/notifications/:id", h.Get)
	rg.POST("/notifications/:id/read", h.MarkRead)
	rg.GET("/notifications/:id/audit", h.Audit)
	rg.GET("/stats", h.Stats)
	rg.GET("/templates/:id", h.GetTemplate)
}
