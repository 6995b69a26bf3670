package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/taskio/ticket-classifier/internal/models"
)

// TicketService defines the application operations the handlers expose.
type TicketService interface {
	CreateAndClassify(ctx context.Context, req models.CreateTicketRequest) (models.TicketWithClassification, error)
	ClassifyOnly(ctx context.Context, req models.CreateTicketRequest) (models.ClassificationResult, error)
	Get(ctx context.Context, id string) (models.Ticket, error)
	List(ctx context.Context, req models.ListTicketsRequest) (models.ListTicketsResponse, error)
	Categories() []models.Category
	Correct(ctx context.Context, id string, req models.CorrectionRequest) (models.Ticket, error)
	AnalyticsOverview(ctx context.Context) (models.AnalyticsOverview, error)
	Corrections(ctx context.Context) (models.CorrectionsReport, error)
	Health(ctx context.Context) map[string]bool
}

// Handlers maps HTTP requests to the ticket service.
type Handlers struct {
	service TicketService
	logger  *slog.Logger
}

// NewHandlers constructs the handler set.
func NewHandlers(service TicketService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, logger: logger}
}

// CreateTicket submits, classifies, and persists a new ticket.
func (h *Handlers) CreateTicket(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	out, err := h.service.CreateAndClassify(ctx, req)
	if err != nil {
		h.writeError(c, err, "failed to create ticket")
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ClassifyOnly previews a classification without persisting the ticket.
func (h *Handlers) ClassifyOnly(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.service.ClassifyOnly(ctx, req)
	if err != nil {
		h.writeError(c, err, "failed to classify ticket")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListTickets returns a filtered, paginated ticket listing.
func (h *Handlers) ListTickets(c *gin.Context) {
	req := models.ListTicketsRequest{Page: 1, Limit: 20}
	if v := c.Query("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			req.Page = page
		}
	}
	if v := c.Query("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			req.Limit = limit
		}
	}
	req.Status = models.Status(c.Query("status"))
	if v := c.Query("category"); v != "" {
		category, ok := models.ParseCategory(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
			return
		}
		req.Category = category
	}

	resp, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "failed to list tickets")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Categories returns the closed category set.
func (h *Handlers) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.service.Categories()})
}

// GetTicket returns a single ticket by id.
func (h *Handlers) GetTicket(c *gin.Context) {
	ticket, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch ticket")
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// CorrectTicket applies a human label correction to a ticket.
func (h *Handlers) CorrectTicket(c *gin.Context) {
	var req models.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ticket, err := h.service.Correct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err, "failed to correct ticket")
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// AnalyticsOverview returns aggregate dashboard metrics.
func (h *Handlers) AnalyticsOverview(c *gin.Context) {
	overview, err := h.service.AnalyticsOverview(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to compute analytics")
		return
	}
	c.JSON(http.StatusOK, overview)
}

// Corrections returns mined correction confusion patterns.
func (h *Handlers) Corrections(c *gin.Context) {
	report, err := h.service.Corrections(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to mine corrections")
		return
	}
	c.JSON(http.StatusOK, report)
}

// Health reports per-dependency health.
func (h *Handlers) Health(c *gin.Context) {
	health := h.service.Health(c.Request.Context())
	status := http.StatusOK
	overall := "ok"
	for _, ok := range health {
		if !ok {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}
	c.JSON(status, gin.H{"status": overall, "dependencies": health})
}

// writeError maps domain errors to HTTP statuses. Only validation failures,
// unknown categories, and missing tickets are user-visible; everything else
// is a generic 500 with details kept in the log.
func (h *Handlers) writeError(c *gin.Context, err error, fallback string) {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, models.ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
	default:
		h.logger.Error(fallback, slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
