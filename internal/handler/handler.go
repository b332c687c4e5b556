package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/dto"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/service"
)

// ProjectHeader carries the authenticated project id on write requests.
const ProjectHeader = "X-Project-Id"

type Handler struct {
	events   service.EventProcessor
	insights service.InsightsService
	router   *gin.Engine
	log      *zap.Logger
}

func NewHandler(events service.EventProcessor, insights service.InsightsService, log *zap.Logger) *Handler {
	h := &Handler{
		events:   events,
		insights: insights,
		router:   gin.Default(),
		log:      log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/track", h.track)
	h.router.POST("/track/bulk", h.trackBulk)

	insights := h.router.Group("/insights")
	insights.POST("/metrics", h.metrics)
	insights.POST("/funnel", h.funnel)
	insights.POST("/retention", h.retention)
}

// healthCheck handles GET /health
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (h *Handler) requestMeta(c *gin.Context) (domain.RequestMeta, bool) {
	projectID := c.GetHeader(ProjectHeader)
	if projectID == "" {
		h.badRequest(c, "missing "+ProjectHeader+" header")
		return domain.RequestMeta{}, false
	}
	return domain.RequestMeta{
		ProjectID: projectID,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}, true
}

// track handles POST /track
func (h *Handler) track(c *gin.Context) {
	meta, ok := h.requestMeta(c)
	if !ok {
		return
	}

	var req dto.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid track request", zap.Error(err))
		h.badRequest(c, err.Error())
		return
	}

	raw := req.RawEvent()
	id, err := h.events.Process(c.Request.Context(), &raw, meta)
	if err != nil {
		h.fail(c, "Failed to process event", err,
			zap.String("project_id", meta.ProjectID),
			zap.String("type", string(req.Type)))
		return
	}

	h.log.Debug("Event accepted",
		zap.String("id", id),
		zap.String("type", string(req.Type)))

	c.JSON(http.StatusAccepted, dto.TrackResponse{
		ID:     id,
		Status: "accepted",
	})
}

// trackBulk handles POST /track/bulk
func (h *Handler) trackBulk(c *gin.Context) {
	meta, ok := h.requestMeta(c)
	if !ok {
		return
	}

	var req dto.TrackBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid bulk track request", zap.Error(err))
		h.badRequest(c, err.Error())
		return
	}

	raws := make([]domain.RawEvent, len(req.Events))
	for i := range req.Events {
		raws[i] = req.Events[i].RawEvent()
	}

	ids, errs, err := h.events.ProcessBulk(c.Request.Context(), raws, meta)
	if err != nil {
		h.fail(c, "Failed to process bulk events", err, zap.Int("event_count", len(raws)))
		return
	}

	h.log.Info("Bulk events processed",
		zap.String("project_id", meta.ProjectID),
		zap.Int("accepted", len(ids)),
		zap.Int("rejected", len(errs)),
		zap.Int("total", len(raws)))

	c.JSON(http.StatusAccepted, dto.TrackBulkResponse{
		Accepted: len(ids),
		Rejected: len(errs),
		IDs:      ids,
		Errors:   errs,
	})
}

// metrics handles POST /insights/metrics
func (h *Handler) metrics(c *gin.Context) {
	var req dto.MetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	r, err := req.Range()
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.insights.Metrics(c.Request.Context(), domain.MetricsQuery{
		ProjectID: req.ProjectID,
		Range:     r,
		Interval:  req.Interval,
		Filters:   req.Filters,
	})
	if err != nil {
		h.fail(c, "Failed to get metrics", err, zap.String("project_id", req.ProjectID))
		return
	}

	c.JSON(http.StatusOK, result)
}

// funnel handles POST /insights/funnel
func (h *Handler) funnel(c *gin.Context) {
	var req dto.FunnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	r, err := req.Range()
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.insights.Funnel(c.Request.Context(), domain.FunnelQuery{
		ProjectID: req.ProjectID,
		Range:     r,
		Steps:     req.Steps,
		Filters:   req.Filters,
	})
	if err != nil {
		h.fail(c, "Failed to get funnel", err,
			zap.String("project_id", req.ProjectID),
			zap.Int("steps", len(req.Steps)))
		return
	}

	c.JSON(http.StatusOK, result)
}

// retention handles POST /insights/retention
func (h *Handler) retention(c *gin.Context) {
	var req dto.RetentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	r, err := req.Range()
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.insights.Retention(c.Request.Context(), domain.RetentionQuery{
		ProjectID: req.ProjectID,
		Range:     r,
		Period:    req.Period,
		Filters:   req.Filters,
	})
	if err != nil {
		h.fail(c, "Failed to get retention", err, zap.String("project_id", req.ProjectID))
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

// fail maps validation errors to 400 and everything else to a generic 500.
func (h *Handler) fail(c *gin.Context, msg string, err error, fields ...zap.Field) {
	if service.IsValidation(err) {
		h.log.Warn(msg, append(fields, zap.Error(err))...)
		h.badRequest(c, err.Error())
		return
	}

	h.log.Error(msg, append(fields, zap.Error(err))...)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "internal_error",
		Message: "internal server error",
	})
}
