package runs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/scrollharvest/harvest"
	"github.com/pevans/scrollharvest/records"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrHarvestBusy is returned when a harvest is requested while another one
// owns the browser session.
var ErrHarvestBusy = errors.New("a harvest is already running")

// Runner performs harvests. *harvest.Harvester implements it.
type Runner interface {
	HarvestByDateWindow(ctx context.Context, url, startLabel, endLabel string) (*harvest.Result, error)
	HarvestFirstN(ctx context.Context, url string, n int) (*harvest.Result, error)
}

// APIServer represents the HTTP API server for harvest runs.
type APIServer struct {
	store  *Store
	runner Runner
	busy   sync.Mutex
}

// NewAPIServer creates a new API server. A nil runner disables the harvest
// endpoint.
func NewAPIServer(store *Store, runner Runner) *APIServer {
	return &APIServer{
		store:  store,
		runner: runner,
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.GET("/runs", s.HandleListRuns)
	api.GET("/runs/:id", s.HandleGetRun)
	api.GET("/runs/:id/records", s.HandleListRecords)
	api.DELETE("/runs/:id", s.HandleDeleteRun)
	api.POST("/harvests", s.HandleHarvest)

	return router
}

// ListRunsResponse represents the response for GET /api/v1/runs.
type ListRunsResponse struct {
	Runs  []records.Summary `json:"runs"`
	Total int               `json:"total"`
}

// ListRecordsResponse represents the response for GET
// /api/v1/runs/{id}/records.
type ListRecordsResponse struct {
	Records []records.Record `json:"records"`
	Total   int              `json:"total"`
}

// HarvestRequest represents the request for POST /api/v1/harvests. Either
// both Start and End, or Count, must be set.
type HarvestRequest struct {
	URL   string `json:"url" binding:"required"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	Count int    `json:"count,omitempty"`
}

// HarvestResponse represents the response for POST /api/v1/harvests.
type HarvestResponse struct {
	Summary records.Summary  `json:"summary"`
	Records []records.Record `json:"records"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *APIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, ErrHarvestBusy):
		c.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, ErrInvalidMode),
		errors.Is(err, harvest.ErrWindowUnresolvable),
		errors.Is(err, harvest.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	case errors.Is(err, harvest.ErrSessionUnavailable):
		c.JSON(http.StatusBadGateway, errorResponse("session_unavailable", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// HandleListRuns handles GET /api/v1/runs.
func (s *APIServer) HandleListRuns(c *gin.Context) {
	filter := RunFilter{}

	if modeParam := c.Query("mode"); modeParam != "" {
		mode := records.Mode(modeParam)
		filter.Mode = &mode
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid limit"))
			return
		}
		filter.Limit = limit
	}
	if offsetParam := c.Query("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid offset"))
			return
		}
		filter.Offset = offset
	}

	runs, err := s.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListRunsResponse{
		Runs:  runs,
		Total: len(runs),
	})
}

// HandleGetRun handles GET /api/v1/runs/{id}.
func (s *APIServer) HandleGetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid run ID"))
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// HandleListRecords handles GET /api/v1/runs/{id}/records.
func (s *APIServer) HandleListRecords(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid run ID"))
		return
	}

	recs, err := s.store.ListRecords(c.Request.Context(), runID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListRecordsResponse{
		Records: recs,
		Total:   len(recs),
	})
}

// HandleDeleteRun handles DELETE /api/v1/runs/{id}.
func (s *APIServer) HandleDeleteRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid run ID"))
		return
	}

	if err := s.store.DeleteRun(c.Request.Context(), runID); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleHarvest handles POST /api/v1/harvests. The harvest runs within the
// request; disconnecting cancels it and keeps what was collected.
func (s *APIServer) HandleHarvest(c *gin.Context) {
	if s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "Harvesting is not enabled on this server"))
		return
	}

	var req HarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	windowed := req.Start != "" || req.End != ""
	switch {
	case windowed && req.Count != 0:
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "Use either start/end or count, not both"))
		return
	case windowed && (req.Start == "" || req.End == ""):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "Both start and end are required"))
		return
	case !windowed && req.Count == 0:
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", "Either start/end or count is required"))
		return
	}

	if !s.busy.TryLock() {
		s.handleError(c, ErrHarvestBusy)
		return
	}
	defer s.busy.Unlock()

	var (
		result *harvest.Result
		err    error
	)
	if windowed {
		result, err = s.runner.HarvestByDateWindow(c.Request.Context(), req.URL, req.Start, req.End)
	} else {
		result, err = s.runner.HarvestFirstN(c.Request.Context(), req.URL, req.Count)
	}

	// A result with an error is a partial harvest; its summary carries the
	// error.
	if result == nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, HarvestResponse{
		Summary: result.Summary,
		Records: result.Records,
	})
}
