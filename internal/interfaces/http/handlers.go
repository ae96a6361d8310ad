package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/application/service"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	definitionService service.DefinitionService
	workflowService   service.WorkflowService
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	definitionService service.DefinitionService,
	workflowService service.WorkflowService,
	logger Logger,
) *Handlers {
	return &Handlers{
		definitionService: definitionService,
		workflowService:   workflowService,
		logger:            logger,
	}
}

// Response represents a standard JSON response. Violations is populated only
// for validation failures and carries the complete defect list.
type Response struct {
	Success    bool                       `json:"success"`
	Data       interface{}                `json:"data,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Violations []workflow.ValidationError `json:"violations,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// actor resolves the acting identity from the gateway-supplied headers. The
// adapter trusts upstream authentication and only requires well-formed ids.
func (h *Handlers) actor(c *gin.Context) (port.Actor, bool) {
	tenantID, err := uuid.Parse(c.GetHeader("X-Tenant-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing or invalid X-Tenant-ID header",
		})
		return port.Actor{}, false
	}

	userID, err := uuid.Parse(c.GetHeader("X-User-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "missing or invalid X-User-ID header",
		})
		return port.Actor{}, false
	}

	return port.Actor{TenantID: tenantID, UserID: userID}, true
}

// uuidParam parses a path parameter as a uuid
func (h *Handlers) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid " + name + " parameter",
		})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto HTTP statuses. Validation failures
// carry every violation in the body; unclassified errors become an opaque 500.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var validationErr *workflow.ValidationFailedError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, Response{
			Success:    false,
			Error:      validationErr.Error(),
			Violations: validationErr.Violations,
		})
	case errors.Is(err, workflow.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
	case errors.Is(err, workflow.ErrForbidden):
		c.JSON(http.StatusForbidden, Response{
			Success: false,
			Error:   err.Error(),
		})
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   err.Error(),
		})
	case errors.Is(err, workflow.ErrConflict):
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   err.Error(),
		})
	default:
		h.logger.Error("Unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "internal error",
		})
	}
}

// pagination reads the limit/offset query parameters, leaving clamping to the
// service layer
type paginationRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (h *Handlers) pagination(c *gin.Context) (int, int, bool) {
	var req paginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return 0, 0, false
	}
	return req.Limit, req.Offset, true
}
