package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/application/service"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

// CreateDefinitionRequest is the body for creating a definition
type CreateDefinitionRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	Graph       workflow.Graph      `json:"graph"`
	Schema      workflow.FormSchema `json:"schema"`
}

// UpdateDefinitionRequest is the body for updating a draft definition
type UpdateDefinitionRequest struct {
	ExpectedVersion int64               `json:"expected_version" binding:"required"`
	Name            string              `json:"name" binding:"required"`
	Description     string              `json:"description"`
	Graph           workflow.Graph      `json:"graph"`
	Schema          workflow.FormSchema `json:"schema"`
}

// VersionedRequest is the body for operations that only need the caller's
// last-read version
type VersionedRequest struct {
	ExpectedVersion int64 `json:"expected_version" binding:"required"`
}

// ValidateDefinitionRequest is the body for the standalone validation endpoint
type ValidateDefinitionRequest struct {
	Graph  workflow.Graph      `json:"graph"`
	Schema workflow.FormSchema `json:"schema"`
}

// DefinitionResponse represents a workflow definition in API responses
type DefinitionResponse struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenant_id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Status      string              `json:"status"`
	Version     int64               `json:"version"`
	Graph       workflow.Graph      `json:"graph"`
	Schema      workflow.FormSchema `json:"schema"`
	CreatedBy   string              `json:"created_by"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

// ValidationResultResponse is the outcome of the standalone validation
// endpoint
type ValidationResultResponse struct {
	Valid      bool                       `json:"valid"`
	Violations []workflow.ValidationError `json:"violations,omitempty"`
}

// CreateDefinition handles POST /api/v1/definitions
func (h *Handlers) CreateDefinition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req CreateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	def, err := h.definitionService.Create(c.Request.Context(), actor, service.CreateDefinitionInput{
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
		Schema:      req.Schema,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toDefinitionResponse(def),
	})
}

// ListDefinitions handles GET /api/v1/definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	limit, offset, ok := h.pagination(c)
	if !ok {
		return
	}

	var filter port.DefinitionFilter
	if raw := c.Query("status"); raw != "" {
		status := workflow.DefinitionStatus(raw)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid status filter"})
			return
		}
		filter.Status = &status
	}

	defs, err := h.definitionService.List(c.Request.Context(), actor, filter, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	responses := make([]DefinitionResponse, 0, len(defs))
	for _, def := range defs {
		responses = append(responses, toDefinitionResponse(def))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    responses,
	})
}

// GetDefinition handles GET /api/v1/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	def, err := h.definitionService.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDefinitionResponse(def),
	})
}

// UpdateDefinition handles PUT /api/v1/definitions/:id
func (h *Handlers) UpdateDefinition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req UpdateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	def, err := h.definitionService.Update(c.Request.Context(), actor, id, workflow.Version(req.ExpectedVersion), service.UpdateDefinitionInput{
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
		Schema:      req.Schema,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDefinitionResponse(def),
	})
}

// PublishDefinition handles POST /api/v1/definitions/:id/publish
func (h *Handlers) PublishDefinition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req VersionedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	def, err := h.definitionService.Publish(c.Request.Context(), actor, id, workflow.Version(req.ExpectedVersion))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDefinitionResponse(def),
	})
}

// ArchiveDefinition handles POST /api/v1/definitions/:id/archive
func (h *Handlers) ArchiveDefinition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req VersionedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	def, err := h.definitionService.Archive(c.Request.Context(), actor, id, workflow.Version(req.ExpectedVersion))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toDefinitionResponse(def),
	})
}

// DeleteDefinition handles DELETE /api/v1/definitions/:id
func (h *Handlers) DeleteDefinition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.definitionService.Delete(c.Request.Context(), actor, id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ValidateDefinition handles POST /api/v1/definitions/validate. It runs the
// template validator without touching storage, so authors can check drafts
// as they edit.
func (h *Handlers) ValidateDefinition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req ValidateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	violations, err := h.definitionService.Validate(c.Request.Context(), actor, req.Graph, req.Schema)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: ValidationResultResponse{
			Valid:      len(violations) == 0,
			Violations: violations,
		},
	})
}

// toDefinitionResponse converts a domain definition to its API shape
func toDefinitionResponse(def *workflow.WorkflowDefinition) DefinitionResponse {
	return DefinitionResponse{
		ID:          def.ID.String(),
		TenantID:    def.TenantID.String(),
		Name:        def.Name,
		Description: def.Description,
		Status:      string(def.Status),
		Version:     def.Version.Int64(),
		Graph:       def.Graph,
		Schema:      def.Schema,
		CreatedBy:   def.CreatedBy.String(),
		CreatedAt:   def.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   def.UpdatedAt.Format(time.RFC3339),
	}
}
