package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/application/service"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

// CreateWorkflowRequest is the body for creating a draft workflow
type CreateWorkflowRequest struct {
	DefinitionID string          `json:"definition_id" binding:"required"`
	Title        string          `json:"title" binding:"required"`
	FormData     json.RawMessage `json:"form_data"`
}

// AssignmentRequest names the assignee (and optional due date) for one
// approval step of the pinned graph, keyed by that step's template id
type AssignmentRequest struct {
	AssigneeID string     `json:"assignee_id" binding:"required"`
	DueDate    *time.Time `json:"due_date"`
}

// SubmitWorkflowRequest is the body for submitting a draft
type SubmitWorkflowRequest struct {
	Assignments map[string]AssignmentRequest `json:"assignments"`
}

// ResubmitWorkflowRequest is the body for resubmitting after changes were
// requested
type ResubmitWorkflowRequest struct {
	ExpectedVersion int64                        `json:"expected_version" binding:"required"`
	FormData        json.RawMessage              `json:"form_data"`
	Assignments     map[string]AssignmentRequest `json:"assignments"`
}

// DecisionRequest is the body for approve/reject/request-changes calls
type DecisionRequest struct {
	ExpectedVersion int64  `json:"expected_version" binding:"required"`
	Comment         string `json:"comment"`
}

// InstanceResponse represents a workflow instance in API responses
type InstanceResponse struct {
	ID                string          `json:"id"`
	TenantID          string          `json:"tenant_id"`
	DefinitionID      string          `json:"definition_id"`
	DefinitionVersion int64           `json:"definition_version"`
	Title             string          `json:"title"`
	FormData          json.RawMessage `json:"form_data,omitempty"`
	Status            string          `json:"status"`
	CurrentStepID     *string         `json:"current_step_id,omitempty"`
	InitiatorID       string          `json:"initiator_id"`
	SubmittedAt       *string         `json:"submitted_at,omitempty"`
	CompletedAt       *string         `json:"completed_at,omitempty"`
	Version           int64           `json:"version"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

// StepResponse represents a workflow step in API responses
type StepResponse struct {
	ID            string  `json:"id"`
	InstanceID    string  `json:"instance_id"`
	TemplateID    string  `json:"template_id"`
	Name          string  `json:"name"`
	DisplayNumber int     `json:"display_number"`
	AssigneeID    string  `json:"assignee_id"`
	DueDate       *string `json:"due_date,omitempty"`
	Status        string  `json:"status"`
	Decision      string  `json:"decision,omitempty"`
	Comment       string  `json:"comment,omitempty"`
	StartedAt     *string `json:"started_at,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	Version       int64   `json:"version"`
}

// WorkflowDetailResponse bundles a workflow with its steps
type WorkflowDetailResponse struct {
	Instance InstanceResponse `json:"instance"`
	Steps    []StepResponse   `json:"steps"`
}

// DecisionResponse is the outcome of a step decision
type DecisionResponse struct {
	Step     StepResponse     `json:"step"`
	Instance InstanceResponse `json:"instance"`
	Final    bool             `json:"final"`
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}
	definitionID, err := uuid.Parse(req.DefinitionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid definition_id"})
		return
	}

	instance, err := h.workflowService.CreateDraft(c.Request.Context(), actor, service.CreateWorkflowInput{
		DefinitionID: definitionID,
		Title:        req.Title,
		FormData:     req.FormData,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toInstanceResponse(instance),
	})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	limit, offset, ok := h.pagination(c)
	if !ok {
		return
	}

	var filter port.InstanceFilter
	if raw := c.Query("status"); raw != "" {
		status := workflow.InstanceStatus(raw)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid status filter"})
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("initiator_id"); raw != "" {
		initiatorID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid initiator_id filter"})
			return
		}
		filter.InitiatorID = &initiatorID
	}

	instances, err := h.workflowService.List(c.Request.Context(), actor, filter, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	responses := make([]InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		responses = append(responses, toInstanceResponse(instance))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    responses,
	})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.workflowService.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toWorkflowDetailResponse(detail),
	})
}

// SubmitWorkflow handles POST /api/v1/workflows/:id/submit
func (h *Handlers) SubmitWorkflow(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req SubmitWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}
	assignments, ok := h.assignments(c, req.Assignments)
	if !ok {
		return
	}

	detail, err := h.workflowService.Submit(c.Request.Context(), actor, id, service.SubmitInput{
		Assignments: assignments,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toWorkflowDetailResponse(detail),
	})
}

// ResubmitWorkflow handles POST /api/v1/workflows/:id/resubmit
func (h *Handlers) ResubmitWorkflow(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req ResubmitWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}
	assignments, ok := h.assignments(c, req.Assignments)
	if !ok {
		return
	}

	detail, err := h.workflowService.Resubmit(c.Request.Context(), actor, id, workflow.Version(req.ExpectedVersion), service.ResubmitInput{
		FormData:    req.FormData,
		Assignments: assignments,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toWorkflowDetailResponse(detail),
	})
}

// ApproveStep handles POST /api/v1/steps/:id/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	h.decideStep(c, h.workflowService.Approve)
}

// RejectStep handles POST /api/v1/steps/:id/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	h.decideStep(c, h.workflowService.Reject)
}

// RequestChangesStep handles POST /api/v1/steps/:id/request-changes
func (h *Handlers) RequestChangesStep(c *gin.Context) {
	h.decideStep(c, h.workflowService.RequestChanges)
}

// decideStep runs the shared plumbing of the three decision endpoints
func (h *Handlers) decideStep(c *gin.Context, decide func(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string) (*service.DecisionResult, error)) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := decide(c.Request.Context(), actor, id, workflow.Version(req.ExpectedVersion), req.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: DecisionResponse{
			Step:     toStepResponse(*result.Step),
			Instance: toInstanceResponse(result.Instance),
			Final:    result.Final,
		},
	})
}

// assignments converts the request's assignment map into service inputs
func (h *Handlers) assignments(c *gin.Context, reqs map[string]AssignmentRequest) (map[string]service.StepAssignment, bool) {
	assignments := make(map[string]service.StepAssignment, len(reqs))
	for templateID, req := range reqs {
		assigneeID, err := uuid.Parse(req.AssigneeID)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "invalid assignee_id for step " + templateID,
			})
			return nil, false
		}
		assignments[templateID] = service.StepAssignment{
			AssigneeID: assigneeID,
			DueDate:    req.DueDate,
		}
	}
	return assignments, true
}

// toInstanceResponse converts a domain instance to its API shape
func toInstanceResponse(instance *workflow.WorkflowInstance) InstanceResponse {
	resp := InstanceResponse{
		ID:                instance.ID.String(),
		TenantID:          instance.TenantID.String(),
		DefinitionID:      instance.DefinitionID.String(),
		DefinitionVersion: instance.DefinitionVersion.Int64(),
		Title:             instance.Title,
		FormData:          instance.FormData,
		Status:            string(instance.Status),
		InitiatorID:       instance.InitiatorID.String(),
		Version:           instance.Version.Int64(),
		CreatedAt:         instance.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         instance.UpdatedAt.Format(time.RFC3339),
	}
	if instance.CurrentStepID != nil {
		stepID := instance.CurrentStepID.String()
		resp.CurrentStepID = &stepID
	}
	if instance.SubmittedAt != nil {
		submittedAt := instance.SubmittedAt.Format(time.RFC3339)
		resp.SubmittedAt = &submittedAt
	}
	if instance.CompletedAt != nil {
		completedAt := instance.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completedAt
	}
	return resp
}

// toStepResponse converts a domain step to its API shape, flattening the
// state variant into the optional decision fields
func toStepResponse(step workflow.WorkflowStep) StepResponse {
	resp := StepResponse{
		ID:            step.ID.String(),
		InstanceID:    step.InstanceID.String(),
		TemplateID:    step.TemplateID,
		Name:          step.Name,
		DisplayNumber: step.DisplayNumber,
		AssigneeID:    step.AssigneeID.String(),
		Status:        string(step.Status()),
		Version:       step.Version.Int64(),
	}
	if step.DueDate != nil {
		dueDate := step.DueDate.Format(time.RFC3339)
		resp.DueDate = &dueDate
	}

	switch state := step.State.(type) {
	case workflow.Active:
		startedAt := state.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &startedAt
	case workflow.Completed:
		resp.Decision = string(state.Decision)
		resp.Comment = state.Comment
		startedAt := state.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &startedAt
		completedAt := state.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completedAt
	}
	return resp
}

// toWorkflowDetailResponse converts a workflow detail to its API shape
func toWorkflowDetailResponse(detail *service.WorkflowDetail) WorkflowDetailResponse {
	steps := make([]StepResponse, 0, len(detail.Steps))
	for _, step := range detail.Steps {
		steps = append(steps, toStepResponse(*step))
	}
	return WorkflowDetailResponse{
		Instance: toInstanceResponse(detail.Instance),
		Steps:    steps,
	}
}
