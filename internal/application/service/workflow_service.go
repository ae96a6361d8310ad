package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/approvalflow/approvalflow/internal/application/dispatcher"
	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/domain/event"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

// Permissions checked by WorkflowService
const (
	PermWorkflowCreate   = "workflow:create"
	PermWorkflowSubmit   = "workflow:submit"
	PermWorkflowResubmit = "workflow:resubmit"
	PermWorkflowDecide   = "workflow:decide"
	PermWorkflowRead     = "workflow:read"
)

// CreateWorkflowInput carries the fields for a new draft workflow
type CreateWorkflowInput struct {
	DefinitionID uuid.UUID
	Title        string
	FormData     json.RawMessage
}

// StepAssignment names the assignee, and optionally a due date, for one
// approval step of the definition's graph.
type StepAssignment struct {
	AssigneeID uuid.UUID
	DueDate    *time.Time
}

// SubmitInput carries the per-step assignments for a submission, keyed by the
// graph step id.
type SubmitInput struct {
	Assignments map[string]StepAssignment
}

// ResubmitInput carries a resubmission. A nil FormData keeps the previously
// submitted form data.
type ResubmitInput struct {
	FormData    json.RawMessage
	Assignments map[string]StepAssignment
}

// WorkflowDetail bundles an instance with its steps ordered by display number
type WorkflowDetail struct {
	Instance *workflow.WorkflowInstance
	Steps    []*workflow.WorkflowStep
}

// DecisionResult reports the outcome of a step decision. Final is true when
// the decision moved the workflow into a terminal status.
type DecisionResult struct {
	Step     *workflow.WorkflowStep
	Instance *workflow.WorkflowInstance
	Final    bool
}

// WorkflowService drives workflow instances and their steps through the
// approval lifecycle. All writes use optimistic locking; a stale version
// surfaces as workflow.ErrConflict and is never retried here.
type WorkflowService interface {
	CreateDraft(ctx context.Context, actor port.Actor, input CreateWorkflowInput) (*workflow.WorkflowInstance, error)
	Submit(ctx context.Context, actor port.Actor, instanceID uuid.UUID, input SubmitInput) (*WorkflowDetail, error)
	Resubmit(ctx context.Context, actor port.Actor, instanceID uuid.UUID, expectedVersion workflow.Version, input ResubmitInput) (*WorkflowDetail, error)
	Approve(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string) (*DecisionResult, error)
	Reject(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string) (*DecisionResult, error)
	RequestChanges(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string) (*DecisionResult, error)
	Get(ctx context.Context, actor port.Actor, instanceID uuid.UUID) (*WorkflowDetail, error)
	List(ctx context.Context, actor port.Actor, filter port.InstanceFilter, limit, offset int) ([]*workflow.WorkflowInstance, error)
}

type workflowServiceImpl struct {
	defRepo      port.DefinitionRepository
	instanceRepo port.InstanceRepository
	stepRepo     port.StepRepository
	authz        port.Authorizer
	dispatcher   dispatcher.Dispatcher
	clock        workflow.Clock
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	defRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	stepRepo port.StepRepository,
	authz port.Authorizer,
	dispatcher dispatcher.Dispatcher,
	clock workflow.Clock,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		defRepo:      defRepo,
		instanceRepo: instanceRepo,
		stepRepo:     stepRepo,
		authz:        authz,
		dispatcher:   dispatcher,
		clock:        clock,
		logger:       logger,
	}
}

// CreateDraft creates a draft workflow against a published definition. The
// definition version is pinned on the draft and honored for the workflow's
// whole life.
func (s *workflowServiceImpl) CreateDraft(ctx context.Context, actor port.Actor, input CreateWorkflowInput) (*workflow.WorkflowInstance, error) {
	if err := s.authorize(ctx, actor, PermWorkflowCreate); err != nil {
		return nil, err
	}

	def, err := s.loadDefinition(ctx, actor.TenantID, input.DefinitionID)
	if err != nil {
		return nil, err
	}
	if def.Status != workflow.DefinitionStatusPublished {
		return nil, fmt.Errorf("%w: definition %s is %q, workflows need a published definition", workflow.ErrInvalidTransition, def.ID, def.Status)
	}

	instance := workflow.NewWorkflowInstance(workflow.NewInstanceParams{
		TenantID:          actor.TenantID,
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		Title:             input.Title,
		FormData:          input.FormData,
		InitiatorID:       actor.UserID,
	}, s.clock.Now())

	if err := s.instanceRepo.Create(ctx, &instance); err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "definition_id", def.ID)
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	s.logger.Info("Workflow created", "workflow_id", instance.ID, "definition_id", def.ID)
	return &instance, nil
}

// Submit moves a draft workflow into progress. One step is created per
// approval step of the pinned graph; the first is activated immediately, the
// rest wait as pending. Steps are persisted before the instance.
func (s *workflowServiceImpl) Submit(ctx context.Context, actor port.Actor, instanceID uuid.UUID, input SubmitInput) (*WorkflowDetail, error) {
	if err := s.authorize(ctx, actor, PermWorkflowSubmit); err != nil {
		return nil, err
	}

	instance, err := s.loadInstance(ctx, actor.TenantID, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.InitiatorID != actor.UserID {
		return nil, fmt.Errorf("%w: only the initiator may submit workflow %s", workflow.ErrForbidden, instanceID)
	}

	def, err := s.loadDefinition(ctx, actor.TenantID, instance.DefinitionID)
	if err != nil {
		return nil, err
	}
	if def.Status != workflow.DefinitionStatusPublished {
		return nil, fmt.Errorf("%w: definition %s is %q, not published", workflow.ErrInvalidTransition, def.ID, def.Status)
	}

	now := s.clock.Now()
	steps, err := buildStepSequence(def.Graph, *instance, input.Assignments, 1, now)
	if err != nil {
		return nil, err
	}

	steps[0] = steps[0].Activated(now)
	submitted, err := instance.SubmittedWith(steps[0].ID, now)
	if err != nil {
		return nil, err
	}

	if err := s.persistSequence(ctx, steps, &submitted, instance.Version); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow submitted",
		"workflow_id", instance.ID,
		"step_count", len(steps),
		"first_step_id", steps[0].ID,
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeWorkflowSubmitted, actor.TenantID, instance.ID, actor.UserID, map[string]interface{}{
			"title":      submitted.Title,
			"step_count": len(steps),
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return s.detail(&submitted, steps), nil
}

// Resubmit starts a fresh step sequence after changes were requested. Only
// the original initiator may resubmit; the form data may be replaced. Display
// numbers continue where the previous sequence stopped.
func (s *workflowServiceImpl) Resubmit(ctx context.Context, actor port.Actor, instanceID uuid.UUID, expectedVersion workflow.Version, input ResubmitInput) (*WorkflowDetail, error) {
	if err := s.authorize(ctx, actor, PermWorkflowResubmit); err != nil {
		return nil, err
	}

	instance, err := s.loadInstance(ctx, actor.TenantID, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.InitiatorID != actor.UserID {
		return nil, fmt.Errorf("%w: only the initiator may resubmit workflow %s", workflow.ErrForbidden, instanceID)
	}
	if instance.Version != expectedVersion {
		return nil, staleVersion("workflow", instanceID, instance.Version, expectedVersion)
	}

	// The definition may be archived by now; an in-flight workflow still
	// follows its pinned graph.
	def, err := s.loadDefinition(ctx, actor.TenantID, instance.DefinitionID)
	if err != nil {
		return nil, err
	}

	previous, err := s.loadSteps(ctx, actor.TenantID, instanceID)
	if err != nil {
		return nil, err
	}
	nextNumber := 1
	for _, p := range previous {
		if p.DisplayNumber >= nextNumber {
			nextNumber = p.DisplayNumber + 1
		}
	}

	now := s.clock.Now()
	steps, err := buildStepSequence(def.Graph, *instance, input.Assignments, nextNumber, now)
	if err != nil {
		return nil, err
	}

	steps[0] = steps[0].Activated(now)
	resubmitted, err := instance.Resubmitted(input.FormData, steps[0].ID, now)
	if err != nil {
		return nil, err
	}

	if err := s.persistSequence(ctx, steps, &resubmitted, expectedVersion); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow resubmitted",
		"workflow_id", instance.ID,
		"step_count", len(steps),
		"first_step_id", steps[0].ID,
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeWorkflowResubmitted, actor.TenantID, instance.ID, actor.UserID, map[string]interface{}{
			"title":      resubmitted.Title,
			"step_count": len(steps),
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return s.detail(&resubmitted, steps), nil
}

// Approve records an approval on the active step and advances the workflow,
// completing it when the step was the last one on the approval path.
func (s *workflowServiceImpl) Approve(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string) (*DecisionResult, error) {
	return s.decide(ctx, actor, stepID, expectedVersion, comment, workflow.DecisionApproved)
}

// Reject records a rejection on the active step and completes the workflow as
// rejected. Remaining pending steps are skipped.
func (s *workflowServiceImpl) Reject(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string) (*DecisionResult, error) {
	return s.decide(ctx, actor, stepID, expectedVersion, comment, workflow.DecisionRejected)
}

// RequestChanges sends the workflow back to its initiator for rework.
// Remaining pending steps are skipped; the initiator may later resubmit.
func (s *workflowServiceImpl) RequestChanges(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string) (*DecisionResult, error) {
	return s.decide(ctx, actor, stepID, expectedVersion, comment, workflow.DecisionChangesRequested)
}

// Get retrieves a workflow with its steps
func (s *workflowServiceImpl) Get(ctx context.Context, actor port.Actor, instanceID uuid.UUID) (*WorkflowDetail, error) {
	if err := s.authorize(ctx, actor, PermWorkflowRead); err != nil {
		return nil, err
	}

	instance, err := s.loadInstance(ctx, actor.TenantID, instanceID)
	if err != nil {
		return nil, err
	}
	steps, err := s.loadSteps(ctx, actor.TenantID, instanceID)
	if err != nil {
		return nil, err
	}
	return &WorkflowDetail{Instance: instance, Steps: steps}, nil
}

// List retrieves a paginated list of workflows
func (s *workflowServiceImpl) List(ctx context.Context, actor port.Actor, filter port.InstanceFilter, limit, offset int) ([]*workflow.WorkflowInstance, error) {
	if err := s.authorize(ctx, actor, PermWorkflowRead); err != nil {
		return nil, err
	}

	limit, offset = normalizePage(limit, offset)
	instances, err := s.instanceRepo.List(ctx, actor.TenantID, filter, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list workflows", "error", err, "tenant_id", actor.TenantID)
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return instances, nil
}

// stepWrite pairs a transitioned step with the version its row must still
// carry for the write to commit.
type stepWrite struct {
	step     workflow.WorkflowStep
	expected workflow.Version
}

// decide runs the shared decision orchestration: transition the step, compute
// the workflow's next position from the pinned graph, transition the
// instance, then persist step and instance as two separate version-checked
// writes. The two writes are not one transaction; a crash in between leaves
// the step decided but the instance not yet advanced, which is detected and
// reconciled outside this service.
func (s *workflowServiceImpl) decide(ctx context.Context, actor port.Actor, stepID uuid.UUID, expectedVersion workflow.Version, comment string, decision workflow.Decision) (*DecisionResult, error) {
	if err := s.authorize(ctx, actor, PermWorkflowDecide); err != nil {
		return nil, err
	}

	step, err := s.loadStep(ctx, actor.TenantID, stepID)
	if err != nil {
		return nil, err
	}
	if step.AssigneeID != actor.UserID {
		return nil, fmt.Errorf("%w: user %s is not the assignee of step %s", workflow.ErrForbidden, actor.UserID, stepID)
	}
	if step.Version != expectedVersion {
		return nil, staleVersion("step", stepID, step.Version, expectedVersion)
	}

	now := s.clock.Now()
	var decided workflow.WorkflowStep
	switch decision {
	case workflow.DecisionApproved:
		decided, err = step.Approved(comment, now)
	case workflow.DecisionRejected:
		decided, err = step.Rejected(comment, now)
	case workflow.DecisionChangesRequested:
		decided, err = step.ChangesRequested(comment, now)
	default:
		return nil, fmt.Errorf("unsupported decision %q", decision)
	}
	if err != nil {
		return nil, err
	}

	instance, err := s.loadInstance(ctx, actor.TenantID, step.InstanceID)
	if err != nil {
		return nil, err
	}
	def, err := s.loadDefinition(ctx, actor.TenantID, instance.DefinitionID)
	if err != nil {
		return nil, err
	}
	siblings, err := s.loadSteps(ctx, actor.TenantID, instance.ID)
	if err != nil {
		return nil, err
	}

	updated, followUps, err := s.routeDecision(decision, decided, *instance, def.Graph, siblings, now)
	if err != nil {
		return nil, err
	}
	final := updated.Status.IsTerminal()

	if err := s.stepRepo.UpdateWithVersionCheck(ctx, &decided, expectedVersion); err != nil {
		s.logger.Error("Failed to update step", "error", err, "step_id", stepID)
		return nil, fmt.Errorf("update step: %w", err)
	}
	for _, w := range followUps {
		if err := s.stepRepo.UpdateWithVersionCheck(ctx, &w.step, w.expected); err != nil {
			s.logger.Error("Failed to update step", "error", err, "step_id", w.step.ID)
			return nil, fmt.Errorf("update step: %w", err)
		}
	}
	if err := s.instanceRepo.UpdateWithVersionCheck(ctx, &updated, instance.Version); err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "workflow_id", instance.ID)
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	s.logger.Info("Step decided",
		"step_id", stepID,
		"decision", decision,
		"workflow_id", instance.ID,
		"workflow_status", updated.Status,
	)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeStepDecided, actor.TenantID, instance.ID, actor.UserID, map[string]interface{}{
			"step_id":        stepID.String(),
			"decision":       decision.String(),
			"display_number": decided.DisplayNumber,
		})
		if final {
			evt = evt.WithPayload("final", true)
		}
		s.dispatcher.DispatchAsync(ctx, evt)

		if final {
			done := event.NewEventWithCorrelation(event.TypeWorkflowCompleted, actor.TenantID, instance.ID, actor.UserID, map[string]interface{}{
				"status": updated.Status.String(),
			}, evt.CorrelationID)
			s.dispatcher.DispatchAsync(ctx, done)
		}
	}

	return &DecisionResult{Step: &decided, Instance: &updated, Final: final}, nil
}

// routeDecision computes the instance transition and any follow-up step
// writes a decision entails. Approvals follow the graph to the next approval
// step or to completion; rejections and change requests end the current
// sequence, skipping whatever was still pending.
func (s *workflowServiceImpl) routeDecision(decision workflow.Decision, decided workflow.WorkflowStep, instance workflow.WorkflowInstance, graph workflow.Graph, siblings []*workflow.WorkflowStep, now time.Time) (workflow.WorkflowInstance, []stepWrite, error) {
	switch decision {
	case workflow.DecisionApproved:
		nextSpec, final, err := graph.NextAfterApproval(decided.TemplateID)
		if err != nil {
			return instance, nil, fmt.Errorf("route approval: %w", err)
		}
		if final {
			updated, err := instance.CompletedWithApproval(now)
			return updated, nil, err
		}

		next := findPendingByTemplate(siblings, nextSpec.ID)
		if next == nil {
			return instance, nil, fmt.Errorf("workflow %s has no pending step for graph step %q", instance.ID, nextSpec.ID)
		}
		activated := next.Activated(now)
		updated, err := instance.AdvancedTo(activated.ID, now)
		return updated, []stepWrite{{step: activated, expected: next.Version}}, err

	case workflow.DecisionRejected:
		updated, err := instance.CompletedWithRejection(now)
		if err != nil {
			return instance, nil, err
		}
		skips, err := skipPending(siblings, now)
		return updated, skips, err

	case workflow.DecisionChangesRequested:
		updated, err := instance.ChangesRequested(now)
		if err != nil {
			return instance, nil, err
		}
		skips, err := skipPending(siblings, now)
		return updated, skips, err

	default:
		return instance, nil, fmt.Errorf("unsupported decision %q", decision)
	}
}

// buildStepSequence creates one pending step per approval step of the graph,
// in approval order. Every approval step must carry an assignment; the
// missing ones are reported together, mirroring the validator's
// aggregate-everything contract.
func buildStepSequence(graph workflow.Graph, instance workflow.WorkflowInstance, assignments map[string]StepAssignment, startNumber int, now time.Time) ([]workflow.WorkflowStep, error) {
	seq, err := graph.ApprovalSequence()
	if err != nil {
		return nil, fmt.Errorf("approval sequence: %w", err)
	}

	var violations []workflow.ValidationError
	for _, spec := range seq {
		if _, ok := assignments[spec.ID]; !ok {
			violations = append(violations, workflow.ValidationError{
				Code:    workflow.CodeMissingAssignee,
				Message: fmt.Sprintf("approval step %q has no assignee", spec.ID),
				StepID:  spec.ID,
			})
		}
	}
	if len(violations) > 0 {
		return nil, workflow.NewValidationFailed(violations)
	}

	steps := make([]workflow.WorkflowStep, 0, len(seq))
	for i, spec := range seq {
		assignment := assignments[spec.ID]
		steps = append(steps, workflow.NewWorkflowStep(workflow.NewStepParams{
			TenantID:      instance.TenantID,
			InstanceID:    instance.ID,
			TemplateID:    spec.ID,
			Name:          spec.DisplayName(),
			DisplayNumber: startNumber + i,
			AssigneeID:    assignment.AssigneeID,
			DueDate:       assignment.DueDate,
		}, now))
	}
	return steps, nil
}

// persistSequence writes the new steps, then the instance. The instance write
// is version-checked against what the caller last read.
func (s *workflowServiceImpl) persistSequence(ctx context.Context, steps []workflow.WorkflowStep, instance *workflow.WorkflowInstance, expected workflow.Version) error {
	for i := range steps {
		if err := s.stepRepo.Create(ctx, &steps[i]); err != nil {
			s.logger.Error("Failed to create step", "error", err, "workflow_id", instance.ID)
			return fmt.Errorf("create step: %w", err)
		}
	}
	if err := s.instanceRepo.UpdateWithVersionCheck(ctx, instance, expected); err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "workflow_id", instance.ID)
		return fmt.Errorf("update workflow: %w", err)
	}
	return nil
}

func (s *workflowServiceImpl) detail(instance *workflow.WorkflowInstance, steps []workflow.WorkflowStep) *WorkflowDetail {
	out := make([]*workflow.WorkflowStep, len(steps))
	for i := range steps {
		out[i] = &steps[i]
	}
	return &WorkflowDetail{Instance: instance, Steps: out}
}

func (s *workflowServiceImpl) authorize(ctx context.Context, actor port.Actor, permission string) error {
	if s.authz.HasPermission(ctx, actor.TenantID, actor.UserID, permission) {
		return nil
	}
	return fmt.Errorf("%w: user %s lacks %s", workflow.ErrForbidden, actor.UserID, permission)
}

func (s *workflowServiceImpl) loadDefinition(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	def, err := s.defRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		s.logger.Error("Failed to get definition", "error", err, "definition_id", id)
		return nil, fmt.Errorf("get definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: definition %s", workflow.ErrNotFound, id)
	}
	return def, nil
}

func (s *workflowServiceImpl) loadInstance(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowInstance, error) {
	instance, err := s.instanceRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		s.logger.Error("Failed to get workflow", "error", err, "workflow_id", id)
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: workflow %s", workflow.ErrNotFound, id)
	}
	return instance, nil
}

func (s *workflowServiceImpl) loadStep(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowStep, error) {
	step, err := s.stepRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		s.logger.Error("Failed to get step", "error", err, "step_id", id)
		return nil, fmt.Errorf("get step: %w", err)
	}
	if step == nil {
		return nil, fmt.Errorf("%w: step %s", workflow.ErrNotFound, id)
	}
	return step, nil
}

func (s *workflowServiceImpl) loadSteps(ctx context.Context, tenantID, instanceID uuid.UUID) ([]*workflow.WorkflowStep, error) {
	steps, err := s.stepRepo.GetByInstanceID(ctx, tenantID, instanceID)
	if err != nil {
		s.logger.Error("Failed to get steps", "error", err, "workflow_id", instanceID)
		return nil, fmt.Errorf("get steps: %w", err)
	}
	return steps, nil
}

// findPendingByTemplate returns the pending step created from the given graph
// step. Steps from earlier sequences are terminal, so at most one matches.
func findPendingByTemplate(steps []*workflow.WorkflowStep, templateID string) *workflow.WorkflowStep {
	for _, s := range steps {
		if s.TemplateID == templateID && s.Status() == workflow.StepStatusPending {
			return s
		}
	}
	return nil
}

// skipPending marks every still-pending step as skipped
func skipPending(steps []*workflow.WorkflowStep, now time.Time) ([]stepWrite, error) {
	var writes []stepWrite
	for _, s := range steps {
		if s.Status() != workflow.StepStatusPending {
			continue
		}
		skipped, err := s.Skipped(now)
		if err != nil {
			return nil, err
		}
		writes = append(writes, stepWrite{step: skipped, expected: s.Version})
	}
	return writes, nil
}
