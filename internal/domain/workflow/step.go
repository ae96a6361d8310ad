package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepState is the tagged state of a workflow step. Each variant carries
// exactly the data that exists in that state, so combinations like a pending
// step with a decision are unrepresentable. The interface is sealed; the four
// variants below are the only implementations.
type StepState interface {
	stepState()
	// Status returns the state's discriminant
	Status() StepStatus
}

// Pending is the state of a step whose turn has not come
type Pending struct{}

func (Pending) stepState() {}

// Status returns StepStatusPending
func (Pending) Status() StepStatus { return StepStatusPending }

// Active is the state of the step currently awaiting its assignee's decision
type Active struct {
	StartedAt time.Time
}

func (Active) stepState() {}

// Status returns StepStatusActive
func (Active) Status() StepStatus { return StepStatusActive }

// Completed is the terminal state of a decided step
type Completed struct {
	Decision    Decision
	Comment     string
	StartedAt   time.Time
	CompletedAt time.Time
}

func (Completed) stepState() {}

// Status returns StepStatusCompleted
func (Completed) Status() StepStatus { return StepStatusCompleted }

// Skipped is the terminal state of a step bypassed because its instance was
// rejected or sent back before the step's turn
type Skipped struct{}

func (Skipped) stepState() {}

// Status returns StepStatusSkipped
func (Skipped) Status() StepStatus { return StepStatusSkipped }

// WorkflowStep is one approval task inside a running workflow instance. Steps
// are created together with their instance's submission and live exactly as
// long as the instance. The step carries its own optimistic-lock version,
// independent of the instance's.
type WorkflowStep struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	InstanceID    uuid.UUID
	TemplateID    string
	Name          string
	DisplayNumber int
	AssigneeID    uuid.UUID
	DueDate       *time.Time
	State         StepState
	Version       Version
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewStepParams carries the inputs for creating a step
type NewStepParams struct {
	TenantID      uuid.UUID
	InstanceID    uuid.UUID
	TemplateID    string
	Name          string
	DisplayNumber int
	AssigneeID    uuid.UUID
	DueDate       *time.Time
}

// NewWorkflowStep creates a Pending step at the initial version
func NewWorkflowStep(p NewStepParams, now time.Time) WorkflowStep {
	return WorkflowStep{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      p.TenantID,
		InstanceID:    p.InstanceID,
		TemplateID:    p.TemplateID,
		Name:          p.Name,
		DisplayNumber: p.DisplayNumber,
		AssigneeID:    p.AssigneeID,
		DueDate:       p.DueDate,
		State:         Pending{},
		Version:       InitialVersion(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Status returns the discriminant of the step's current state
func (s WorkflowStep) Status() StepStatus {
	return s.State.Status()
}

// Activated returns the step moved to Active. The transition is deliberately
// unconditional: the step does not know the instance's step ordering, so the
// orchestration layer is trusted to activate only the step that is
// legitimately next.
func (s WorkflowStep) Activated(now time.Time) WorkflowStep {
	s.State = Active{StartedAt: now}
	s.Version = s.Version.Next()
	s.UpdatedAt = now
	return s
}

// Approved completes an Active step with an approval decision
func (s WorkflowStep) Approved(comment string, now time.Time) (WorkflowStep, error) {
	return s.completed(DecisionApproved, comment, now)
}

// Rejected completes an Active step with a rejection decision
func (s WorkflowStep) Rejected(comment string, now time.Time) (WorkflowStep, error) {
	return s.completed(DecisionRejected, comment, now)
}

// ChangesRequested completes an Active step with a request for changes
func (s WorkflowStep) ChangesRequested(comment string, now time.Time) (WorkflowStep, error) {
	return s.completed(DecisionChangesRequested, comment, now)
}

func (s WorkflowStep) completed(d Decision, comment string, now time.Time) (WorkflowStep, error) {
	active, ok := s.State.(Active)
	if !ok {
		return s, fmt.Errorf("%w: cannot decide step in status %q", ErrInvalidTransition, s.Status())
	}
	s.State = Completed{
		Decision:    d,
		Comment:     comment,
		StartedAt:   active.StartedAt,
		CompletedAt: now,
	}
	s.Version = s.Version.Next()
	s.UpdatedAt = now
	return s, nil
}

// Skipped returns the step moved from Pending to Skipped. Steps that already
// started cannot be skipped.
func (s WorkflowStep) Skipped(now time.Time) (WorkflowStep, error) {
	if _, ok := s.State.(Pending); !ok {
		return s, fmt.Errorf("%w: cannot skip step in status %q", ErrInvalidTransition, s.Status())
	}
	s.State = Skipped{}
	s.Version = s.Version.Next()
	s.UpdatedAt = now
	return s, nil
}

// IsOverdue returns true when the step has a due date in the past and is
// still awaiting a decision
func (s WorkflowStep) IsOverdue(now time.Time) bool {
	if s.DueDate == nil || s.Status().IsTerminal() {
		return false
	}
	return now.After(*s.DueDate)
}

// StepStateFromRecord rebuilds a tagged state from flat storage columns,
// rejecting column combinations that no state can carry.
func StepStateFromRecord(status StepStatus, decision *Decision, comment string, startedAt, completedAt *time.Time) (StepState, error) {
	switch status {
	case StepStatusPending:
		return Pending{}, nil
	case StepStatusActive:
		if startedAt == nil {
			return nil, fmt.Errorf("active step record has no started_at")
		}
		return Active{StartedAt: *startedAt}, nil
	case StepStatusCompleted:
		if decision == nil || !decision.IsValid() {
			return nil, fmt.Errorf("completed step record has no valid decision")
		}
		if startedAt == nil || completedAt == nil {
			return nil, fmt.Errorf("completed step record is missing timestamps")
		}
		return Completed{
			Decision:    *decision,
			Comment:     comment,
			StartedAt:   *startedAt,
			CompletedAt: *completedAt,
		}, nil
	case StepStatusSkipped:
		return Skipped{}, nil
	default:
		return nil, fmt.Errorf("unknown step status %q", status)
	}
}
