package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowInstance is one submitted request following a pinned definition
// version. The instance owns its steps by reference and tracks which step is
// current while in progress. Instances are never physically deleted; Approved
// and Rejected are the terminal states.
//
// Invariants, preserved by every transition:
//   - Approved or Rejected implies CompletedAt is set
//   - InProgress implies CurrentStepID is set
//   - Draft implies SubmittedAt is unset
type WorkflowInstance struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	DefinitionID      uuid.UUID
	DefinitionVersion Version
	Title             string
	FormData          json.RawMessage
	Status            InstanceStatus
	CurrentStepID     *uuid.UUID
	InitiatorID       uuid.UUID
	SubmittedAt       *time.Time
	CompletedAt       *time.Time
	Version           Version
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewInstanceParams carries the inputs for creating an instance
type NewInstanceParams struct {
	TenantID          uuid.UUID
	DefinitionID      uuid.UUID
	DefinitionVersion Version
	Title             string
	FormData          json.RawMessage
	InitiatorID       uuid.UUID
}

// NewWorkflowInstance creates a Draft instance at the initial version. The
// definition version is pinned here and never changes afterward.
func NewWorkflowInstance(p NewInstanceParams, now time.Time) WorkflowInstance {
	return WorkflowInstance{
		ID:                uuid.Must(uuid.NewV7()),
		TenantID:          p.TenantID,
		DefinitionID:      p.DefinitionID,
		DefinitionVersion: p.DefinitionVersion,
		Title:             p.Title,
		FormData:          p.FormData,
		Status:            InstanceStatusDraft,
		InitiatorID:       p.InitiatorID,
		Version:           InitialVersion(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// SubmittedWith returns the instance moved from Draft to InProgress with the
// given step as current. Called when the instance's first step is activated.
func (i WorkflowInstance) SubmittedWith(firstStepID uuid.UUID, now time.Time) (WorkflowInstance, error) {
	if i.Status != InstanceStatusDraft {
		return i, fmt.Errorf("%w: cannot submit workflow in status %q", ErrInvalidTransition, i.Status)
	}
	i.Status = InstanceStatusInProgress
	i.CurrentStepID = &firstStepID
	i.SubmittedAt = &now
	i.Version = i.Version.Next()
	i.UpdatedAt = now
	return i, nil
}

// AdvancedTo returns the instance with its current step moved to the next
// approval step. Valid only while InProgress.
func (i WorkflowInstance) AdvancedTo(nextStepID uuid.UUID, now time.Time) (WorkflowInstance, error) {
	if i.Status != InstanceStatusInProgress {
		return i, fmt.Errorf("%w: cannot advance workflow in status %q", ErrInvalidTransition, i.Status)
	}
	i.CurrentStepID = &nextStepID
	i.Version = i.Version.Next()
	i.UpdatedAt = now
	return i, nil
}

// CompletedWithApproval returns the instance moved from InProgress to
// Approved. Called when the final approval step is approved.
func (i WorkflowInstance) CompletedWithApproval(now time.Time) (WorkflowInstance, error) {
	return i.completed(InstanceStatusApproved, now)
}

// CompletedWithRejection returns the instance moved from InProgress to
// Rejected
func (i WorkflowInstance) CompletedWithRejection(now time.Time) (WorkflowInstance, error) {
	return i.completed(InstanceStatusRejected, now)
}

func (i WorkflowInstance) completed(terminal InstanceStatus, now time.Time) (WorkflowInstance, error) {
	if i.Status != InstanceStatusInProgress {
		return i, fmt.Errorf("%w: cannot complete workflow in status %q", ErrInvalidTransition, i.Status)
	}
	i.Status = terminal
	i.CurrentStepID = nil
	i.CompletedAt = &now
	i.Version = i.Version.Next()
	i.UpdatedAt = now
	return i, nil
}

// ChangesRequested returns the instance moved from InProgress to
// ChangesRequested. The instance is not completed; the initiator may revise
// and resubmit.
func (i WorkflowInstance) ChangesRequested(now time.Time) (WorkflowInstance, error) {
	if i.Status != InstanceStatusInProgress {
		return i, fmt.Errorf("%w: cannot request changes on workflow in status %q", ErrInvalidTransition, i.Status)
	}
	i.Status = InstanceStatusChangesRequested
	i.CurrentStepID = nil
	i.Version = i.Version.Next()
	i.UpdatedAt = now
	return i, nil
}

// Resubmitted returns the instance moved from ChangesRequested back to
// InProgress with a fresh first step as current. Form data is replaced when
// non-nil; a nil payload keeps the previous data.
func (i WorkflowInstance) Resubmitted(formData json.RawMessage, firstStepID uuid.UUID, now time.Time) (WorkflowInstance, error) {
	if i.Status != InstanceStatusChangesRequested {
		return i, fmt.Errorf("%w: cannot resubmit workflow in status %q", ErrInvalidTransition, i.Status)
	}
	if formData != nil {
		i.FormData = formData
	}
	i.Status = InstanceStatusInProgress
	i.CurrentStepID = &firstStepID
	i.SubmittedAt = &now
	i.CompletedAt = nil
	i.Version = i.Version.Next()
	i.UpdatedAt = now
	return i, nil
}
