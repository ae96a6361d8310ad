package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

// DefinitionFilter narrows definition listings. Nil fields match everything.
type DefinitionFilter struct {
	Status *workflow.DefinitionStatus
}

// InstanceFilter narrows instance listings. Nil fields match everything.
type InstanceFilter struct {
	Status      *workflow.InstanceStatus
	InitiatorID *uuid.UUID
}

// DefinitionRepository defines persistence operations for WorkflowDefinition.
// Lookups are tenant-scoped; a missing row yields (nil, nil).
type DefinitionRepository interface {
	Create(ctx context.Context, def *workflow.WorkflowDefinition) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowDefinition, error)
	List(ctx context.Context, tenantID uuid.UUID, filter DefinitionFilter, limit, offset int) ([]*workflow.WorkflowDefinition, error)

	// UpdateWithVersionCheck persists def only if the stored row still carries
	// the expected version. A stale version yields workflow.ErrConflict.
	UpdateWithVersionCheck(ctx context.Context, def *workflow.WorkflowDefinition, expected workflow.Version) error

	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *workflow.WorkflowInstance) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowInstance, error)
	List(ctx context.Context, tenantID uuid.UUID, filter InstanceFilter, limit, offset int) ([]*workflow.WorkflowInstance, error)
	UpdateWithVersionCheck(ctx context.Context, instance *workflow.WorkflowInstance, expected workflow.Version) error
}

// StepRepository defines persistence operations for WorkflowStep
type StepRepository interface {
	Create(ctx context.Context, step *workflow.WorkflowStep) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowStep, error)

	// GetByInstanceID returns every step of an instance ordered by display number.
	GetByInstanceID(ctx context.Context, tenantID, instanceID uuid.UUID) ([]*workflow.WorkflowStep, error)

	UpdateWithVersionCheck(ctx context.Context, step *workflow.WorkflowStep, expected workflow.Version) error
}
