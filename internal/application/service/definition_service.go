package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/approvalflow/approvalflow/internal/application/dispatcher"
	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/domain/event"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Permissions checked by DefinitionService
const (
	PermDefinitionCreate  = "definition:create"
	PermDefinitionRead    = "definition:read"
	PermDefinitionUpdate  = "definition:update"
	PermDefinitionPublish = "definition:publish"
	PermDefinitionArchive = "definition:archive"
	PermDefinitionDelete  = "definition:delete"
)

// CreateDefinitionInput carries the fields for a new draft definition
type CreateDefinitionInput struct {
	Name        string
	Description string
	Graph       workflow.Graph
	Schema      workflow.FormSchema
}

// UpdateDefinitionInput carries the editable fields of a draft definition
type UpdateDefinitionInput struct {
	Name        string
	Description string
	Graph       workflow.Graph
	Schema      workflow.FormSchema
}

// DefinitionService manages workflow definitions through their lifecycle.
// Drafts may be structurally broken; publishing runs the graph validator and
// either promotes the definition or reports the complete violation list.
type DefinitionService interface {
	Create(ctx context.Context, actor port.Actor, input CreateDefinitionInput) (*workflow.WorkflowDefinition, error)
	Get(ctx context.Context, actor port.Actor, id uuid.UUID) (*workflow.WorkflowDefinition, error)
	List(ctx context.Context, actor port.Actor, filter port.DefinitionFilter, limit, offset int) ([]*workflow.WorkflowDefinition, error)
	Update(ctx context.Context, actor port.Actor, id uuid.UUID, expectedVersion workflow.Version, input UpdateDefinitionInput) (*workflow.WorkflowDefinition, error)
	Publish(ctx context.Context, actor port.Actor, id uuid.UUID, expectedVersion workflow.Version) (*workflow.WorkflowDefinition, error)
	Archive(ctx context.Context, actor port.Actor, id uuid.UUID, expectedVersion workflow.Version) (*workflow.WorkflowDefinition, error)
	Delete(ctx context.Context, actor port.Actor, id uuid.UUID) error
	Validate(ctx context.Context, actor port.Actor, graph workflow.Graph, schema workflow.FormSchema) ([]workflow.ValidationError, error)
}

type definitionServiceImpl struct {
	defRepo    port.DefinitionRepository
	authz      port.Authorizer
	dispatcher dispatcher.Dispatcher
	clock      workflow.Clock
	logger     Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(
	defRepo port.DefinitionRepository,
	authz port.Authorizer,
	dispatcher dispatcher.Dispatcher,
	clock workflow.Clock,
	logger Logger,
) DefinitionService {
	return &definitionServiceImpl{
		defRepo:    defRepo,
		authz:      authz,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// Create stores a new draft definition. No validation runs here; authors may
// save incomplete graphs and fix them before publishing.
func (s *definitionServiceImpl) Create(ctx context.Context, actor port.Actor, input CreateDefinitionInput) (*workflow.WorkflowDefinition, error) {
	if err := s.authorize(ctx, actor, PermDefinitionCreate); err != nil {
		return nil, err
	}

	def := workflow.NewWorkflowDefinition(workflow.NewDefinitionParams{
		TenantID:    actor.TenantID,
		Name:        input.Name,
		Description: input.Description,
		Graph:       input.Graph,
		Schema:      input.Schema,
		CreatedBy:   actor.UserID,
	}, s.clock.Now())

	if err := s.defRepo.Create(ctx, &def); err != nil {
		s.logger.Error("Failed to create definition", "error", err, "tenant_id", actor.TenantID)
		return nil, fmt.Errorf("create definition: %w", err)
	}

	s.logger.Info("Definition created", "definition_id", def.ID, "tenant_id", actor.TenantID)
	return &def, nil
}

// Get retrieves a definition by ID
func (s *definitionServiceImpl) Get(ctx context.Context, actor port.Actor, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	if err := s.authorize(ctx, actor, PermDefinitionRead); err != nil {
		return nil, err
	}
	return s.loadDefinition(ctx, actor.TenantID, id)
}

// List retrieves a paginated list of definitions
func (s *definitionServiceImpl) List(ctx context.Context, actor port.Actor, filter port.DefinitionFilter, limit, offset int) ([]*workflow.WorkflowDefinition, error) {
	if err := s.authorize(ctx, actor, PermDefinitionRead); err != nil {
		return nil, err
	}

	limit, offset = normalizePage(limit, offset)
	defs, err := s.defRepo.List(ctx, actor.TenantID, filter, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list definitions", "error", err, "tenant_id", actor.TenantID)
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return defs, nil
}

// Update applies an edit to a draft definition
func (s *definitionServiceImpl) Update(ctx context.Context, actor port.Actor, id uuid.UUID, expectedVersion workflow.Version, input UpdateDefinitionInput) (*workflow.WorkflowDefinition, error) {
	if err := s.authorize(ctx, actor, PermDefinitionUpdate); err != nil {
		return nil, err
	}

	def, err := s.loadDefinition(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if def.Version != expectedVersion {
		return nil, staleVersion("definition", id, def.Version, expectedVersion)
	}

	updated, err := def.Updated(workflow.DefinitionUpdate{
		Name:        input.Name,
		Description: input.Description,
		Graph:       input.Graph,
		Schema:      input.Schema,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.defRepo.UpdateWithVersionCheck(ctx, &updated, expectedVersion); err != nil {
		s.logger.Error("Failed to update definition", "error", err, "definition_id", id)
		return nil, fmt.Errorf("update definition: %w", err)
	}

	s.logger.Info("Definition updated", "definition_id", id, "version", updated.Version)
	return &updated, nil
}

// Publish validates the definition's graph and form schema and promotes it.
// A structurally broken definition fails with the complete violation list.
func (s *definitionServiceImpl) Publish(ctx context.Context, actor port.Actor, id uuid.UUID, expectedVersion workflow.Version) (*workflow.WorkflowDefinition, error) {
	if err := s.authorize(ctx, actor, PermDefinitionPublish); err != nil {
		return nil, err
	}

	def, err := s.loadDefinition(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if def.Version != expectedVersion {
		return nil, staleVersion("definition", id, def.Version, expectedVersion)
	}

	published, err := def.Published(s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.defRepo.UpdateWithVersionCheck(ctx, &published, expectedVersion); err != nil {
		s.logger.Error("Failed to publish definition", "error", err, "definition_id", id)
		return nil, fmt.Errorf("publish definition: %w", err)
	}

	s.logger.Info("Definition published", "definition_id", id, "version", published.Version)

	if s.dispatcher != nil {
		evt := event.NewEvent(event.TypeDefinitionPublished, actor.TenantID, id, actor.UserID, map[string]interface{}{
			"name":    published.Name,
			"version": published.Version.Int64(),
		})
		s.dispatcher.DispatchAsync(ctx, evt)
	}

	return &published, nil
}

// Archive retires a published definition. In-flight workflows keep running;
// new submissions against the definition are no longer possible.
func (s *definitionServiceImpl) Archive(ctx context.Context, actor port.Actor, id uuid.UUID, expectedVersion workflow.Version) (*workflow.WorkflowDefinition, error) {
	if err := s.authorize(ctx, actor, PermDefinitionArchive); err != nil {
		return nil, err
	}

	def, err := s.loadDefinition(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if def.Version != expectedVersion {
		return nil, staleVersion("definition", id, def.Version, expectedVersion)
	}

	archived, err := def.Archived(s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.defRepo.UpdateWithVersionCheck(ctx, &archived, expectedVersion); err != nil {
		s.logger.Error("Failed to archive definition", "error", err, "definition_id", id)
		return nil, fmt.Errorf("archive definition: %w", err)
	}

	s.logger.Info("Definition archived", "definition_id", id)
	return &archived, nil
}

// Delete removes a draft definition. Published definitions are never deleted,
// only archived.
func (s *definitionServiceImpl) Delete(ctx context.Context, actor port.Actor, id uuid.UUID) error {
	if err := s.authorize(ctx, actor, PermDefinitionDelete); err != nil {
		return err
	}

	def, err := s.loadDefinition(ctx, actor.TenantID, id)
	if err != nil {
		return err
	}
	if !def.CanDelete() {
		return fmt.Errorf("%w: cannot delete definition in status %q", workflow.ErrInvalidTransition, def.Status)
	}

	if err := s.defRepo.Delete(ctx, actor.TenantID, id); err != nil {
		s.logger.Error("Failed to delete definition", "error", err, "definition_id", id)
		return fmt.Errorf("delete definition: %w", err)
	}

	s.logger.Info("Definition deleted", "definition_id", id)
	return nil
}

// Validate runs the graph validator without touching storage. An empty result
// means the graph and schema would publish cleanly.
func (s *definitionServiceImpl) Validate(ctx context.Context, actor port.Actor, graph workflow.Graph, schema workflow.FormSchema) ([]workflow.ValidationError, error) {
	if err := s.authorize(ctx, actor, PermDefinitionRead); err != nil {
		return nil, err
	}
	return workflow.Validate(graph, schema), nil
}

func (s *definitionServiceImpl) authorize(ctx context.Context, actor port.Actor, permission string) error {
	if s.authz.HasPermission(ctx, actor.TenantID, actor.UserID, permission) {
		return nil
	}
	return fmt.Errorf("%w: user %s lacks %s", workflow.ErrForbidden, actor.UserID, permission)
}

func (s *definitionServiceImpl) loadDefinition(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
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

// staleVersion reports an optimistic-lock mismatch detected before a write
func staleVersion(kind string, id uuid.UUID, current, expected workflow.Version) error {
	return fmt.Errorf("%w: %s %s is at version %d, caller expected %d", workflow.ErrConflict, kind, id, current, expected)
}

// normalizePage clamps paging inputs to sane bounds
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
