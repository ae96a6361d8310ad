package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowDefinition is a reusable, versioned workflow template: a step graph
// plus the form schema presented at submission. Only Draft definitions may be
// edited or deleted; Published and Archived definitions are immutable apart
// from their status.
type WorkflowDefinition struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Description string
	Status      DefinitionStatus
	Version     Version
	Graph       Graph
	Schema      FormSchema
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewDefinitionParams carries the inputs for creating a definition
type NewDefinitionParams struct {
	TenantID    uuid.UUID
	Name        string
	Description string
	Graph       Graph
	Schema      FormSchema
	CreatedBy   uuid.UUID
}

// NewWorkflowDefinition creates a Draft definition at the initial version.
// Drafts may be structurally invalid; the validator gates publishing, not
// creation.
func NewWorkflowDefinition(p NewDefinitionParams, now time.Time) WorkflowDefinition {
	return WorkflowDefinition{
		ID:          uuid.Must(uuid.NewV7()),
		TenantID:    p.TenantID,
		Name:        p.Name,
		Description: p.Description,
		Status:      DefinitionStatusDraft,
		Version:     InitialVersion(),
		Graph:       p.Graph,
		Schema:      p.Schema,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DefinitionUpdate carries the editable fields of a Draft definition
type DefinitionUpdate struct {
	Name        string
	Description string
	Graph       Graph
	Schema      FormSchema
}

// Updated returns the definition with the edit applied. Only Draft
// definitions may be edited; each edit bumps the version.
func (d WorkflowDefinition) Updated(u DefinitionUpdate, now time.Time) (WorkflowDefinition, error) {
	if d.Status != DefinitionStatusDraft {
		return d, fmt.Errorf("%w: cannot edit definition in status %q", ErrInvalidTransition, d.Status)
	}
	d.Name = u.Name
	d.Description = u.Description
	d.Graph = u.Graph
	d.Schema = u.Schema
	d.Version = d.Version.Next()
	d.UpdatedAt = now
	return d, nil
}

// Published returns the definition moved from Draft to Published. The
// transition is guarded by the graph validator; any violation fails the
// publish with the complete violation list.
func (d WorkflowDefinition) Published(now time.Time) (WorkflowDefinition, error) {
	if d.Status != DefinitionStatusDraft {
		return d, fmt.Errorf("%w: cannot publish definition in status %q", ErrInvalidTransition, d.Status)
	}
	if violations := Validate(d.Graph, d.Schema); len(violations) > 0 {
		return d, NewValidationFailed(violations)
	}
	d.Status = DefinitionStatusPublished
	d.Version = d.Version.Next()
	d.UpdatedAt = now
	return d, nil
}

// Archived returns the definition moved from Published to Archived
func (d WorkflowDefinition) Archived(now time.Time) (WorkflowDefinition, error) {
	if d.Status != DefinitionStatusPublished {
		return d, fmt.Errorf("%w: cannot archive definition in status %q", ErrInvalidTransition, d.Status)
	}
	d.Status = DefinitionStatusArchived
	d.Version = d.Version.Next()
	d.UpdatedAt = now
	return d, nil
}

// IsEditable returns true while the definition accepts edits
func (d WorkflowDefinition) IsEditable() bool {
	return d.Status == DefinitionStatusDraft
}

// CanDelete returns true while the definition may be deleted. A definition
// that has ever been published stays on record for the instances pinned to it.
func (d WorkflowDefinition) CanDelete() bool {
	return d.Status == DefinitionStatusDraft
}
