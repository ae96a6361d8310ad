package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

const definitionColumns = `id, tenant_id, name, description, status, version, graph, form_schema, created_by, created_at, updated_at`

// DefinitionRepository implements port.DefinitionRepository on sqlite
type DefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new definition row
func (r *DefinitionRepository) Create(ctx context.Context, def *workflow.WorkflowDefinition) error {
	graphJSON, schemaJSON, err := marshalDefinitionDocs(def)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_definitions (` + definitionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		def.ID.String(),
		def.TenantID.String(),
		def.Name,
		def.Description,
		string(def.Status),
		def.Version.Int64(),
		graphJSON,
		schemaJSON,
		def.CreatedBy.String(),
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create definition",
			zap.String("id", def.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create definition: %w", err)
	}
	return nil
}

// GetByID retrieves a definition by id within a tenant
func (r *DefinitionRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE tenant_id = ? AND id = ?`

	def, err := r.scanDefinition(r.db.QueryRowContext(ctx, query, tenantID.String(), id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get definition",
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return def, nil
}

// List retrieves a tenant's definitions, newest first
func (r *DefinitionRepository) List(ctx context.Context, tenantID uuid.UUID, filter port.DefinitionFilter, limit, offset int) ([]*workflow.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE tenant_id = ?`
	args := []interface{}{tenantID.String()}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list definitions",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*workflow.WorkflowDefinition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// UpdateWithVersionCheck writes the definition only while the stored row
// still carries the expected version. Zero affected rows means a concurrent
// writer got there first and surfaces as ErrConflict.
func (r *DefinitionRepository) UpdateWithVersionCheck(ctx context.Context, def *workflow.WorkflowDefinition, expected workflow.Version) error {
	graphJSON, schemaJSON, err := marshalDefinitionDocs(def)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_definitions
		SET name = ?, description = ?, status = ?, version = ?, graph = ?, form_schema = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		def.Name,
		def.Description,
		string(def.Status),
		def.Version.Int64(),
		graphJSON,
		schemaJSON,
		def.UpdatedAt,
		def.ID.String(),
		def.TenantID.String(),
		expected.Int64(),
	)
	if err != nil {
		r.logger.Error("Failed to update definition",
			zap.String("id", def.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: definition %s was modified concurrently", workflow.ErrConflict, def.ID)
	}
	return nil
}

// Delete removes a definition row
func (r *DefinitionRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_definitions WHERE tenant_id = ? AND id = ?`,
		tenantID.String(), id.String())
	if err != nil {
		r.logger.Error("Failed to delete definition",
			zap.String("id", id.String()),
			zap.Error(err))
		return fmt.Errorf("failed to delete definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: definition %s", workflow.ErrNotFound, id)
	}
	return nil
}

// scanDefinition reads one definition row
func (r *DefinitionRepository) scanDefinition(row rowScanner) (*workflow.WorkflowDefinition, error) {
	var (
		def        workflow.WorkflowDefinition
		id         string
		tenantID   string
		createdBy  string
		status     string
		version    int64
		graphJSON  string
		schemaJSON string
	)

	err := row.Scan(
		&id,
		&tenantID,
		&def.Name,
		&def.Description,
		&status,
		&version,
		&graphJSON,
		&schemaJSON,
		&createdBy,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if def.ID, err = parseUUID("definition id", id); err != nil {
		return nil, err
	}
	if def.TenantID, err = parseUUID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if def.CreatedBy, err = parseUUID("creator id", createdBy); err != nil {
		return nil, err
	}
	def.Status = workflow.DefinitionStatus(status)
	def.Version = workflow.Version(version)

	if err := json.Unmarshal([]byte(graphJSON), &def.Graph); err != nil {
		return nil, fmt.Errorf("corrupt graph document for definition %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(schemaJSON), &def.Schema); err != nil {
		return nil, fmt.Errorf("corrupt form schema document for definition %s: %w", id, err)
	}
	return &def, nil
}

// marshalDefinitionDocs serializes the graph and form schema for their TEXT
// columns
func marshalDefinitionDocs(def *workflow.WorkflowDefinition) (string, string, error) {
	graphJSON, err := json.Marshal(def.Graph)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal graph: %w", err)
	}
	schemaJSON, err := json.Marshal(def.Schema)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal form schema: %w", err)
	}
	return string(graphJSON), string(schemaJSON), nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
