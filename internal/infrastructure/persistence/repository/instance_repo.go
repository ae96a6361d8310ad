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

const instanceColumns = `id, tenant_id, definition_id, definition_version, title, form_data, status, current_step_id, initiator_id, submitted_at, completed_at, version, created_at, updated_at`

// InstanceRepository implements port.InstanceRepository on sqlite
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new workflow instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new workflow instance row
func (r *InstanceRepository) Create(ctx context.Context, instance *workflow.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		instance.ID.String(),
		instance.TenantID.String(),
		instance.DefinitionID.String(),
		instance.DefinitionVersion.Int64(),
		instance.Title,
		nullJSON(instance.FormData),
		string(instance.Status),
		nullUUID(instance.CurrentStepID),
		instance.InitiatorID.String(),
		nullTime(instance.SubmittedAt),
		nullTime(instance.CompletedAt),
		instance.Version.Int64(),
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow instance",
			zap.String("id", instance.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow instance by id within a tenant
func (r *InstanceRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE tenant_id = ? AND id = ?`

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, tenantID.String(), id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow instance",
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	return instance, nil
}

// List retrieves a tenant's workflow instances, newest first
func (r *InstanceRepository) List(ctx context.Context, tenantID uuid.UUID, filter port.InstanceFilter, limit, offset int) ([]*workflow.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE tenant_id = ?`
	args := []interface{}{tenantID.String()}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.InitiatorID != nil {
		query += ` AND initiator_id = ?`
		args = append(args, filter.InitiatorID.String())
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflow instances",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow instances: %w", err)
	}
	defer rows.Close()

	var instances []*workflow.WorkflowInstance
	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

// UpdateWithVersionCheck writes the instance only while the stored row still
// carries the expected version. The definition pin and the initiator are
// immutable and deliberately absent from the SET list.
func (r *InstanceRepository) UpdateWithVersionCheck(ctx context.Context, instance *workflow.WorkflowInstance, expected workflow.Version) error {
	query := `
		UPDATE workflow_instances
		SET title = ?, form_data = ?, status = ?, current_step_id = ?, submitted_at = ?, completed_at = ?, version = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		instance.Title,
		nullJSON(instance.FormData),
		string(instance.Status),
		nullUUID(instance.CurrentStepID),
		nullTime(instance.SubmittedAt),
		nullTime(instance.CompletedAt),
		instance.Version.Int64(),
		instance.UpdatedAt,
		instance.ID.String(),
		instance.TenantID.String(),
		expected.Int64(),
	)
	if err != nil {
		r.logger.Error("Failed to update workflow instance",
			zap.String("id", instance.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update workflow instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: workflow %s was modified concurrently", workflow.ErrConflict, instance.ID)
	}
	return nil
}

// scanInstance reads one workflow instance row
func (r *InstanceRepository) scanInstance(row rowScanner) (*workflow.WorkflowInstance, error) {
	var (
		instance          workflow.WorkflowInstance
		id                string
		tenantID          string
		definitionID      string
		initiatorID       string
		definitionVersion int64
		version           int64
		status            string
		formData          sql.NullString
		currentStepID     sql.NullString
		submittedAt       sql.NullTime
		completedAt       sql.NullTime
	)

	err := row.Scan(
		&id,
		&tenantID,
		&definitionID,
		&definitionVersion,
		&instance.Title,
		&formData,
		&status,
		&currentStepID,
		&initiatorID,
		&submittedAt,
		&completedAt,
		&version,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if instance.ID, err = parseUUID("workflow id", id); err != nil {
		return nil, err
	}
	if instance.TenantID, err = parseUUID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if instance.DefinitionID, err = parseUUID("definition id", definitionID); err != nil {
		return nil, err
	}
	if instance.InitiatorID, err = parseUUID("initiator id", initiatorID); err != nil {
		return nil, err
	}
	if currentStepID.Valid {
		stepID, err := parseUUID("current step id", currentStepID.String)
		if err != nil {
			return nil, err
		}
		instance.CurrentStepID = &stepID
	}

	instance.DefinitionVersion = workflow.Version(definitionVersion)
	instance.Version = workflow.Version(version)
	instance.Status = workflow.InstanceStatus(status)
	if formData.Valid {
		instance.FormData = json.RawMessage(formData.String)
	}
	if submittedAt.Valid {
		instance.SubmittedAt = &submittedAt.Time
	}
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	return &instance, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
