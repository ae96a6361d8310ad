package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/approvalflow/approvalflow/internal/application/port"
	"github.com/approvalflow/approvalflow/internal/domain/workflow"
)

const stepColumns = `id, tenant_id, instance_id, template_id, name, display_number, assignee_id, due_date, status, decision, comment, started_at, completed_at, version, created_at, updated_at`

// StepRepository implements port.StepRepository on sqlite
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new workflow step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new step row
func (r *StepRepository) Create(ctx context.Context, step *workflow.WorkflowStep) error {
	rec := flattenStepState(step.State)

	query := `
		INSERT INTO workflow_steps (` + stepColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		step.ID.String(),
		step.TenantID.String(),
		step.InstanceID.String(),
		step.TemplateID,
		step.Name,
		step.DisplayNumber,
		step.AssigneeID.String(),
		nullTime(step.DueDate),
		rec.status,
		rec.decision,
		rec.comment,
		rec.startedAt,
		rec.completedAt,
		step.Version.Int64(),
		step.CreatedAt,
		step.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow step",
			zap.String("id", step.ID.String()),
			zap.String("instance_id", step.InstanceID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow step: %w", err)
	}
	return nil
}

// GetByID retrieves a step by id within a tenant
func (r *StepRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*workflow.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE tenant_id = ? AND id = ?`

	step, err := r.scanStep(r.db.QueryRowContext(ctx, query, tenantID.String(), id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow step",
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow step: %w", err)
	}
	return step, nil
}

// GetByInstanceID retrieves all steps of a workflow ordered by their display
// number, so successive submissions come back in the order they happened
func (r *StepRepository) GetByInstanceID(ctx context.Context, tenantID, instanceID uuid.UUID) ([]*workflow.WorkflowStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM workflow_steps
		WHERE tenant_id = ? AND instance_id = ?
		ORDER BY display_number
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID.String(), instanceID.String())
	if err != nil {
		r.logger.Error("Failed to get workflow steps",
			zap.String("instance_id", instanceID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow steps: %w", err)
	}
	defer rows.Close()

	var steps []*workflow.WorkflowStep
	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// UpdateWithVersionCheck writes the step's state columns only while the
// stored row still carries the expected version. Identity columns never
// change after creation.
func (r *StepRepository) UpdateWithVersionCheck(ctx context.Context, step *workflow.WorkflowStep, expected workflow.Version) error {
	rec := flattenStepState(step.State)

	query := `
		UPDATE workflow_steps
		SET status = ?, decision = ?, comment = ?, started_at = ?, completed_at = ?, version = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		rec.status,
		rec.decision,
		rec.comment,
		rec.startedAt,
		rec.completedAt,
		step.Version.Int64(),
		step.UpdatedAt,
		step.ID.String(),
		step.TenantID.String(),
		expected.Int64(),
	)
	if err != nil {
		r.logger.Error("Failed to update workflow step",
			zap.String("id", step.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to update workflow step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: step %s was modified concurrently", workflow.ErrConflict, step.ID)
	}
	return nil
}

// stepRecord is the flat column form of a step's tagged state
type stepRecord struct {
	status      string
	decision    sql.NullString
	comment     string
	startedAt   sql.NullTime
	completedAt sql.NullTime
}

// flattenStepState projects a tagged state onto the flat columns. Columns a
// state does not carry stay NULL.
func flattenStepState(state workflow.StepState) stepRecord {
	rec := stepRecord{status: string(state.Status())}
	switch st := state.(type) {
	case workflow.Active:
		rec.startedAt = sql.NullTime{Time: st.StartedAt, Valid: true}
	case workflow.Completed:
		rec.decision = sql.NullString{String: string(st.Decision), Valid: true}
		rec.comment = st.Comment
		rec.startedAt = sql.NullTime{Time: st.StartedAt, Valid: true}
		rec.completedAt = sql.NullTime{Time: st.CompletedAt, Valid: true}
	}
	return rec
}

// scanStep reads one step row and rebuilds its tagged state
func (r *StepRepository) scanStep(row rowScanner) (*workflow.WorkflowStep, error) {
	var (
		step        workflow.WorkflowStep
		id          string
		tenantID    string
		instanceID  string
		assigneeID  string
		version     int64
		status      string
		decision    sql.NullString
		comment     string
		dueDate     sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&id,
		&tenantID,
		&instanceID,
		&step.TemplateID,
		&step.Name,
		&step.DisplayNumber,
		&assigneeID,
		&dueDate,
		&status,
		&decision,
		&comment,
		&startedAt,
		&completedAt,
		&version,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if step.ID, err = parseUUID("step id", id); err != nil {
		return nil, err
	}
	if step.TenantID, err = parseUUID("tenant id", tenantID); err != nil {
		return nil, err
	}
	if step.InstanceID, err = parseUUID("instance id", instanceID); err != nil {
		return nil, err
	}
	if step.AssigneeID, err = parseUUID("assignee id", assigneeID); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		step.DueDate = &dueDate.Time
	}
	step.Version = workflow.Version(version)

	var decisionVal *workflow.Decision
	if decision.Valid {
		d := workflow.Decision(decision.String)
		decisionVal = &d
	}
	var startedVal, completedVal *time.Time
	if startedAt.Valid {
		startedVal = &startedAt.Time
	}
	if completedAt.Valid {
		completedVal = &completedAt.Time
	}

	state, err := workflow.StepStateFromRecord(workflow.StepStatus(status), decisionVal, comment, startedVal, completedVal)
	if err != nil {
		return nil, fmt.Errorf("corrupt step record %s: %w", id, err)
	}
	step.State = state

	return &step, nil
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
