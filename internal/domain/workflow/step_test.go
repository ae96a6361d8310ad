package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func pendingStep() WorkflowStep {
	return NewWorkflowStep(NewStepParams{
		TenantID:      uuid.Must(uuid.NewV7()),
		InstanceID:    uuid.Must(uuid.NewV7()),
		TemplateID:    "manager",
		Name:          "Manager approval",
		DisplayNumber: 1,
		AssigneeID:    uuid.Must(uuid.NewV7()),
	}, testTime)
}

func TestNewWorkflowStep(t *testing.T) {
	step := pendingStep()

	if step.Status() != StepStatusPending {
		t.Errorf("Status() = %v, want %v", step.Status(), StepStatusPending)
	}
	if step.Version != InitialVersion() {
		t.Errorf("Version = %v, want %v", step.Version, InitialVersion())
	}
	if _, ok := step.State.(Pending); !ok {
		t.Errorf("State = %T, want Pending", step.State)
	}
}

func TestWorkflowStep_Activated(t *testing.T) {
	step := pendingStep()
	startAt := testTime.Add(time.Minute)

	active := step.Activated(startAt)
	state, ok := active.State.(Active)
	if !ok {
		t.Fatalf("State = %T, want Active", active.State)
	}
	if !state.StartedAt.Equal(startAt) {
		t.Errorf("StartedAt = %v, want %v", state.StartedAt, startAt)
	}
	if active.Version != step.Version.Next() {
		t.Errorf("Version = %v, want %v", active.Version, step.Version.Next())
	}

	// the original value is untouched
	if step.Status() != StepStatusPending {
		t.Errorf("source value mutated to %v", step.Status())
	}
}

func TestWorkflowStep_Activated_Unconditional(t *testing.T) {
	// activation is the orchestrator's call; the step accepts it from any state
	step := pendingStep()
	skipped, err := step.Skipped(testTime)
	if err != nil {
		t.Fatalf("Skipped() error = %v", err)
	}

	reactivated := skipped.Activated(testTime.Add(time.Hour))
	if reactivated.Status() != StepStatusActive {
		t.Errorf("Status() = %v, want %v", reactivated.Status(), StepStatusActive)
	}
}

func TestWorkflowStep_Decisions(t *testing.T) {
	startAt := testTime.Add(time.Minute)
	decideAt := testTime.Add(2 * time.Minute)

	tests := []struct {
		name     string
		decide   func(WorkflowStep) (WorkflowStep, error)
		decision Decision
	}{
		{"approve", func(s WorkflowStep) (WorkflowStep, error) { return s.Approved("ok", decideAt) }, DecisionApproved},
		{"reject", func(s WorkflowStep) (WorkflowStep, error) { return s.Rejected("no budget", decideAt) }, DecisionRejected},
		{"request changes", func(s WorkflowStep) (WorkflowStep, error) { return s.ChangesRequested("add quotes", decideAt) }, DecisionChangesRequested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active := pendingStep().Activated(startAt)

			done, err := tt.decide(active)
			if err != nil {
				t.Fatalf("decision error = %v", err)
			}
			state, ok := done.State.(Completed)
			if !ok {
				t.Fatalf("State = %T, want Completed", done.State)
			}
			if state.Decision != tt.decision {
				t.Errorf("Decision = %v, want %v", state.Decision, tt.decision)
			}
			if !state.StartedAt.Equal(startAt) {
				t.Errorf("StartedAt = %v, want carried-over %v", state.StartedAt, startAt)
			}
			if !state.CompletedAt.Equal(decideAt) {
				t.Errorf("CompletedAt = %v, want %v", state.CompletedAt, decideAt)
			}
			if done.Version != active.Version.Next() {
				t.Errorf("Version = %v, want %v", done.Version, active.Version.Next())
			}
		})
	}
}

func TestWorkflowStep_DecisionsRequireActive(t *testing.T) {
	pending := pendingStep()
	skipped, _ := pending.Skipped(testTime)
	completed, _ := pending.Activated(testTime).Approved("", testTime)

	sources := []struct {
		name string
		step WorkflowStep
	}{
		{"pending", pending},
		{"skipped", skipped},
		{"completed", completed},
	}
	decisions := []struct {
		name   string
		decide func(WorkflowStep) (WorkflowStep, error)
	}{
		{"approve", func(s WorkflowStep) (WorkflowStep, error) { return s.Approved("", testTime) }},
		{"reject", func(s WorkflowStep) (WorkflowStep, error) { return s.Rejected("", testTime) }},
		{"request changes", func(s WorkflowStep) (WorkflowStep, error) { return s.ChangesRequested("", testTime) }},
	}

	for _, src := range sources {
		for _, d := range decisions {
			t.Run(src.name+"/"+d.name, func(t *testing.T) {
				got, err := d.decide(src.step)
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("error = %v, want ErrInvalidTransition", err)
				}
				if got.Status() != src.step.Status() || got.Version != src.step.Version {
					t.Errorf("failed decision changed the step: %v v%d -> %v v%d",
						src.step.Status(), src.step.Version, got.Status(), got.Version)
				}
			})
		}
	}
}

func TestWorkflowStep_Skipped(t *testing.T) {
	step := pendingStep()

	skipped, err := step.Skipped(testTime)
	if err != nil {
		t.Fatalf("Skipped() error = %v", err)
	}
	if skipped.Status() != StepStatusSkipped {
		t.Errorf("Status() = %v, want %v", skipped.Status(), StepStatusSkipped)
	}
	if skipped.Version != step.Version.Next() {
		t.Errorf("Version = %v, want %v", skipped.Version, step.Version.Next())
	}
}

func TestWorkflowStep_Skipped_RequiresPending(t *testing.T) {
	active := pendingStep().Activated(testTime)
	if _, err := active.Skipped(testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Skipped() from active error = %v, want ErrInvalidTransition", err)
	}

	completed, _ := active.Approved("", testTime)
	if _, err := completed.Skipped(testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Skipped() from completed error = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflowStep_IsOverdue(t *testing.T) {
	due := testTime.Add(24 * time.Hour)
	afterDue := due.Add(time.Hour)

	step := pendingStep()
	step.DueDate = &due

	tests := []struct {
		name     string
		step     WorkflowStep
		now      time.Time
		expected bool
	}{
		{"before due date", step, testTime, false},
		{"past due date", step, afterDue, true},
		{"no due date", pendingStep(), afterDue, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.IsOverdue(tt.now); got != tt.expected {
				t.Errorf("IsOverdue() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWorkflowStep_IsOverdue_TerminalStates(t *testing.T) {
	due := testTime.Add(time.Hour)
	afterDue := due.Add(time.Hour)

	step := pendingStep()
	step.DueDate = &due

	completed, _ := step.Activated(testTime).Approved("", testTime)
	if completed.IsOverdue(afterDue) {
		t.Error("a completed step is never overdue")
	}

	skipped, _ := step.Skipped(testTime)
	if skipped.IsOverdue(afterDue) {
		t.Error("a skipped step is never overdue")
	}
}

func TestStepStateFromRecord(t *testing.T) {
	started := testTime
	completedAt := testTime.Add(time.Hour)
	approved := DecisionApproved

	tests := []struct {
		name        string
		status      StepStatus
		decision    *Decision
		startedAt   *time.Time
		completedAt *time.Time
		wantErr     bool
	}{
		{"pending", StepStatusPending, nil, nil, nil, false},
		{"active", StepStatusActive, nil, &started, nil, false},
		{"active without started_at", StepStatusActive, nil, nil, nil, true},
		{"completed", StepStatusCompleted, &approved, &started, &completedAt, false},
		{"completed without decision", StepStatusCompleted, nil, &started, &completedAt, true},
		{"completed without timestamps", StepStatusCompleted, &approved, nil, nil, true},
		{"skipped", StepStatusSkipped, nil, nil, nil, false},
		{"unknown status", StepStatus("archived"), nil, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := StepStateFromRecord(tt.status, tt.decision, "", tt.startedAt, tt.completedAt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StepStateFromRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && state.Status() != tt.status {
				t.Errorf("Status() = %v, want %v", state.Status(), tt.status)
			}
		})
	}
}
