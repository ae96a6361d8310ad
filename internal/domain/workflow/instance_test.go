package workflow

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
)

func draftInstance() WorkflowInstance {
	return NewWorkflowInstance(NewInstanceParams{
		TenantID:          uuid.Must(uuid.NewV7()),
		DefinitionID:      uuid.Must(uuid.NewV7()),
		DefinitionVersion: 2,
		Title:             "New laptop",
		FormData:          json.RawMessage(`{"amount":1200}`),
		InitiatorID:       uuid.Must(uuid.NewV7()),
	}, testTime)
}

// checkInstanceInvariants asserts the structural invariants every reachable
// instance state must satisfy.
func checkInstanceInvariants(t *testing.T, i WorkflowInstance) {
	t.Helper()
	switch i.Status {
	case InstanceStatusApproved, InstanceStatusRejected:
		if i.CompletedAt == nil {
			t.Errorf("%v instance has no completed_at", i.Status)
		}
	case InstanceStatusInProgress:
		if i.CurrentStepID == nil {
			t.Errorf("in_progress instance has no current step")
		}
	case InstanceStatusDraft:
		if i.SubmittedAt != nil {
			t.Errorf("draft instance has submitted_at set")
		}
	}
	if i.Status != InstanceStatusInProgress && i.CurrentStepID != nil {
		t.Errorf("%v instance still points at step %v", i.Status, i.CurrentStepID)
	}
}

func TestNewWorkflowInstance(t *testing.T) {
	inst := draftInstance()

	if inst.Status != InstanceStatusDraft {
		t.Errorf("Status = %v, want %v", inst.Status, InstanceStatusDraft)
	}
	if inst.Version != InitialVersion() {
		t.Errorf("Version = %v, want %v", inst.Version, InitialVersion())
	}
	if inst.SubmittedAt != nil || inst.CompletedAt != nil || inst.CurrentStepID != nil {
		t.Error("draft instance must have no submission, completion or current step")
	}
	checkInstanceInvariants(t, inst)
}

func TestWorkflowInstance_SubmittedWith(t *testing.T) {
	inst := draftInstance()
	firstStep := uuid.Must(uuid.NewV7())
	submitAt := testTime.Add(time.Minute)

	submitted, err := inst.SubmittedWith(firstStep, submitAt)
	if err != nil {
		t.Fatalf("SubmittedWith() error = %v", err)
	}
	if submitted.Status != InstanceStatusInProgress {
		t.Errorf("Status = %v, want %v", submitted.Status, InstanceStatusInProgress)
	}
	if submitted.CurrentStepID == nil || *submitted.CurrentStepID != firstStep {
		t.Errorf("CurrentStepID = %v, want %v", submitted.CurrentStepID, firstStep)
	}
	if submitted.SubmittedAt == nil || !submitted.SubmittedAt.Equal(submitAt) {
		t.Errorf("SubmittedAt = %v, want %v", submitted.SubmittedAt, submitAt)
	}
	if submitted.Version != inst.Version.Next() {
		t.Errorf("Version = %v, want %v", submitted.Version, inst.Version.Next())
	}
	checkInstanceInvariants(t, submitted)

	// the draft value is untouched
	if inst.Status != InstanceStatusDraft || inst.SubmittedAt != nil {
		t.Error("source value mutated by SubmittedWith()")
	}
}

func TestWorkflowInstance_SubmittedWith_NotDraft(t *testing.T) {
	inst := draftInstance()
	submitted, _ := inst.SubmittedWith(uuid.Must(uuid.NewV7()), testTime)

	_, err := submitted.SubmittedWith(uuid.Must(uuid.NewV7()), testTime)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SubmittedWith() twice error = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflowInstance_AdvancedTo(t *testing.T) {
	inst := draftInstance()
	submitted, _ := inst.SubmittedWith(uuid.Must(uuid.NewV7()), testTime)
	next := uuid.Must(uuid.NewV7())

	advanced, err := submitted.AdvancedTo(next, testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("AdvancedTo() error = %v", err)
	}
	if advanced.CurrentStepID == nil || *advanced.CurrentStepID != next {
		t.Errorf("CurrentStepID = %v, want %v", advanced.CurrentStepID, next)
	}
	if advanced.Status != InstanceStatusInProgress {
		t.Errorf("Status = %v, want still %v", advanced.Status, InstanceStatusInProgress)
	}
	checkInstanceInvariants(t, advanced)

	if _, err := inst.AdvancedTo(next, testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("AdvancedTo() on draft error = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflowInstance_Completed(t *testing.T) {
	completeAt := testTime.Add(2 * time.Hour)

	tests := []struct {
		name     string
		complete func(WorkflowInstance) (WorkflowInstance, error)
		status   InstanceStatus
	}{
		{"approval", func(i WorkflowInstance) (WorkflowInstance, error) { return i.CompletedWithApproval(completeAt) }, InstanceStatusApproved},
		{"rejection", func(i WorkflowInstance) (WorkflowInstance, error) { return i.CompletedWithRejection(completeAt) }, InstanceStatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitted, _ := draftInstance().SubmittedWith(uuid.Must(uuid.NewV7()), testTime)

			done, err := tt.complete(submitted)
			if err != nil {
				t.Fatalf("complete error = %v", err)
			}
			if done.Status != tt.status {
				t.Errorf("Status = %v, want %v", done.Status, tt.status)
			}
			if done.CompletedAt == nil || !done.CompletedAt.Equal(completeAt) {
				t.Errorf("CompletedAt = %v, want %v", done.CompletedAt, completeAt)
			}
			if done.CurrentStepID != nil {
				t.Error("a completed instance must not point at a current step")
			}
			if !done.Status.IsTerminal() {
				t.Errorf("%v should be terminal", done.Status)
			}
			checkInstanceInvariants(t, done)

			if _, err := tt.complete(done); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("completing twice error = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestWorkflowInstance_ChangesRequested(t *testing.T) {
	submitted, _ := draftInstance().SubmittedWith(uuid.Must(uuid.NewV7()), testTime)

	sent, err := submitted.ChangesRequested(testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("ChangesRequested() error = %v", err)
	}
	if sent.Status != InstanceStatusChangesRequested {
		t.Errorf("Status = %v, want %v", sent.Status, InstanceStatusChangesRequested)
	}
	if sent.CompletedAt != nil {
		t.Error("changes_requested must not set completed_at")
	}
	if sent.CurrentStepID != nil {
		t.Error("changes_requested must clear the current step")
	}
	if sent.Status.IsTerminal() {
		t.Error("changes_requested is not terminal")
	}
	checkInstanceInvariants(t, sent)

	if _, err := draftInstance().ChangesRequested(testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ChangesRequested() on draft error = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflowInstance_Resubmitted(t *testing.T) {
	submitted, _ := draftInstance().SubmittedWith(uuid.Must(uuid.NewV7()), testTime)
	sent, _ := submitted.ChangesRequested(testTime.Add(time.Hour))

	freshStep := uuid.Must(uuid.NewV7())
	resubmitAt := testTime.Add(2 * time.Hour)
	revised := json.RawMessage(`{"amount":900}`)

	back, err := sent.Resubmitted(revised, freshStep, resubmitAt)
	if err != nil {
		t.Fatalf("Resubmitted() error = %v", err)
	}
	if back.Status != InstanceStatusInProgress {
		t.Errorf("Status = %v, want %v", back.Status, InstanceStatusInProgress)
	}
	if string(back.FormData) != string(revised) {
		t.Errorf("FormData = %s, want replaced payload", back.FormData)
	}
	if back.CurrentStepID == nil || *back.CurrentStepID != freshStep {
		t.Errorf("CurrentStepID = %v, want %v", back.CurrentStepID, freshStep)
	}
	if back.CompletedAt != nil {
		t.Error("resubmission must clear completed_at")
	}
	checkInstanceInvariants(t, back)
}

func TestWorkflowInstance_Resubmitted_KeepsFormDataWhenNil(t *testing.T) {
	submitted, _ := draftInstance().SubmittedWith(uuid.Must(uuid.NewV7()), testTime)
	sent, _ := submitted.ChangesRequested(testTime)

	back, err := sent.Resubmitted(nil, uuid.Must(uuid.NewV7()), testTime)
	if err != nil {
		t.Fatalf("Resubmitted() error = %v", err)
	}
	if string(back.FormData) != `{"amount":1200}` {
		t.Errorf("FormData = %s, want original payload kept", back.FormData)
	}
}

func TestWorkflowInstance_Resubmitted_RequiresChangesRequested(t *testing.T) {
	states := []struct {
		name string
		inst func() WorkflowInstance
	}{
		{"draft", draftInstance},
		{"in_progress", func() WorkflowInstance {
			i, _ := draftInstance().SubmittedWith(uuid.Must(uuid.NewV7()), testTime)
			return i
		}},
		{"approved", func() WorkflowInstance {
			i, _ := draftInstance().SubmittedWith(uuid.Must(uuid.NewV7()), testTime)
			i, _ = i.CompletedWithApproval(testTime)
			return i
		}},
	}

	for _, tt := range states {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.inst().Resubmitted(nil, uuid.Must(uuid.NewV7()), testTime)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Resubmitted() error = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

// TestWorkflowInstance_InvariantsUnderRandomWalks drives instances through
// random transition sequences and checks the structural invariants after
// every successful transition. Failed transitions must leave the value
// unchanged.
func TestWorkflowInstance_InvariantsUnderRandomWalks(t *testing.T) {
	rng := rand.New(rand.NewSource(421))

	transitions := []struct {
		name  string
		apply func(WorkflowInstance, time.Time) (WorkflowInstance, error)
	}{
		{"submit", func(i WorkflowInstance, now time.Time) (WorkflowInstance, error) {
			return i.SubmittedWith(uuid.Must(uuid.NewV7()), now)
		}},
		{"advance", func(i WorkflowInstance, now time.Time) (WorkflowInstance, error) {
			return i.AdvancedTo(uuid.Must(uuid.NewV7()), now)
		}},
		{"approve", func(i WorkflowInstance, now time.Time) (WorkflowInstance, error) {
			return i.CompletedWithApproval(now)
		}},
		{"reject", func(i WorkflowInstance, now time.Time) (WorkflowInstance, error) {
			return i.CompletedWithRejection(now)
		}},
		{"request changes", func(i WorkflowInstance, now time.Time) (WorkflowInstance, error) {
			return i.ChangesRequested(now)
		}},
		{"resubmit", func(i WorkflowInstance, now time.Time) (WorkflowInstance, error) {
			return i.Resubmitted(nil, uuid.Must(uuid.NewV7()), now)
		}},
	}

	const walks = 200
	const hops = 25

	for walk := 0; walk < walks; walk++ {
		inst := draftInstance()
		now := testTime
		for hop := 0; hop < hops; hop++ {
			now = now.Add(time.Minute)
			tr := transitions[rng.Intn(len(transitions))]

			next, err := tr.apply(inst, now)
			if err != nil {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("walk %d: %s returned unexpected error %v", walk, tr.name, err)
				}
				if next.Status != inst.Status || next.Version != inst.Version {
					t.Fatalf("walk %d: failed %s changed the instance", walk, tr.name)
				}
				continue
			}

			if next.Version != inst.Version.Next() {
				t.Fatalf("walk %d: %s moved version %d -> %d", walk, tr.name, inst.Version, next.Version)
			}
			checkInstanceInvariants(t, next)
			inst = next
		}
	}
}
