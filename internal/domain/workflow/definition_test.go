package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func draftDefinition() WorkflowDefinition {
	return NewWorkflowDefinition(NewDefinitionParams{
		TenantID:    uuid.Must(uuid.NewV7()),
		Name:        "Purchase request",
		Description: "Two stage purchase approval",
		Graph:       twoApprovalGraph(),
		Schema:      basicSchema(),
		CreatedBy:   uuid.Must(uuid.NewV7()),
	}, testTime)
}

func TestNewWorkflowDefinition(t *testing.T) {
	def := draftDefinition()

	if def.Status != DefinitionStatusDraft {
		t.Errorf("Status = %v, want %v", def.Status, DefinitionStatusDraft)
	}
	if def.Version != InitialVersion() {
		t.Errorf("Version = %v, want %v", def.Version, InitialVersion())
	}
	if def.ID == uuid.Nil {
		t.Error("ID should be assigned")
	}
	if !def.IsEditable() || !def.CanDelete() {
		t.Error("a draft definition must be editable and deletable")
	}
}

func TestWorkflowDefinition_Updated(t *testing.T) {
	def := draftDefinition()
	later := testTime.Add(time.Hour)

	updated, err := def.Updated(DefinitionUpdate{
		Name:        "Purchase request v2",
		Description: def.Description,
		Graph:       def.Graph,
		Schema:      def.Schema,
	}, later)
	if err != nil {
		t.Fatalf("Updated() error = %v", err)
	}
	if updated.Name != "Purchase request v2" {
		t.Errorf("Name = %q, want edited name", updated.Name)
	}
	if updated.Version != def.Version.Next() {
		t.Errorf("Version = %v, want %v", updated.Version, def.Version.Next())
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, later)
	}
}

func TestWorkflowDefinition_Updated_NotDraft(t *testing.T) {
	def := draftDefinition()
	published, err := def.Published(testTime)
	if err != nil {
		t.Fatalf("Published() error = %v", err)
	}

	_, err = published.Updated(DefinitionUpdate{Name: "x"}, testTime)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Updated() on published definition error = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflowDefinition_Published(t *testing.T) {
	def := draftDefinition()

	published, err := def.Published(testTime)
	if err != nil {
		t.Fatalf("Published() error = %v", err)
	}
	if published.Status != DefinitionStatusPublished {
		t.Errorf("Status = %v, want %v", published.Status, DefinitionStatusPublished)
	}
	if published.Version != def.Version.Next() {
		t.Errorf("Version = %v, want %v", published.Version, def.Version.Next())
	}
	if published.IsEditable() || published.CanDelete() {
		t.Error("a published definition must not be editable or deletable")
	}
}

func TestWorkflowDefinition_Published_InvalidGraph(t *testing.T) {
	def := draftDefinition()
	// break the graph: drop the reject edge of the second approval
	var kept []Transition
	for _, tr := range def.Graph.Transitions {
		if tr.From == "second" && tr.Label == TransitionReject {
			continue
		}
		kept = append(kept, tr)
	}
	def.Graph.Transitions = kept

	_, err := def.Published(testTime)
	var vErr *ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatalf("Published() error = %v, want ValidationFailedError", err)
	}
	if len(vErr.Violations) != 1 || vErr.Violations[0].Code != CodeIncompleteApproval {
		t.Errorf("Violations = %+v, want single %s", vErr.Violations, CodeIncompleteApproval)
	}
}

func TestWorkflowDefinition_Published_NotDraft(t *testing.T) {
	def := draftDefinition()
	published, _ := def.Published(testTime)

	_, err := published.Published(testTime)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Published() twice error = %v, want ErrInvalidTransition", err)
	}
}

func TestWorkflowDefinition_Archived(t *testing.T) {
	def := draftDefinition()
	published, _ := def.Published(testTime)

	archived, err := published.Archived(testTime)
	if err != nil {
		t.Fatalf("Archived() error = %v", err)
	}
	if archived.Status != DefinitionStatusArchived {
		t.Errorf("Status = %v, want %v", archived.Status, DefinitionStatusArchived)
	}

	if _, err := def.Archived(testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Archived() from draft error = %v, want ErrInvalidTransition", err)
	}
	if _, err := archived.Archived(testTime); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Archived() twice error = %v, want ErrInvalidTransition", err)
	}
}

func TestValidationFailedError_Message(t *testing.T) {
	err := NewValidationFailed([]ValidationError{
		{Code: CodeMissingEndStep, Message: "workflow must have at least one end step"},
		{Code: CodeCycleDetected, Message: "cycle detected through step \"first\""},
	})

	var vErr *ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatal("NewValidationFailed() should yield a *ValidationFailedError")
	}
	want := "validation failed: workflow must have at least one end step; cycle detected through step \"first\""
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
