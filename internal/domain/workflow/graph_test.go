package workflow

import "testing"

func TestGraph_StartStep(t *testing.T) {
	g := singleApprovalGraph()
	start, ok := g.StartStep()
	if !ok || start.ID != "start" {
		t.Errorf("StartStep() = %v, %v, want step %q", start.ID, ok, "start")
	}

	g.Steps = append(g.Steps, StepSpec{ID: "start2", Kind: StepKindStart})
	if _, ok := g.StartStep(); ok {
		t.Error("StartStep() should not resolve with two start steps")
	}

	if _, ok := (Graph{}).StartStep(); ok {
		t.Error("StartStep() should not resolve on an empty graph")
	}
}

func TestStepSpec_DisplayName(t *testing.T) {
	named := StepSpec{ID: "mgr", Name: "Manager approval", Kind: StepKindApproval}
	if got := named.DisplayName(); got != "Manager approval" {
		t.Errorf("DisplayName() = %q, want %q", got, "Manager approval")
	}

	unnamed := StepSpec{ID: "mgr", Kind: StepKindApproval}
	if got := unnamed.DisplayName(); got != "mgr" {
		t.Errorf("DisplayName() = %q, want id fallback %q", got, "mgr")
	}
}

func TestGraph_ApprovalSequence(t *testing.T) {
	seq, err := twoApprovalGraph().ApprovalSequence()
	if err != nil {
		t.Fatalf("ApprovalSequence() error = %v", err)
	}
	if len(seq) != 2 || seq[0].ID != "first" || seq[1].ID != "second" {
		ids := make([]string, len(seq))
		for i, s := range seq {
			ids[i] = s.ID
		}
		t.Errorf("ApprovalSequence() = %v, want [first second]", ids)
	}
}

func TestGraph_ApprovalSequence_SingleStep(t *testing.T) {
	seq, err := singleApprovalGraph().ApprovalSequence()
	if err != nil {
		t.Fatalf("ApprovalSequence() error = %v", err)
	}
	if len(seq) != 1 || seq[0].ID != "manager" {
		t.Errorf("ApprovalSequence() = %v, want single step manager", seq)
	}
}

func TestGraph_ApprovalSequence_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		graph Graph
	}{
		{"no start", Graph{Steps: []StepSpec{{ID: "end", Kind: StepKindEnd}}}},
		{
			"dead end walk",
			Graph{
				Steps: []StepSpec{
					{ID: "start", Kind: StepKindStart},
					{ID: "manager", Kind: StepKindApproval},
					{ID: "end", Kind: StepKindEnd},
				},
				Transitions: []Transition{
					{From: "start", To: "manager"},
					// manager has no approve transition
					{From: "manager", To: "end", Label: TransitionReject},
				},
			},
		},
		{
			"no approval on path",
			Graph{
				Steps: []StepSpec{
					{ID: "start", Kind: StepKindStart},
					{ID: "end", Kind: StepKindEnd},
				},
				Transitions: []Transition{{From: "start", To: "end"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.graph.ApprovalSequence(); err == nil {
				t.Error("ApprovalSequence() should fail on a malformed graph")
			}
		})
	}
}

func TestGraph_NextAfterApproval(t *testing.T) {
	g := twoApprovalGraph()

	next, final, err := g.NextAfterApproval("first")
	if err != nil {
		t.Fatalf("NextAfterApproval(first) error = %v", err)
	}
	if final || next.ID != "second" {
		t.Errorf("NextAfterApproval(first) = %v, final %v, want second, false", next.ID, final)
	}

	_, final, err = g.NextAfterApproval("second")
	if err != nil {
		t.Fatalf("NextAfterApproval(second) error = %v", err)
	}
	if !final {
		t.Error("NextAfterApproval(second) should reach the end step")
	}
}

func TestGraph_NextAfterApproval_Errors(t *testing.T) {
	g := twoApprovalGraph()

	if _, _, err := g.NextAfterApproval("ghost"); err == nil {
		t.Error("NextAfterApproval() should fail for an unknown step")
	}
	if _, _, err := g.NextAfterApproval("start"); err == nil {
		t.Error("NextAfterApproval() should fail for a non-approval step")
	}
}
