package workflow

import "fmt"

// StepKind classifies a template step
type StepKind string

const (
	StepKindStart    StepKind = "start"
	StepKindApproval StepKind = "approval"
	StepKindEnd      StepKind = "end"
)

var validStepKinds = map[StepKind]bool{
	StepKindStart:    true,
	StepKindApproval: true,
	StepKindEnd:      true,
}

// IsValid returns true if the kind is a known step kind
func (k StepKind) IsValid() bool {
	return validStepKinds[k]
}

// TransitionLabel names the decision edge a transition represents. Start steps
// carry a single unlabeled transition; approval steps carry approve and reject
// labeled transitions.
type TransitionLabel string

const (
	TransitionUnlabeled TransitionLabel = ""
	TransitionApprove   TransitionLabel = "approve"
	TransitionReject    TransitionLabel = "reject"
)

var validTransitionLabels = map[TransitionLabel]bool{
	TransitionUnlabeled: true,
	TransitionApprove:   true,
	TransitionReject:    true,
}

// IsValid returns true if the label is a known transition label
func (l TransitionLabel) IsValid() bool {
	return validTransitionLabels[l]
}

// StepSpec is one node of a workflow template graph. IDs are author-chosen
// strings, unique within a definition.
type StepSpec struct {
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
	Kind StepKind `json:"kind"`
}

// DisplayName returns the step's name, falling back to its id
func (s StepSpec) DisplayName() string {
	if s.Name == "" {
		return s.ID
	}
	return s.Name
}

// Transition is one directed edge of a template graph
type Transition struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Label TransitionLabel `json:"label,omitempty"`
}

// Graph is the directed step/transition structure of a workflow template.
// A publishable graph is a DAG with exactly one start step; see Validate.
type Graph struct {
	Steps       []StepSpec   `json:"steps"`
	Transitions []Transition `json:"transitions"`
}

// StartStep returns the graph's start step. The second return is false when
// the graph has no start step or more than one.
func (g Graph) StartStep() (StepSpec, bool) {
	var start StepSpec
	count := 0
	for _, s := range g.Steps {
		if s.Kind == StepKindStart {
			start = s
			count++
		}
	}
	return start, count == 1
}

// Step returns the step with the given id
func (g Graph) Step(id string) (StepSpec, bool) {
	for _, s := range g.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepSpec{}, false
}

// outgoing returns the transitions leaving the given step, in declaration order
func (g Graph) outgoing(id string) []Transition {
	var out []Transition
	for _, t := range g.Transitions {
		if t.From == id {
			out = append(out, t)
		}
	}
	return out
}

// follow returns the first transition leaving id with the given label
func (g Graph) follow(id string, label TransitionLabel) (Transition, bool) {
	for _, t := range g.Transitions {
		if t.From == id && t.Label == label {
			return t, true
		}
	}
	return Transition{}, false
}

// ApprovalSequence returns the graph's approval steps in execution order: the
// walk from the start step along its unlabeled transition, then along each
// approval step's approve-labeled transition, until an end step. Only valid on
// a graph that passed validation; a malformed walk is reported as an error.
func (g Graph) ApprovalSequence() ([]StepSpec, error) {
	start, ok := g.StartStep()
	if !ok {
		return nil, fmt.Errorf("graph has no unique start step")
	}

	var sequence []StepSpec
	current := start
	for hops := 0; hops <= len(g.Steps); hops++ {
		label := TransitionUnlabeled
		if current.Kind == StepKindApproval {
			label = TransitionApprove
		}
		next, ok := g.follow(current.ID, label)
		if !ok {
			return nil, fmt.Errorf("step %q has no %q transition", current.ID, label)
		}
		target, ok := g.Step(next.To)
		if !ok {
			return nil, fmt.Errorf("transition from %q references unknown step %q", current.ID, next.To)
		}
		if target.Kind == StepKindEnd {
			if len(sequence) == 0 {
				return nil, fmt.Errorf("graph has no approval steps on the start path")
			}
			return sequence, nil
		}
		if target.Kind == StepKindApproval {
			sequence = append(sequence, target)
		}
		current = target
	}
	return nil, fmt.Errorf("approval walk did not terminate, graph is not a DAG")
}

// NextAfterApproval resolves which approval step follows the given step on its
// approve-labeled transition. The final return is true when the transition
// reaches an end step, meaning the instance completes.
func (g Graph) NextAfterApproval(stepID string) (StepSpec, bool, error) {
	step, ok := g.Step(stepID)
	if !ok {
		return StepSpec{}, false, fmt.Errorf("unknown step %q", stepID)
	}
	if step.Kind != StepKindApproval {
		return StepSpec{}, false, fmt.Errorf("step %q is not an approval step", stepID)
	}
	next, ok := g.follow(stepID, TransitionApprove)
	if !ok {
		return StepSpec{}, false, fmt.Errorf("step %q has no approve transition", stepID)
	}
	target, ok := g.Step(next.To)
	if !ok {
		return StepSpec{}, false, fmt.Errorf("approve transition from %q references unknown step %q", stepID, next.To)
	}
	if target.Kind == StepKindEnd {
		return StepSpec{}, true, nil
	}
	if target.Kind != StepKindApproval {
		return StepSpec{}, false, fmt.Errorf("approve transition from %q reaches %q step %q", stepID, target.Kind, target.ID)
	}
	return target, false, nil
}
