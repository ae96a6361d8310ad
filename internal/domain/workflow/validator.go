package workflow

import "fmt"

// Stable machine-readable codes carried by validation errors. Codes never
// change once released; clients key UI behavior on them.
const (
	CodeMissingStartStep       = "MISSING_START_STEP"
	CodeMultipleStartSteps     = "MULTIPLE_START_STEPS"
	CodeMissingEndStep         = "MISSING_END_STEP"
	CodeMissingApprovalStep    = "MISSING_APPROVAL_STEP"
	CodeDuplicateStepID        = "DUPLICATE_STEP_ID"
	CodeInvalidStepKind        = "INVALID_STEP_KIND"
	CodeUnknownStepReference   = "UNKNOWN_STEP_REFERENCE"
	CodeInvalidTransitionLabel = "INVALID_TRANSITION_LABEL"
	CodeUnreachableStep        = "UNREACHABLE_STEP"
	CodeCycleDetected          = "CYCLE_DETECTED"
	CodeIncompleteApproval     = "INCOMPLETE_APPROVAL"
	CodeDuplicateFieldID       = "DUPLICATE_FIELD_ID"
	CodeInvalidFormField       = "INVALID_FORM_FIELD"
	CodeMissingAssignee        = "MISSING_ASSIGNEE"
)

// ValidationError is one structural defect found in a workflow template.
// StepID and FieldID locate the defect when it concerns a single step or field.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	StepID  string `json:"step_id,omitempty"`
	FieldID string `json:"field_id,omitempty"`
}

// Validate checks a template graph and form schema for structural
// well-formedness. It always runs every check and aggregates all failures, so
// the caller sees the complete defect list in one pass. The same input always
// yields the same list in the same order. An empty result means the template
// is publishable.
func Validate(g Graph, schema FormSchema) []ValidationError {
	var errs []ValidationError
	errs = append(errs, checkStartStep(g)...)
	errs = append(errs, checkEndStep(g)...)
	errs = append(errs, checkApprovalPresence(g)...)
	errs = append(errs, checkDuplicateStepIDs(g)...)
	errs = append(errs, checkStepKinds(g)...)
	errs = append(errs, checkTransitions(g)...)
	errs = append(errs, checkReachability(g)...)
	errs = append(errs, checkAcyclic(g)...)
	errs = append(errs, checkApprovalCoverage(g)...)
	errs = append(errs, checkDuplicateFieldIDs(schema)...)
	errs = append(errs, checkFieldConstraints(schema)...)
	return errs
}

func checkStartStep(g Graph) []ValidationError {
	count := 0
	for _, s := range g.Steps {
		if s.Kind == StepKindStart {
			count++
		}
	}
	switch {
	case count == 0:
		return []ValidationError{{
			Code:    CodeMissingStartStep,
			Message: "workflow must have exactly one start step",
		}}
	case count > 1:
		return []ValidationError{{
			Code:    CodeMultipleStartSteps,
			Message: fmt.Sprintf("workflow has %d start steps, exactly one is required", count),
		}}
	}
	return nil
}

func checkEndStep(g Graph) []ValidationError {
	for _, s := range g.Steps {
		if s.Kind == StepKindEnd {
			return nil
		}
	}
	return []ValidationError{{
		Code:    CodeMissingEndStep,
		Message: "workflow must have at least one end step",
	}}
}

func checkApprovalPresence(g Graph) []ValidationError {
	for _, s := range g.Steps {
		if s.Kind == StepKindApproval {
			return nil
		}
	}
	return []ValidationError{{
		Code:    CodeMissingApprovalStep,
		Message: "workflow must have at least one approval step",
	}}
}

func checkDuplicateStepIDs(g Graph) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	reported := make(map[string]bool)
	for _, s := range g.Steps {
		if seen[s.ID] && !reported[s.ID] {
			errs = append(errs, ValidationError{
				Code:    CodeDuplicateStepID,
				Message: fmt.Sprintf("step id %q is used more than once", s.ID),
				StepID:  s.ID,
			})
			reported[s.ID] = true
		}
		seen[s.ID] = true
	}
	return errs
}

func checkStepKinds(g Graph) []ValidationError {
	var errs []ValidationError
	for _, s := range g.Steps {
		if !s.Kind.IsValid() {
			errs = append(errs, ValidationError{
				Code:    CodeInvalidStepKind,
				Message: fmt.Sprintf("step %q has unknown kind %q", s.ID, s.Kind),
				StepID:  s.ID,
			})
		}
	}
	return errs
}

func checkTransitions(g Graph) []ValidationError {
	var errs []ValidationError
	ids := make(map[string]bool, len(g.Steps))
	for _, s := range g.Steps {
		ids[s.ID] = true
	}
	for _, t := range g.Transitions {
		if !ids[t.From] {
			errs = append(errs, ValidationError{
				Code:    CodeUnknownStepReference,
				Message: fmt.Sprintf("transition references unknown step %q", t.From),
				StepID:  t.From,
			})
		}
		if !ids[t.To] {
			errs = append(errs, ValidationError{
				Code:    CodeUnknownStepReference,
				Message: fmt.Sprintf("transition references unknown step %q", t.To),
				StepID:  t.To,
			})
		}
		if !t.Label.IsValid() {
			errs = append(errs, ValidationError{
				Code:    CodeInvalidTransitionLabel,
				Message: fmt.Sprintf("transition from %q to %q has unknown label %q", t.From, t.To, t.Label),
				StepID:  t.From,
			})
		}
	}
	return errs
}

// checkReachability walks the graph from the start step and flags every step
// the walk never visits. It is skipped when the graph has no unique start,
// which checkStartStep already reports.
func checkReachability(g Graph) []ValidationError {
	start, ok := g.StartStep()
	if !ok {
		return nil
	}
	visited := make(map[string]bool)
	stack := []string{start.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, t := range g.outgoing(id) {
			if _, known := g.Step(t.To); known && !visited[t.To] {
				stack = append(stack, t.To)
			}
		}
	}
	var errs []ValidationError
	for _, s := range g.Steps {
		if !visited[s.ID] {
			errs = append(errs, ValidationError{
				Code:    CodeUnreachableStep,
				Message: fmt.Sprintf("step %q is not reachable from the start step", s.ID),
				StepID:  s.ID,
			})
		}
	}
	return errs
}

// Three-color depth-first search. White nodes are unvisited, gray nodes are on
// the current path, black nodes are fully explored; meeting a gray node again
// closes a cycle.
const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

// checkAcyclic requires the graph reachable from start to be a DAG. It is
// skipped when the graph has no unique start.
func checkAcyclic(g Graph) []ValidationError {
	start, ok := g.StartStep()
	if !ok {
		return nil
	}
	colors := make(map[string]int)
	var errs []ValidationError

	var visit func(id string)
	visit = func(id string) {
		colors[id] = colorGray
		for _, t := range g.outgoing(id) {
			if _, known := g.Step(t.To); !known {
				continue
			}
			switch colors[t.To] {
			case colorGray:
				errs = append(errs, ValidationError{
					Code:    CodeCycleDetected,
					Message: fmt.Sprintf("cycle detected through step %q", t.To),
					StepID:  t.To,
				})
			case colorWhite:
				visit(t.To)
			}
		}
		colors[id] = colorBlack
	}
	visit(start.ID)
	return errs
}

func checkApprovalCoverage(g Graph) []ValidationError {
	var errs []ValidationError
	for _, s := range g.Steps {
		if s.Kind != StepKindApproval {
			continue
		}
		hasApprove := false
		hasReject := false
		for _, t := range g.outgoing(s.ID) {
			switch t.Label {
			case TransitionApprove:
				hasApprove = true
			case TransitionReject:
				hasReject = true
			}
		}
		var missing string
		switch {
		case !hasApprove && !hasReject:
			missing = "approve and reject transitions"
		case !hasApprove:
			missing = "an approve transition"
		case !hasReject:
			missing = "a reject transition"
		default:
			continue
		}
		errs = append(errs, ValidationError{
			Code:    CodeIncompleteApproval,
			Message: fmt.Sprintf("approval step %q is missing %s", s.ID, missing),
			StepID:  s.ID,
		})
	}
	return errs
}

func checkDuplicateFieldIDs(schema FormSchema) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	reported := make(map[string]bool)
	for _, f := range schema.Fields {
		if seen[f.ID] && !reported[f.ID] {
			errs = append(errs, ValidationError{
				Code:    CodeDuplicateFieldID,
				Message: fmt.Sprintf("form field id %q is used more than once", f.ID),
				FieldID: f.ID,
			})
			reported[f.ID] = true
		}
		seen[f.ID] = true
	}
	return errs
}

func checkFieldConstraints(schema FormSchema) []ValidationError {
	var errs []ValidationError
	invalid := func(f FieldSpec, msg string) {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidFormField,
			Message: msg,
			FieldID: f.ID,
		})
	}
	for i, f := range schema.Fields {
		if f.ID == "" {
			invalid(f, fmt.Sprintf("form field at position %d has no id", i))
		}
		if f.Label == "" {
			invalid(f, fmt.Sprintf("form field %q has no label", f.ID))
		}
		if !f.Type.IsValid() {
			invalid(f, fmt.Sprintf("form field %q has unknown type %q", f.ID, f.Type))
			continue
		}
		if f.Type == FieldTypeSelect && len(f.Options) == 0 {
			invalid(f, fmt.Sprintf("select field %q must have at least one option", f.ID))
		}
		if f.MinLength != nil && *f.MinLength < 0 {
			invalid(f, fmt.Sprintf("form field %q has negative min_length", f.ID))
		}
		if f.MaxLength != nil && *f.MaxLength < 0 {
			invalid(f, fmt.Sprintf("form field %q has negative max_length", f.ID))
		}
		if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
			invalid(f, fmt.Sprintf("form field %q min_length exceeds max_length", f.ID))
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			invalid(f, fmt.Sprintf("form field %q min exceeds max", f.ID))
		}
	}
	return errs
}
