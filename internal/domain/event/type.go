package event

// Type identifies the type of domain event
type Type string

const (
	TypeDefinitionPublished Type = "definition.published"
	TypeWorkflowSubmitted   Type = "workflow.submitted"
	TypeWorkflowResubmitted Type = "workflow.resubmitted"
	TypeStepDecided         Type = "step.decided"
	TypeWorkflowCompleted   Type = "workflow.completed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeDefinitionPublished,
		TypeWorkflowSubmitted,
		TypeWorkflowResubmitted,
		TypeStepDecided,
		TypeWorkflowCompleted:
		return true
	default:
		return false
	}
}
