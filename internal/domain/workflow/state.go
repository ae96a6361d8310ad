// Package workflow contains the core approval-workflow domain: the template
// graph and its validator, the WorkflowDefinition, WorkflowInstance and
// WorkflowStep entities, and their state machines. Entities are plain values;
// every transition consumes the current value and returns a new one.
package workflow

// DefinitionStatus represents the lifecycle state of a workflow definition
type DefinitionStatus string

const (
	DefinitionStatusDraft     DefinitionStatus = "draft"
	DefinitionStatusPublished DefinitionStatus = "published"
	DefinitionStatusArchived  DefinitionStatus = "archived"
)

var validDefinitionStatuses = map[DefinitionStatus]bool{
	DefinitionStatusDraft:     true,
	DefinitionStatusPublished: true,
	DefinitionStatusArchived:  true,
}

// IsValid returns true if the status is a known definition status
func (s DefinitionStatus) IsValid() bool {
	return validDefinitionStatuses[s]
}

// String returns the string representation of the status
func (s DefinitionStatus) String() string {
	return string(s)
}

// InstanceStatus represents the lifecycle state of a workflow instance
type InstanceStatus string

const (
	InstanceStatusDraft            InstanceStatus = "draft"
	InstanceStatusInProgress       InstanceStatus = "in_progress"
	InstanceStatusApproved         InstanceStatus = "approved"
	InstanceStatusRejected         InstanceStatus = "rejected"
	InstanceStatusChangesRequested InstanceStatus = "changes_requested"
)

var validInstanceStatuses = map[InstanceStatus]bool{
	InstanceStatusDraft:            true,
	InstanceStatusInProgress:       true,
	InstanceStatusApproved:         true,
	InstanceStatusRejected:         true,
	InstanceStatusChangesRequested: true,
}

var terminalInstanceStatuses = map[InstanceStatus]bool{
	InstanceStatusApproved: true,
	InstanceStatusRejected: true,
}

// IsValid returns true if the status is a known instance status
func (s InstanceStatus) IsValid() bool {
	return validInstanceStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed from the status
func (s InstanceStatus) IsTerminal() bool {
	return terminalInstanceStatuses[s]
}

// String returns the string representation of the status
func (s InstanceStatus) String() string {
	return string(s)
}

// StepStatus is the discriminant of a workflow step's tagged state
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusSkipped   StepStatus = "skipped"
)

var validStepStatuses = map[StepStatus]bool{
	StepStatusPending:   true,
	StepStatusActive:    true,
	StepStatusCompleted: true,
	StepStatusSkipped:   true,
}

var terminalStepStatuses = map[StepStatus]bool{
	StepStatusCompleted: true,
	StepStatusSkipped:   true,
}

// IsValid returns true if the status is a known step status
func (s StepStatus) IsValid() bool {
	return validStepStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed from the status
func (s StepStatus) IsTerminal() bool {
	return terminalStepStatuses[s]
}

// String returns the string representation of the status
func (s StepStatus) String() string {
	return string(s)
}

// Decision records the outcome of a completed approval step
type Decision string

const (
	DecisionApproved         Decision = "approved"
	DecisionRejected         Decision = "rejected"
	DecisionChangesRequested Decision = "changes_requested"
)

var validDecisions = map[Decision]bool{
	DecisionApproved:         true,
	DecisionRejected:         true,
	DecisionChangesRequested: true,
}

// IsValid returns true if the decision is a known decision
func (d Decision) IsValid() bool {
	return validDecisions[d]
}

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}
