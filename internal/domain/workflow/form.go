package workflow

// FieldType classifies a form field
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeSelect FieldType = "select"
	FieldTypeDate   FieldType = "date"
	FieldTypeFile   FieldType = "file"
)

var validFieldTypes = map[FieldType]bool{
	FieldTypeText:   true,
	FieldTypeNumber: true,
	FieldTypeSelect: true,
	FieldTypeDate:   true,
	FieldTypeFile:   true,
}

// IsValid returns true if the type is a known field type
func (t FieldType) IsValid() bool {
	return validFieldTypes[t]
}

// FieldSpec describes one form field of a workflow template. Constraint
// fields apply per type: MinLength/MaxLength to text, Min/Max to number,
// Options to select.
type FieldSpec struct {
	ID        string    `json:"id"`
	Type      FieldType `json:"type"`
	Label     string    `json:"label"`
	Required  bool      `json:"required,omitempty"`
	MinLength *int      `json:"min_length,omitempty"`
	MaxLength *int      `json:"max_length,omitempty"`
	Min       *float64  `json:"min,omitempty"`
	Max       *float64  `json:"max,omitempty"`
	Options   []string  `json:"options,omitempty"`
}

// FormSchema is the ordered field list presented to a workflow's initiator.
// Submitted form data itself is opaque to the engine.
type FormSchema struct {
	Fields []FieldSpec `json:"fields"`
}
