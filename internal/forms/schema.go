// Package forms defines the site's lead forms (contact and quote requests)
// and validates submissions against them.
//
// A Schema lists its fields with per-field rules and may add cross-field
// rules written as expr expressions over the cleaned field values, e.g.
//
//	preferred_contact != "phone" || phone != ""
package forms

// FieldType controls both validation and how a field is rendered.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeEmail    FieldType = "email"
	TypeTel      FieldType = "tel"
	TypeTextarea FieldType = "textarea"
	TypeSelect   FieldType = "select"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
)

// Field describes one form input.
type Field struct {
	Name        string
	Label       string
	Type        FieldType
	Required    bool
	MinLength   int
	MaxLength   int
	Pattern     string
	PatternHint string
	Options     []Option
	Placeholder string
	Help        string
}

// Option is a choice of a select field.
type Option struct {
	Value string
	Label string
}

// Rule is a cross-field check. Expr must evaluate to true for valid input.
type Rule struct {
	Expr    string
	Message string
	// Field names the input the message is attached to.
	Field string
}

// Schema is the definition of one form.
type Schema struct {
	ID             string
	Title          string
	Description    string
	SubmitLabel    string
	SuccessMessage string
	// Line is the insurance line for quote forms, empty otherwise.
	Line   string
	Fields []Field
	Rules  []Rule
}

// Field returns the field called name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Length caps for fields that set no MaxLength.
const (
	defaultMaxLength  = 200
	textareaMaxLength = 5000
)

func (f Field) maxLength() int {
	if f.MaxLength > 0 {
		return f.MaxLength
	}
	if f.Type == TypeTextarea {
		return textareaMaxLength
	}
	return defaultMaxLength
}

func (f Field) hasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}
