package forms

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/conneroisu/brokerage/internal/errors"
)

const dateLayout = "2006-01-02"

// Submission is a validated, cleaned form submission.
type Submission struct {
	FormID string
	Fields map[string]string
}

type compiledRule struct {
	Rule
	program *exprvm.Program
}

type compiledSchema struct {
	*Schema
	patterns map[string]*regexp.Regexp
	rules    []compiledRule
}

// Registry holds the compiled form schemas.
type Registry struct {
	schemas map[string]*compiledSchema
	order   []string
	now     func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock used by date rules.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithSchemas replaces the built-in schemas.
func WithSchemas(schemas ...*Schema) RegistryOption {
	return func(r *Registry) {
		r.order = nil
		r.schemas = make(map[string]*compiledSchema)
		for _, s := range schemas {
			r.schemas[s.ID] = &compiledSchema{Schema: s}
			r.order = append(r.order, s.ID)
		}
	}
}

// NewRegistry compiles the built-in schemas, or those given with
// WithSchemas.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		schemas: make(map[string]*compiledSchema),
		now:     time.Now,
	}
	for _, s := range builtinSchemas() {
		r.schemas[s.ID] = &compiledSchema{Schema: s}
		r.order = append(r.order, s.ID)
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, id := range r.order {
		if err := r.compile(r.schemas[id]); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) compile(cs *compiledSchema) error {
	cs.patterns = make(map[string]*regexp.Regexp)
	for _, f := range cs.Fields {
		if f.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("form %s: field %s: bad pattern: %v", cs.ID, f.Name, err))
		}
		cs.patterns[f.Name] = re
	}

	env := make(map[string]any, len(cs.Fields)+1)
	for _, f := range cs.Fields {
		env[f.Name] = ""
	}
	env["current_year"] = 0

	options := []exprlang.Option{
		exprlang.Env(env),
		exprlang.AsBool(),
		exprlang.Function("num", numFunc, new(func(string) float64)),
		exprlang.Function("age", r.ageFunc, new(func(string) int)),
	}

	cs.rules = cs.rules[:0]
	for _, rule := range cs.Rules {
		program, err := exprlang.Compile(rule.Expr, options...)
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("form %s: rule %q: %v", cs.ID, rule.Expr, err))
		}
		cs.rules = append(cs.rules, compiledRule{Rule: rule, program: program})
	}

	return nil
}

// Lookup returns the schema with id.
func (r *Registry) Lookup(id string) (*Schema, bool) {
	cs, ok := r.schemas[id]
	if !ok {
		return nil, false
	}
	return cs.Schema, true
}

// IDs returns the form ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Validate cleans input and checks it against the schema for formID. Fields
// the schema does not define are dropped. On failure the error is a
// validation SiteError whose message is the first problem found.
func (r *Registry) Validate(formID string, input map[string]any) (*Submission, error) {
	cs, ok := r.schemas[formID]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrCodeUnknownForm, "unknown form: "+formID)
	}

	fields := cs.clean(input)
	vec := &errors.ValidationErrorCollection{}

	for _, f := range cs.Fields {
		if msg := cs.checkField(f, fields[f.Name]); msg != "" {
			vec.AddField(f.Name, fields[f.Name], msg)
		}
	}

	if !vec.HasErrors() {
		env := make(map[string]any, len(fields)+1)
		for k, v := range fields {
			env[k] = v
		}
		env["current_year"] = r.now().Year()

		for _, rule := range cs.rules {
			out, err := exprlang.Run(rule.program, env)
			if ok, _ := out.(bool); err != nil || !ok {
				vec.AddField(rule.Field, fields[rule.Field], rule.Message)
			}
		}
	}

	if vec.HasErrors() {
		return nil, vec.ToSiteError().WithComponent("forms")
	}

	return &Submission{FormID: formID, Fields: fields}, nil
}

// Clean sanitizes input for formID without validating it, dropping unknown
// fields. Drafts are stored this way.
func (r *Registry) Clean(formID string, input map[string]any) (map[string]any, error) {
	cs, ok := r.schemas[formID]
	if !ok {
		return nil, errors.NewNotFoundError(errors.ErrCodeUnknownForm, "unknown form: "+formID)
	}

	cleaned := cs.clean(input)
	out := make(map[string]any, len(cleaned))
	for k, v := range cleaned {
		if _, present := input[k]; present {
			out[k] = v
		}
	}
	return out, nil
}

// clean returns a value for every schema field, "" when absent.
func (cs *compiledSchema) clean(input map[string]any) map[string]string {
	fields := make(map[string]string, len(cs.Fields))
	for _, f := range cs.Fields {
		raw := stringify(input[f.Name])
		if f.Type == TypeTextarea {
			fields[f.Name] = Sanitize(raw)
		} else {
			fields[f.Name] = SanitizeLine(raw)
		}
	}
	return fields
}

func (cs *compiledSchema) checkField(f Field, value string) string {
	if value == "" {
		if f.Required {
			return f.Label + " is required"
		}
		return ""
	}

	length := len([]rune(value))
	if f.MinLength > 0 && length < f.MinLength {
		return fmt.Sprintf("%s must be at least %d characters", f.Label, f.MinLength)
	}
	if length > f.maxLength() {
		return fmt.Sprintf("%s must be at most %d characters", f.Label, f.maxLength())
	}

	switch f.Type {
	case TypeEmail:
		if !validEmail(value) {
			return "Please enter a valid email address"
		}
	case TypeTel:
		if !validPhone(value) {
			return "Please enter a valid phone number"
		}
	case TypeNumber:
		if _, err := parseNumber(value); err != nil {
			return f.Label + " must be a number"
		}
	case TypeDate:
		if _, err := time.Parse(dateLayout, value); err != nil {
			return f.Label + " must be a valid date (YYYY-MM-DD)"
		}
	case TypeSelect:
		if len(f.Options) > 0 && !f.hasOption(value) {
			return f.Label + " must be one of: " + optionValues(f.Options)
		}
	}

	if re, ok := cs.patterns[f.Name]; ok && !re.MatchString(value) {
		if f.PatternHint != "" {
			return f.PatternHint
		}
		return f.Label + " is not in the expected format"
	}

	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

func validEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return false
	}
	at := strings.LastIndexByte(value, '@')
	return at > 0 && strings.Contains(value[at+1:], ".")
}

func validPhone(value string) bool {
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(" +-().", r):
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}

func parseNumber(value string) (float64, error) {
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(value)
	return strconv.ParseFloat(cleaned, 64)
}

func numFunc(params ...any) (any, error) {
	s, _ := params[0].(string)
	n, err := parseNumber(s)
	if err != nil {
		return float64(0), nil
	}
	return n, nil
}

func (r *Registry) ageFunc(params ...any) (any, error) {
	s, _ := params[0].(string)
	dob, err := time.Parse(dateLayout, s)
	if err != nil {
		return -1, nil
	}

	now := r.now()
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years, nil
}

func optionValues(options []Option) string {
	values := make([]string, 0, len(options))
	for _, o := range options {
		values = append(values, o.Value)
	}
	sort.Strings(values)
	return strings.Join(values, ", ")
}
