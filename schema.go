package onecred

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// SchemaField declares one field of the expected request body.
type SchemaField struct {
	// Name of the field in the parsed body.
	Name string

	// Rules applied to the field's value. An absent field is validated as
	// nil, so validation.Required makes it mandatory.
	Rules []validation.Rule

	// Bool marks the field as boolean. Form bodies carry booleans as
	// strings ("true", "on", "1"), so the value is coerced before it lands
	// in the validated mapping.
	Bool bool
}

// Schema is a declarative validator for the sign-in request body. The
// validated output is a closed mapping: only declared fields appear, and only
// when every rule passed.
type Schema []SchemaField

// DefaultSchema expects {email, password, rememberMe?}.
func DefaultSchema() Schema {
	return Schema{
		{Name: "email", Rules: []validation.Rule{validation.Required, is.Email}},
		{Name: "password", Rules: []validation.Rule{validation.Required}},
		{Name: "rememberMe", Bool: true},
	}
}

// Validate checks body against the schema. On success the returned mapping
// contains exactly the declared fields; on failure it returns an AuthError
// carrying every field-level violation.
func (s Schema) Validate(body map[string]any) (map[string]any, *AuthError) {
	input := make(map[string]any, len(s))
	violations := map[string]string{}

	for _, field := range s {
		value, present := body[field.Name]
		if field.Bool {
			value = coerceBool(value)
		}
		if err := validation.Validate(value, field.Rules...); err != nil {
			violations[field.Name] = err.Error()
			continue
		}
		if present {
			input[field.Name] = value
		}
	}

	if len(violations) > 0 {
		return nil, &AuthError{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeInvalidInput,
			Message: "Invalid sign-in request",
			Fields:  violations,
		}
	}
	return input, nil
}

func coerceBool(value any) any {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "on", "1", "yes":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// InputBool reads a boolean field from a validated input mapping.
func InputBool(input map[string]any, name string) bool {
	v, _ := input[name].(bool)
	return v
}

// InputString reads a string field from a validated input mapping.
func InputString(input map[string]any, name string) string {
	v, _ := input[name].(string)
	return v
}
