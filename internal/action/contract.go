package action

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// FieldError is returned by Validate implementations to name the offending
// input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Invalid is shorthand for a *FieldError.
func Invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// contract is the compiled input schema of one action.
type contract struct {
	raw    json.RawMessage
	schema *jsonschema.Schema
	// fields lists the JSON property names in struct order and decides which
	// violation is reported first.
	fields []string
}

func newContract[T any](name string) (*contract, error) {
	reflector := &invopop.Reflector{
		Anonymous:                 true,
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("reflect input schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal input schema: %w", err)
	}
	url := "storyagent://actions/" + name + ".json"
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}

	return &contract{
		raw:    raw,
		schema: compiled,
		fields: jsonFields(reflect.TypeOf((*T)(nil)).Elem()),
	}, nil
}

// check validates input against the schema and returns the first violated
// field (possibly empty) with a short reason.
func (c *contract) check(input map[string]any) *FieldError {
	data, err := json.Marshal(input)
	if err != nil {
		return &FieldError{Reason: "input is not serializable"}
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &FieldError{Reason: "input is not valid JSON"}
	}
	err = c.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !stdErrors.As(err, &verr) {
		return &FieldError{Reason: err.Error()}
	}
	violations := collect(verr)
	if len(violations) == 0 {
		return &FieldError{Reason: "does not match the input contract"}
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return c.rank(violations[i].Field) < c.rank(violations[j].Field)
	})
	first := violations[0]
	return &first
}

func (c *contract) rank(field string) int {
	for i, f := range c.fields {
		if f == field {
			return i
		}
	}
	return len(c.fields)
}

// collect walks the error tree down to its leaves.
func collect(verr *jsonschema.ValidationError) []FieldError {
	if len(verr.Causes) > 0 {
		var out []FieldError
		for _, cause := range verr.Causes {
			out = append(out, collect(cause)...)
		}
		return out
	}

	switch k := verr.ErrorKind.(type) {
	case *kind.Required:
		out := make([]FieldError, 0, len(k.Missing))
		for _, missing := range k.Missing {
			out = append(out, FieldError{Field: joinPath(verr.InstanceLocation, missing), Reason: "is required"})
		}
		return out
	case *kind.Type:
		return []FieldError{{
			Field:  joinPath(verr.InstanceLocation, ""),
			Reason: fmt.Sprintf("must be of type %s, got %s", strings.Join(k.Want, " or "), k.Got),
		}}
	default:
		return []FieldError{{Field: joinPath(verr.InstanceLocation, ""), Reason: "is invalid"}}
	}
}

func joinPath(location []string, leaf string) string {
	parts := append([]string(nil), location...)
	if leaf != "" {
		parts = append(parts, leaf)
	}
	return strings.Join(parts, ".")
}

// jsonFields returns the JSON property names of a struct in declaration order.
func jsonFields(t reflect.Type) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	fields := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields = append(fields, name)
	}
	return fields
}
