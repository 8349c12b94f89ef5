package savecoord

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// SizeWarningBytes is the payload size above which a save is flagged. The
// write still proceeds; the backend's quota is the hard limit.
const SizeWarningBytes = 1 << 20

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://tabshelf.dev/schemas/"

// Validator checks payloads against the base schema and the schema of the
// writing source.
type Validator struct {
	base  *jsonschema.Schema
	board *jsonschema.Schema
	theme *jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(schemaBase+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
	}

	v := &Validator{}
	for name, dst := range map[string]**jsonschema.Schema{
		"base.json":  &v.base,
		"board.json": &v.board,
		"theme.json": &v.theme,
	} {
		sch, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		*dst = sch
	}
	return v, nil
}

// ValidationError lists why a payload was rejected. It matches
// types.ErrValidation.
type ValidationError struct {
	Source string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload from %s: %v", e.Source, e.Err)
}

func (e *ValidationError) Is(target error) bool { return target == types.ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks data as written by source. Warnings never block a save.
func (v *Validator) Validate(data *types.ConfigData, source string) (warnings []string, err error) {
	if data == nil {
		return nil, &ValidationError{Source: source, Err: fmt.Errorf("payload is empty")}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, &ValidationError{Source: source, Err: err}
	}
	return v.ValidateJSON(raw, source)
}

// ValidateJSON checks a raw payload as written by source.
func (v *Validator) ValidateJSON(raw []byte, source string) (warnings []string, err error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &ValidationError{Source: source, Err: fmt.Errorf("payload is not JSON: %w", err)}
	}
	if _, ok := inst.(map[string]any); !ok {
		return nil, &ValidationError{Source: source, Err: fmt.Errorf("payload must be an object")}
	}
	if err := v.base.Validate(inst); err != nil {
		return nil, &ValidationError{Source: source, Err: err}
	}
	var specific *jsonschema.Schema
	switch ownerOf(source) {
	case domainBoard:
		specific = v.board
	case domainTheme:
		specific = v.theme
	}
	if specific != nil {
		if err := specific.Validate(inst); err != nil {
			return nil, &ValidationError{Source: source, Err: err}
		}
	}
	if len(raw) > SizeWarningBytes {
		warnings = append(warnings, fmt.Sprintf("payload is %d bytes, above the %d byte soft limit", len(raw), SizeWarningBytes))
	}
	return warnings, nil
}
