// Package manifest imports provenance records from YAML, JSON or CUE files.
//
// A manifest lists invalidation actions and records. Records may nest their
// derivations, reference each other by ref, and reference records already in
// the store by id:
//
//	actions:
//	  - name: notify
//	    command: echo
//	    args: ["{name}", "invalidated"]
//	records:
//	  - name: config.yaml
//	    ref: cfg
//	    kind: fact
//	    tags:
//	      site: ornl
//	      epoch: {value: 10, type: INTEGER}
//	    derivations:
//	      - name: output.h5
//	        kind: data
//	        uris: [file:///data/output.h5]
//	        action: notify
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Manifest is a decoded import file.
type Manifest struct {
	Actions []ActionSpec `yaml:"actions" json:"actions"`
	Records []RecordSpec `yaml:"records" json:"records"`
}

// ActionSpec declares an invalidation action.
type ActionSpec struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Command string `yaml:"command" json:"command"`

	// Args is shorthand for params.args.
	Args []string `yaml:"args" json:"args"`

	Params map[string]any `yaml:"params" json:"params"`
}

// RecordSpec declares a record and, through Derivations, records derived
// from it.
type RecordSpec struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`

	// Ref names the record within the manifest for DerivedFrom.
	Ref string `yaml:"ref" json:"ref"`

	URIs []string           `yaml:"uris" json:"uris"`
	Tags map[string]TagSpec `yaml:"tags" json:"tags"`

	// Action is the name of an action in this manifest, or the id of an
	// action already in the store.
	Action string `yaml:"action" json:"action"`

	// DerivedFrom lists refs of predecessors declared in this manifest.
	DerivedFrom []string `yaml:"derived_from" json:"derived_from"`

	// DerivedFromRecordID lists ids of predecessors already in the store.
	DerivedFromRecordID []int64 `yaml:"derived_from_record_id" json:"derived_from_record_id"`

	// Derivations are records derived from this one.
	Derivations []RecordSpec `yaml:"derivations" json:"derivations"`
}

// TagSpec is a tag value with an optional type. In a file it is either a
// bare scalar or a mapping {value, type}. An empty Type is inferred from the
// value: integers are INTEGER, other numbers FLOAT, anything else STRING.
type TagSpec struct {
	Value any
	Type  string
}

type tagSpecFields struct {
	Value any    `yaml:"value" json:"value"`
	Type  string `yaml:"type" json:"type"`
}

// UnmarshalYAML accepts a scalar or a {value, type} mapping.
func (t *TagSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var f tagSpecFields
		if err := node.Decode(&f); err != nil {
			return err
		}
		t.Value, t.Type = f.Value, f.Type
		return nil
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: tag must be a scalar or a {value, type} mapping", node.Line)
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	t.Value = v
	return nil
}

// UnmarshalJSON accepts a scalar or a {value, type} object.
func (t *TagSpec) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		var f tagSpecFields
		if err := dec.Decode(&f); err != nil {
			return err
		}
		t.Value, t.Type = f.Value, f.Type
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return errors.New("tag must be a scalar or a {value, type} object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	t.Value = v
	return nil
}

// Load reads a manifest, choosing the decoder by extension: .yaml and .yml
// use YAML; .cue and .json are evaluated with CUE.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue", ".json":
		return ParseCUE(data, path)
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q (want .yaml, .yml, .json or .cue)", filepath.Ext(path))
	}
}

// ParseYAML decodes a YAML manifest. Unknown keys are rejected.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// ParseCUE evaluates a CUE (or JSON) manifest. The value must be concrete.
// filename is used in error positions.
func ParseCUE(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Validate checks names, refs and action references without touching a store.
func (m *Manifest) Validate() error {
	actions := make(map[string]bool, len(m.Actions))
	for i, a := range m.Actions {
		if a.Name == "" {
			return fmt.Errorf("actions[%d]: name is required", i)
		}
		if actions[a.Name] {
			return fmt.Errorf("actions[%d]: duplicate action name %q", i, a.Name)
		}
		actions[a.Name] = true
		if a.Command == "" {
			return fmt.Errorf("actions[%d] %q: command is required", i, a.Name)
		}
		if len(a.Args) > 0 && a.Params["args"] != nil {
			return fmt.Errorf("actions[%d] %q: set args or params.args, not both", i, a.Name)
		}
	}

	refs := make(map[string]bool)
	var walk func(path string, recs []RecordSpec) error
	walk = func(path string, recs []RecordSpec) error {
		for i, r := range recs {
			p := fmt.Sprintf("%s[%d]", path, i)
			if r.Ref != "" {
				if refs[r.Ref] {
					return fmt.Errorf("%s: duplicate ref %q", p, r.Ref)
				}
				refs[r.Ref] = true
			}
			if err := walk(p+".derivations", r.Derivations); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("records", m.Records); err != nil {
		return err
	}

	var check func(path string, recs []RecordSpec) error
	check = func(path string, recs []RecordSpec) error {
		for i, r := range recs {
			p := fmt.Sprintf("%s[%d]", path, i)
			for _, ref := range r.DerivedFrom {
				if !refs[ref] {
					return fmt.Errorf("%s: derived_from references unknown ref %q", p, ref)
				}
			}
			if err := check(p+".derivations", r.Derivations); err != nil {
				return err
			}
		}
		return nil
	}
	return check("records", m.Records)
}

// formatCUEError reports the first CUE error with its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &PositionError{Message: first.Error(), Pos: positions[0]}
	}
	return err
}

// PositionError is a CUE evaluation error with a source position.
type PositionError struct {
	Message string
	Pos     token.Pos
}

func (e *PositionError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}
