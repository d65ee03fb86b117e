package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/braid/internal/manifest"
	"github.com/roach88/braid/internal/model"
)

// Scenario defines a provenance scenario: a graph to build, invalidations to
// run against it, and assertions on the resulting state and trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup is a manifest applied before the flow. Records are addressed by
	// their ref in the flow and assertions.
	Setup manifest.Manifest `yaml:"setup"`

	// Flow contains the invalidations to run, in order. Each step runs in its
	// own session and is rolled back when it fails.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final graph and the trace.
	Assertions []Assertion `yaml:"assertions"`

	// ExitCodes maps a substituted shell command to the exit code the
	// recording runner reports for it. Commands not listed exit 0.
	ExitCodes map[string]int `yaml:"exit_codes,omitempty"`
}

// FlowStep is one invalidation. Exactly one of Invalidate or InvalidateTag
// is set.
type FlowStep struct {
	// Invalidate is the ref of the record to invalidate.
	Invalidate string `yaml:"invalidate,omitempty"`

	// InvalidateTag invalidates every record carrying a tag value.
	InvalidateTag *TagMatch `yaml:"invalidate_tag,omitempty"`

	Cause string `yaml:"cause,omitempty"`

	// Root is the ref of an invalidated record whose cascade root this
	// invalidation joins.
	Root string `yaml:"root,omitempty"`

	NoCascade         bool `yaml:"no_cascade,omitempty"`
	NoAction          bool `yaml:"no_action,omitempty"`
	NoCascadedActions bool `yaml:"no_cascaded_actions,omitempty"`

	// Expect specifies the expected outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// TagMatch selects records by tag value.
type TagMatch struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ExpectClause specifies the expected outcome of a flow step.
type ExpectClause struct {
	// Error is the expected error code (e.g. CYCLE_DETECTED). Empty means
	// the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Skipped expects the record to be invalid already.
	Skipped bool `yaml:"skipped,omitempty"`

	// Invalidated lists the refs the step invalidates, in binding order.
	// For invalidate_tag the lists of every match are concatenated.
	Invalidated []string `yaml:"invalidated,omitempty"`
}

// Assertion validates the final graph or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "valid": every listed record is valid
	// - "invalid": every listed record is invalid
	// - "same_root": every listed record belongs to one cascade
	// - "cause": every listed record's cascade root carries Cause
	// - "action_order": actions fired for exactly these records, in order
	// - "action_count": exactly Count actions fired
	Type string `yaml:"type"`

	// Records lists refs.
	Records []string `yaml:"records,omitempty"`

	// Cause is the expected root cause (used by cause).
	Cause string `yaml:"cause,omitempty"`

	// Count is the expected number of fired actions (used by action_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertValid       = "valid"
	AssertInvalid     = "invalid"
	AssertSameRoot    = "same_root"
	AssertCause       = "cause"
	AssertActionOrder = "action_order"
	AssertActionCount = "action_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Setup.Records) == 0 {
		return fmt.Errorf("setup must declare at least one record")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := s.Setup.Validate(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	refs := declaredRefs(s.Setup.Records, map[string]bool{})

	for i, step := range s.Flow {
		if err := validateStep(i, step, refs); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, refs); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step FlowStep, refs map[string]bool) error {
	switch {
	case step.Invalidate == "" && step.InvalidateTag == nil:
		return fmt.Errorf("flow[%d]: invalidate or invalidate_tag is required", index)
	case step.Invalidate != "" && step.InvalidateTag != nil:
		return fmt.Errorf("flow[%d]: invalidate and invalidate_tag are mutually exclusive", index)
	case step.InvalidateTag != nil && step.InvalidateTag.Key == "":
		return fmt.Errorf("flow[%d]: invalidate_tag.key is required", index)
	}
	if step.Invalidate != "" && !refs[step.Invalidate] {
		return fmt.Errorf("flow[%d]: unknown ref %q", index, step.Invalidate)
	}
	if step.Root != "" && !refs[step.Root] {
		return fmt.Errorf("flow[%d]: unknown root ref %q", index, step.Root)
	}

	if step.Expect == nil {
		return nil
	}
	for _, ref := range step.Expect.Invalidated {
		if !refs[ref] {
			return fmt.Errorf("flow[%d].expect: unknown ref %q", index, ref)
		}
	}
	if step.Expect.Error != "" && (step.Expect.Skipped || len(step.Expect.Invalidated) > 0) {
		return fmt.Errorf("flow[%d].expect: error excludes skipped and invalidated", index)
	}
	if step.Expect.Skipped && len(step.Expect.Invalidated) > 0 {
		return fmt.Errorf("flow[%d].expect: skipped excludes invalidated", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, refs map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertValid, AssertInvalid, AssertSameRoot, AssertActionOrder:
		if len(a.Records) == 0 && a.Type != AssertActionOrder {
			return fmt.Errorf("assertions[%d]: records list is required for %s", index, a.Type)
		}
	case AssertCause:
		if len(a.Records) == 0 || a.Cause == "" {
			return fmt.Errorf("assertions[%d]: records and cause are required for cause", index)
		}
	case AssertActionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for action_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	for _, ref := range a.Records {
		if !refs[ref] {
			return fmt.Errorf("assertions[%d]: unknown ref %q", index, ref)
		}
	}
	return nil
}

func declaredRefs(specs []manifest.RecordSpec, into map[string]bool) map[string]bool {
	for _, spec := range specs {
		if spec.Ref != "" {
			into[spec.Ref] = true
		}
		declaredRefs(spec.Derivations, into)
	}
	return into
}

// errorCode extracts the model error code of err, or "ERROR" for errors
// that are not *model.Error.
func errorCode(err error) string {
	var e *model.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "ERROR"
}
