package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/braid/internal/model"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonical converts a TraceSnapshot to a model.Object, omitting empty
// fields the way the JSON tags do.
func (s *TraceSnapshot) toCanonical() model.Object {
	trace := make(model.Array, len(s.Trace))
	for i, event := range s.Trace {
		obj := model.Object{
			"type": model.String(event.Type),
			"seq":  model.Int(event.Seq),
		}
		setString(obj, "record", event.Record)
		setString(obj, "tag", event.Tag)
		setString(obj, "cause", event.Cause)
		setString(obj, "root", event.Root)
		setString(obj, "action", event.Action)
		setString(obj, "command", event.Command)
		setString(obj, "code", event.Code)
		if event.Records != nil {
			obj["records"] = stringArray(event.Records)
		}
		if event.Args != nil {
			obj["args"] = stringArray(event.Args)
		}
		if event.ExitCode != 0 {
			obj["exit_code"] = model.Int(event.ExitCode)
		}
		trace[i] = obj
	}

	return model.Object{
		"scenario_name": model.String(s.ScenarioName),
		"trace":         trace,
	}
}

func setString(obj model.Object, key, value string) {
	if value != "" {
		obj[key] = model.String(value)
	}
}

func stringArray(values []string) model.Array {
	arr := make(model.Array, len(values))
	for i, v := range values {
		arr[i] = model.String(v)
	}
	return arr
}

// MarshalTrace renders a result's trace as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	return model.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A trace mismatch fails t via
// goldie; failed expectations are left in the returned Result.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
