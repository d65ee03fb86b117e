package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case EventInvalidate:
			fmt.Fprintf(&buf, "  [%d] invalidate %s%s (%s)\n", event.Seq, event.Record, event.Tag, event.Cause)
		case EventInvalidated:
			fmt.Fprintf(&buf, "  [%d] invalidated %v root %s\n", event.Seq, event.Records, event.Root)
		case EventAction:
			fmt.Fprintf(&buf, "  [%d] action %s on %s\n", event.Seq, event.Action, event.Record)
		default:
			fmt.Fprintf(&buf, "  [%d] %s %s%s\n", event.Seq, event.Type, event.Record, event.Code)
		}
	}
	return buf.String()
}

// evaluateAssertions checks every assertion and returns failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion, result *Result) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertValid, AssertInvalid:
			err = h.assertValidity(ctx, a, result.Trace)
		case AssertSameRoot:
			err = h.assertSameRoot(ctx, a, result.Trace)
		case AssertCause:
			err = h.assertCause(ctx, a, result.Trace)
		case AssertActionOrder:
			err = assertActionOrder(a, result)
		case AssertActionCount:
			err = assertActionCount(a, result)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) assertValidity(ctx context.Context, a Assertion, trace []TraceEvent) error {
	want := a.Type == AssertValid
	var wrong []string
	for _, ref := range a.Records {
		rec, found, err := h.store.GetRecord(ctx, nil, h.refs[ref])
		if err != nil {
			return err
		}
		if !found || rec.IsValid() != want {
			wrong = append(wrong, ref)
		}
	}
	if len(wrong) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%v all %s", a.Records, a.Type),
		Actual:   fmt.Sprintf("%v not %s", wrong, a.Type),
		Trace:    trace,
	}
}

func (h *Harness) assertSameRoot(ctx context.Context, a Assertion, trace []TraceEvent) error {
	roots := make([]string, 0, len(a.Records))
	for _, ref := range a.Records {
		root, err := h.rootOf(ctx, nil, ref)
		if err != nil {
			return err
		}
		roots = append(roots, root)
	}
	if len(slices.Compact(slices.Clone(roots))) == 1 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%v share one root invalidation", a.Records),
		Actual:   fmt.Sprintf("roots %v", roots),
		Trace:    trace,
	}
}

func (h *Harness) assertCause(ctx context.Context, a Assertion, trace []TraceEvent) error {
	for _, ref := range a.Records {
		rootID, err := h.rootOf(ctx, nil, ref)
		if err != nil {
			return err
		}
		root, _, err := h.store.GetInvalidation(ctx, nil, rootID)
		if err != nil {
			return err
		}
		if root.Cause != a.Cause {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s invalidated because %q", ref, a.Cause),
				Actual:   fmt.Sprintf("root %s cause %q", root.ID, root.Cause),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertActionOrder(a Assertion, result *Result) error {
	fired := result.FiredActions()
	want := a.Records
	if want == nil {
		want = []string{}
	}
	if slices.Equal(fired, want) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("actions fired for %v", want),
		Actual:   fmt.Sprintf("actions fired for %v", fired),
		Trace:    result.Trace,
	}
}

func assertActionCount(a Assertion, result *Result) error {
	fired := result.FiredActions()
	if len(fired) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d actions", a.Count),
		Actual:   fmt.Sprintf("%d actions %v", len(fired), fired),
		Trace:    result.Trace,
	}
}
