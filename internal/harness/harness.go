package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/braid/internal/action"
	"github.com/roach88/braid/internal/engine"
	"github.com/roach88/braid/internal/manifest"
	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
	"github.com/roach88/braid/internal/testutil"
)

// Harness runs scenarios against a real engine and dispatcher. Shell actions
// go to a scripted runner instead of the operating system and events go to
// a discarding log publisher, so traces are reproducible.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger

	// refs and names translate between manifest refs and record ids.
	refs  map[string]int64
	names map[int64]string
}

// scriptedRunner reports configured exit codes without running anything.
type scriptedRunner struct {
	codes map[string]int
}

func (r scriptedRunner) Run(_ context.Context, name string, _ ...string) (int, error) {
	return r.codes[name], nil
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with sequential ids
// ("inv-1", "inv-2", ...) and a stepping clock, so repeated runs produce
// identical traces.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Apply the setup manifest
// 3. Run flow steps, one session each, checking expect clauses
// 4. Evaluate assertions against the final graph and the trace
//
// The returned error reports a broken scenario or store, never a failed
// expectation; those land in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:",
		store.WithIDGenerator(store.NewSequenceGenerator("inv")),
		store.WithClock(testutil.NewStepClock(0).Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := action.NewDispatcher(st,
		action.WithRunner(scriptedRunner{codes: scenario.ExitCodes}),
		action.WithPublisher(action.LogPublisher{Logger: logger}),
		action.WithLogger(logger),
	)
	h := &Harness{
		store:  st,
		engine: engine.New(st, dispatcher, engine.WithLogger(logger)),
		logger: logger,
	}

	ctx := context.Background()
	applied, err := manifest.Apply(ctx, st, nil, &scenario.Setup, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to apply setup: %w", err)
	}
	h.refs = applied.Refs
	h.names = make(map[int64]string, len(applied.Refs))
	for ref, id := range applied.Refs {
		h.names[id] = ref
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions, result) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one invalidation in its own session. A failed
// invalidation is rolled back and traced as an error event.
func (h *Harness) executeStep(ctx context.Context, index int, step FlowStep, result *Result) error {
	start := TraceEvent{Type: EventInvalidate, Record: step.Invalidate, Cause: step.Cause}
	if step.InvalidateTag != nil {
		start.Tag = step.InvalidateTag.Key + "=" + step.InvalidateTag.Value
	}
	result.record(start)

	sess, err := h.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	reports, err := h.invalidate(ctx, sess, step)
	if err != nil {
		if rbErr := sess.Rollback(); rbErr != nil {
			return rbErr
		}
		code := errorCode(err)
		h.logger.Debug("flow step failed", "step", index, "code", code, "error", err)
		result.record(TraceEvent{Type: EventError, Code: code})
		checkExpect(index, step.Expect, code, false, nil, result)
		return nil
	}
	if err := sess.Commit(); err != nil {
		return err
	}

	skipped := false
	invalidated := []string{}
	for _, report := range reports {
		if report.Skipped() {
			skipped = true
			result.record(TraceEvent{Type: EventSkipped, Record: h.ref(report.Record.ID)})
			continue
		}
		refs := make([]string, 0, len(report.Invalidated))
		for _, rec := range report.Invalidated {
			refs = append(refs, h.ref(rec.ID))
		}
		invalidated = append(invalidated, refs...)
		result.record(TraceEvent{Type: EventInvalidated, Root: report.RootID, Records: refs})

		for _, res := range report.Actions {
			if !res.Fired {
				continue
			}
			result.record(TraceEvent{
				Type:     EventAction,
				Record:   h.ref(res.RecordID),
				Action:   res.ActionName,
				Command:  res.Command,
				Args:     res.Args,
				ExitCode: res.ExitCode,
			})
		}
	}
	checkExpect(index, step.Expect, "", skipped, invalidated, result)
	return nil
}

func (h *Harness) invalidate(ctx context.Context, sess *store.Session, step FlowStep) ([]engine.Report, error) {
	var opts []engine.InvalidateOption
	if step.Cause != "" {
		opts = append(opts, engine.WithCause(step.Cause))
	}
	if step.Root != "" {
		rootID, err := h.rootOf(ctx, sess, step.Root)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithRootInvalidation(rootID))
	}
	if step.NoCascade {
		opts = append(opts, engine.WithoutCascade())
	}
	if step.NoAction {
		opts = append(opts, engine.WithoutAction())
	}
	if step.NoCascadedActions {
		opts = append(opts, engine.WithoutCascadedActions())
	}

	if step.InvalidateTag != nil {
		return h.engine.InvalidateByTagValue(ctx, sess, step.InvalidateTag.Key, step.InvalidateTag.Value, opts...)
	}
	report, err := h.engine.InvalidateReport(ctx, sess, h.refs[step.Invalidate], opts...)
	if err != nil {
		return nil, err
	}
	return []engine.Report{report}, nil
}

// rootOf returns the cascade root invalidation id of the record named ref.
func (h *Harness) rootOf(ctx context.Context, sess *store.Session, ref string) (string, error) {
	rec, _, err := h.store.GetRecord(ctx, sess, h.refs[ref])
	if err != nil {
		return "", err
	}
	if rec.IsValid() {
		return "", model.NewInvalidArgument(fmt.Sprintf("root record %q is not invalidated", ref))
	}
	inv, found, err := h.store.GetInvalidation(ctx, sess, rec.InvalidationID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", model.NewReferentialError(fmt.Sprintf("invalidation %s does not exist", rec.InvalidationID), nil)
	}
	if inv.IsRoot() {
		return inv.ID, nil
	}
	return inv.RootID, nil
}

// ref names a record by its manifest ref, falling back to "#id".
func (h *Harness) ref(id int64) string {
	if name, ok := h.names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// checkExpect compares a step's outcome against its expect clause. code is
// empty when the step succeeded.
func checkExpect(index int, expect *ExpectClause, code string, skipped bool, invalidated []string, result *Result) {
	if expect == nil {
		if code != "" {
			result.AddError(fmt.Sprintf("flow[%d]: unexpected error %s", index, code))
		}
		return
	}

	if expect.Error != code {
		switch {
		case code == "":
			result.AddError(fmt.Sprintf("flow[%d]: expected error %s, step succeeded", index, expect.Error))
		case expect.Error == "":
			result.AddError(fmt.Sprintf("flow[%d]: unexpected error %s", index, code))
		default:
			result.AddError(fmt.Sprintf("flow[%d]: expected error %s, got %s", index, expect.Error, code))
		}
		return
	}
	if code != "" {
		return
	}

	if expect.Skipped != skipped {
		result.AddError(fmt.Sprintf("flow[%d]: expected skipped=%t, got %t", index, expect.Skipped, skipped))
	}
	if expect.Invalidated != nil && !slices.Equal(expect.Invalidated, invalidated) {
		result.AddError(fmt.Sprintf("flow[%d]: expected invalidated %v, got %v", index, expect.Invalidated, invalidated))
	}
}
