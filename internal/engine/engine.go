package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/braid/internal/action"
	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

// DefaultMaxDepth bounds how far a cascade may walk from its origin.
const DefaultMaxDepth = 10000

// ActionFirer fires the invalidation action bound to a record.
// Implemented by *action.Dispatcher.
type ActionFirer interface {
	Fire(ctx context.Context, sess *store.Session, rec model.Record) (action.Result, error)
}

// Engine invalidates records and cascades to their successors.
//
// Thread-safety: an Engine holds no per-call state and may be shared. Calls
// are not coordinated with each other; the store's one-invalidation-per-record
// constraint is the only backstop against concurrent cascades.
type Engine struct {
	store    *store.Store
	firer    ActionFirer
	logger   *slog.Logger
	maxDepth int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth sets the maximum cascade depth.
//
// Default: 10000 (DefaultMaxDepth). The originating record is depth 0.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine. firer may be nil, in which case no actions fire.
func New(s *store.Store, firer ActionFirer, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		firer:    firer,
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InvalidateOption configures one Invalidate call.
type InvalidateOption func(*invalidateOptions)

type invalidateOptions struct {
	cause                string
	rootID               string
	cascade              bool
	fireAction           bool
	fireActionOnCascaded bool
}

// WithCause sets the human-readable reason for the invalidation.
func WithCause(cause string) InvalidateOption {
	return func(o *invalidateOptions) {
		o.cause = cause
	}
}

// WithRootInvalidation attaches this invalidation to an existing cascade root.
// Used when a caller continues a cascade it started elsewhere.
func WithRootInvalidation(id string) InvalidateOption {
	return func(o *invalidateOptions) {
		o.rootID = id
	}
}

// WithoutCascade invalidates only the given record.
func WithoutCascade() InvalidateOption {
	return func(o *invalidateOptions) {
		o.cascade = false
	}
}

// WithoutAction suppresses the action bound to the given record.
func WithoutAction() InvalidateOption {
	return func(o *invalidateOptions) {
		o.fireAction = false
	}
}

// WithoutCascadedActions suppresses actions bound to descendants.
func WithoutCascadedActions() InvalidateOption {
	return func(o *invalidateOptions) {
		o.fireActionOnCascaded = false
	}
}

// Report describes the outcome of a cascade.
type Report struct {
	// Record is the originating record as re-read after binding. When the
	// record was already invalid it is the current row and Invalidated is empty.
	Record model.Record

	// RootID is the id every cascaded invalidation points at.
	RootID string

	// Invalidated lists the records this call invalidated, in binding order.
	// The originating record comes first.
	Invalidated []model.Record

	// Actions lists fired (or attempted) actions in firing order.
	Actions []action.Result
}

// Skipped reports whether the originating record was already invalid.
func (r Report) Skipped() bool {
	return len(r.Invalidated) == 0
}

// Invalidate marks rec invalid and, unless WithoutCascade is given, every
// record transitively derived from it.
//
// The returned bool is false (with a nil error) when rec was already invalid;
// nothing is created in that case. At least one of WithCause or
// WithRootInvalidation is required (INVALID_ARGUMENT otherwise). Only rec.ID
// is used; the record is re-read from the store.
func (e *Engine) Invalidate(ctx context.Context, sess *store.Session, rec model.Record, opts ...InvalidateOption) (model.Record, bool, error) {
	report, err := e.InvalidateReport(ctx, sess, rec.ID, opts...)
	if err != nil {
		return model.Record{}, false, err
	}
	return report.Record, !report.Skipped(), nil
}

// InvalidateReport is Invalidate by id, returning the full cascade report.
func (e *Engine) InvalidateReport(ctx context.Context, sess *store.Session, recordID int64, opts ...InvalidateOption) (Report, error) {
	o := invalidateOptions{
		cascade:              true,
		fireAction:           true,
		fireActionOnCascaded: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	current, found, err := e.store.GetRecord(ctx, sess, recordID)
	if err != nil {
		return Report{}, err
	}
	if !found {
		return Report{}, model.NewReferentialError(fmt.Sprintf("record %d does not exist", recordID), nil)
	}
	if !current.IsValid() {
		e.logger.DebugContext(ctx, "record already invalid, skipping",
			"record_id", current.ID,
			"invalidation_id", current.InvalidationID,
		)
		return Report{Record: current}, nil
	}

	if o.cause == "" && o.rootID == "" {
		return Report{}, model.NewInvalidArgument("invalidate requires a cause or a root invalidation id")
	}
	if o.cause == "" {
		o.cause = fmt.Sprintf("cascaded from invalidation %s", o.rootID)
	}

	origin, inv, err := e.mark(ctx, sess, current, o.cause, o.rootID)
	if err != nil {
		return Report{}, err
	}

	rootID := o.rootID
	if rootID == "" {
		rootID = inv.ID
	}
	report := Report{
		Record:      origin,
		RootID:      rootID,
		Invalidated: []model.Record{origin},
	}

	if o.cascade {
		if err := e.cascade(ctx, sess, origin, o, rootID, &report); err != nil {
			return Report{}, err
		}
	}

	if o.fireAction {
		if err := e.fire(ctx, sess, origin, &report); err != nil {
			return Report{}, err
		}
	}

	e.logger.InfoContext(ctx, "invalidation complete",
		"record_id", origin.ID,
		"root_invalidation_id", rootID,
		"invalidated", len(report.Invalidated),
		"actions", len(report.Actions),
	)
	return report, nil
}

// frame is one record on the cascade stack.
type frame struct {
	rec      model.Record
	children []model.Record
	next     int
}

// cascade walks origin's descendants depth-first with an explicit stack.
// Actions fire when a frame is popped, so a record's action runs after the
// actions of everything derived from it.
func (e *Engine) cascade(ctx context.Context, sess *store.Session, origin model.Record, o invalidateOptions, rootID string, report *Report) error {
	path := newActivePath()

	children, err := e.store.Successors(ctx, sess, origin.ID)
	if err != nil {
		return err
	}
	path.Enter(origin.ID)
	stack := []*frame{{rec: origin, children: children}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return model.NewStorageError("cascade", err)
		}

		top := stack[len(stack)-1]

		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			path.Leave(top.rec.ID)
			// The origin's action is handled by the caller
			if len(stack) > 0 && o.fireActionOnCascaded {
				if err := e.fire(ctx, sess, top.rec, report); err != nil {
					return err
				}
			}
			continue
		}

		child := top.children[top.next]
		top.next++

		if path.Contains(child.ID) {
			return model.NewCycleError(child.ID, path.Path(child.ID))
		}

		current, found, err := e.store.GetRecord(ctx, sess, child.ID)
		if err != nil {
			return err
		}
		if !found || !current.IsValid() {
			continue
		}

		if depth := path.Depth(); depth > e.maxDepth {
			return model.NewLimitError(depth, e.maxDepth)
		}

		marked, _, err := e.mark(ctx, sess, current, o.cause, rootID)
		if err != nil {
			return err
		}
		report.Invalidated = append(report.Invalidated, marked)

		grandchildren, err := e.store.Successors(ctx, sess, marked.ID)
		if err != nil {
			return err
		}
		path.Enter(marked.ID)
		stack = append(stack, &frame{rec: marked, children: grandchildren})
	}
	return nil
}

// mark creates an invalidation and binds it to rec.
func (e *Engine) mark(ctx context.Context, sess *store.Session, rec model.Record, cause, rootID string) (model.Record, model.Invalidation, error) {
	inv, err := e.store.CreateInvalidation(ctx, sess, cause, rootID)
	if err != nil {
		return model.Record{}, model.Invalidation{}, err
	}
	bound, err := e.store.BindInvalidation(ctx, sess, rec.ID, inv.ID)
	if err != nil {
		return model.Record{}, model.Invalidation{}, err
	}

	e.logger.DebugContext(ctx, "record invalidated",
		"record_id", bound.ID,
		"name", bound.Name,
		"invalidation_id", inv.ID,
		"root_invalidation_id", rootID,
	)
	return bound, inv, nil
}

func (e *Engine) fire(ctx context.Context, sess *store.Session, rec model.Record, report *Report) error {
	if e.firer == nil || rec.ActionID == "" {
		return nil
	}
	res, err := e.firer.Fire(ctx, sess, rec)
	if err != nil {
		return err
	}
	report.Actions = append(report.Actions, res)
	return nil
}

// InvalidateByTagValue invalidates every valid record carrying tag key with
// the given value (textual equality, as store.FindByTagValue). Each match is
// its own cascade origin. Records already invalidated, including by an
// earlier match's cascade, are skipped.
func (e *Engine) InvalidateByTagValue(ctx context.Context, sess *store.Session, key string, value any, opts ...InvalidateOption) ([]Report, error) {
	reports := []Report{}
	for rec, err := range e.store.FindByTagValue(ctx, sess, key, value) {
		if err != nil {
			return nil, err
		}
		report, err := e.InvalidateReport(ctx, sess, rec.ID, opts...)
		if err != nil {
			return nil, err
		}
		if !report.Skipped() {
			reports = append(reports, report)
		}
	}
	return reports, nil
}
