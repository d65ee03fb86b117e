package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

// Result reports what firing an action did.
type Result struct {
	RecordID   int64
	ActionID   string
	ActionName string
	Type       model.ActionType

	// Fired is false when the record has no action or the type is unknown.
	Fired bool

	// Command and Args are the substituted command line (shell).
	Command string
	Args    []string

	// Payload is the substituted params (external_event).
	Payload model.Object

	// ExitCode is the process exit code (shell).
	ExitCode int

	// Err is a side-effect failure: the process could not run, or the event
	// could not be published. It is reported, not returned.
	Err error
}

// OK reports whether the action either did not fire or completed cleanly.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Dispatcher fires invalidation actions.
type Dispatcher struct {
	store     *store.Store
	runner    Runner
	publisher Publisher
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRunner sets the process runner for shell actions. Default: ExecRunner.
func WithRunner(r Runner) Option {
	return func(d *Dispatcher) {
		d.runner = r
	}
}

// WithPublisher sets the publisher for external_event actions.
// Default: LogPublisher on the dispatcher's logger.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) {
		d.publisher = p
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher reading actions, tags and URIs from s.
func NewDispatcher(s *store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  s,
		runner: ExecRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.publisher == nil {
		d.publisher = LogPublisher{Logger: d.logger}
	}
	return d
}

// Fire runs the action bound to rec, if any.
//
// Returned errors are lookup failures (STORAGE_ERROR, REFERENTIAL_ERROR for
// a dangling action id) and TEMPLATE_ERROR. A side effect that fails is
// reported in Result and logged.
func (d *Dispatcher) Fire(ctx context.Context, sess *store.Session, rec model.Record) (Result, error) {
	res := Result{RecordID: rec.ID, ActionID: rec.ActionID}
	if rec.ActionID == "" {
		return res, nil
	}

	act, found, err := d.store.GetAction(ctx, sess, rec.ActionID)
	if err != nil {
		return res, err
	}
	if !found {
		return res, model.NewReferentialError(fmt.Sprintf("action %s bound to record %d does not exist", rec.ActionID, rec.ID), nil)
	}
	res.ActionName = act.Name
	res.Type = act.Type

	switch act.Type {
	case model.ActionShell, model.ActionExternalEvent:
	default:
		d.logger.WarnContext(ctx, "unknown invalidation action type, skipping",
			"record_id", rec.ID,
			"action_id", act.ID,
			"action_type", string(act.Type),
		)
		return res, nil
	}

	vars, err := d.variables(ctx, sess, rec)
	if err != nil {
		return res, err
	}

	command, err := Substitute(act.Command, vars)
	if err != nil {
		return res, withAction(err, act)
	}
	res.Command = command

	if act.Type == model.ActionShell {
		return d.fireShell(ctx, rec, act, vars, res)
	}
	return d.fireEvent(ctx, rec, act, vars, res)
}

func (d *Dispatcher) fireShell(ctx context.Context, rec model.Record, act model.InvalidationAction, vars map[string]string, res Result) (Result, error) {
	rawArgs, err := act.Args()
	if err != nil {
		return res, err
	}
	args := make([]string, 0, len(rawArgs))
	for _, a := range rawArgs {
		sub, err := SubstituteValue(a, vars)
		if err != nil {
			return res, withAction(err, act)
		}
		args = append(args, model.Text(sub))
	}
	res.Args = args

	code, runErr := d.runner.Run(ctx, res.Command, args...)
	res.Fired = true
	res.ExitCode = code
	res.Err = runErr

	attrs := []any{
		"record_id", rec.ID,
		"action", act.Name,
		"command", res.Command,
		"args", args,
		"exit_code", code,
	}
	switch {
	case runErr != nil:
		d.logger.ErrorContext(ctx, "invalidation action could not run", append(attrs, "error", runErr)...)
	case code != 0:
		d.logger.WarnContext(ctx, "invalidation action exited non-zero", attrs...)
	default:
		d.logger.InfoContext(ctx, "invalidation action ran", attrs...)
	}
	return res, nil
}

func (d *Dispatcher) fireEvent(ctx context.Context, rec model.Record, act model.InvalidationAction, vars map[string]string, res Result) (Result, error) {
	sub, err := SubstituteValue(act.Params, vars)
	if err != nil {
		return res, withAction(err, act)
	}
	params, _ := sub.(model.Object)
	if params == nil {
		params = model.Object{}
	}
	res.Payload = params

	evt := Event{
		Name:           res.Command,
		ActionID:       act.ID,
		ActionName:     act.Name,
		RecordID:       rec.ID,
		RecordName:     rec.Name,
		InvalidationID: rec.InvalidationID,
		Params:         params,
	}
	res.Fired = true
	res.Err = d.publisher.Publish(ctx, evt)

	if res.Err != nil {
		d.logger.ErrorContext(ctx, "invalidation event not published",
			"record_id", rec.ID,
			"action", act.Name,
			"event", evt.Name,
			"error", res.Err,
		)
	} else {
		d.logger.InfoContext(ctx, "invalidation event published",
			"record_id", rec.ID,
			"action", act.Name,
			"event", evt.Name,
		)
	}
	return res, nil
}

// variables builds the substitution map: flattened tags, then the reserved
// keys "name" and "uri". Reserved keys shadow tags of the same name. "uri" is
// only bound when the record has at least one URI.
func (d *Dispatcher) variables(ctx context.Context, sess *store.Session, rec model.Record) (map[string]string, error) {
	vars, err := d.store.TagsAsMap(ctx, sess, rec.ID)
	if err != nil {
		return nil, err
	}
	vars["name"] = rec.Name

	uri, found, err := d.store.FirstURI(ctx, sess, rec.ID)
	if err != nil {
		return nil, err
	}
	if found {
		vars["uri"] = uri
	} else {
		delete(vars, "uri")
	}
	return vars, nil
}

// withAction prefixes a template error message with the action name.
func withAction(err error, act model.InvalidationAction) error {
	if e, ok := err.(*model.Error); ok {
		out := *e
		out.Message = fmt.Sprintf("action %q: %s", act.Name, e.Message)
		return &out
	}
	return err
}
