package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/braid/internal/action"
	"github.com/roach88/braid/internal/engine"
	"github.com/roach88/braid/internal/model"
)

// InvalidateOptions holds flags for the invalidate command.
type InvalidateOptions struct {
	*RootOptions
	Cause             string
	Root              string
	NoCascade         bool
	NoAction          bool
	NoCascadedActions bool
	TagKey            string
	TagValue          string
}

// actionView is one fired action in invalidate output.
type actionView struct {
	RecordID   int64        `json:"record_id"`
	ActionID   string       `json:"action_id"`
	ActionName string       `json:"action_name"`
	Type       string       `json:"type"`
	Fired      bool         `json:"fired"`
	Command    string       `json:"command,omitempty"`
	Args       []string     `json:"args,omitempty"`
	Payload    model.Object `json:"payload,omitempty"`
	ExitCode   int          `json:"exit_code"`
	Error      string       `json:"error,omitempty"`
}

func newActionView(r action.Result) actionView {
	v := actionView{
		RecordID:   r.RecordID,
		ActionID:   r.ActionID,
		ActionName: r.ActionName,
		Type:       string(r.Type),
		Fired:      r.Fired,
		Command:    r.Command,
		Args:       r.Args,
		Payload:    r.Payload,
		ExitCode:   r.ExitCode,
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

// reportView is the outcome of invalidating one requested record.
type reportView struct {
	RecordID    int64        `json:"record_id"`
	Skipped     bool         `json:"skipped"`
	RootID      string       `json:"root_invalidation_id,omitempty"`
	Invalidated []int64      `json:"invalidated"`
	Actions     []actionView `json:"actions"`
}

func newReportView(recordID int64, r engine.Report) reportView {
	v := reportView{
		RecordID:    recordID,
		Skipped:     r.Skipped(),
		RootID:      r.RootID,
		Invalidated: []int64{},
		Actions:     []actionView{},
	}
	for _, rec := range r.Invalidated {
		v.Invalidated = append(v.Invalidated, rec.ID)
	}
	for _, res := range r.Actions {
		v.Actions = append(v.Actions, newActionView(res))
	}
	return v
}

type reportList []reportView

func (l reportList) String() string {
	if len(l) == 0 {
		return "nothing to invalidate"
	}
	var b strings.Builder
	for i, r := range l {
		if i > 0 {
			b.WriteString("\n")
		}
		if r.Skipped {
			fmt.Fprintf(&b, "record %d already invalid, skipped", r.RecordID)
			continue
		}
		fmt.Fprintf(&b, "record %d: invalidated %s (root %s)", r.RecordID, formatIDs(r.Invalidated), r.RootID)
		for _, a := range r.Actions {
			status := "ok"
			switch {
			case a.Error != "":
				status = "failed: " + a.Error
			case a.ExitCode != 0:
				status = fmt.Sprintf("exit %d", a.ExitCode)
			case !a.Fired:
				status = "not fired"
			}
			fmt.Fprintf(&b, "\n  action %s on record %d: %s", a.ActionName, a.RecordID, status)
		}
	}
	return b.String()
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invalidate [record-id...]",
		Short: "Invalidate records and everything derived from them",
		Long: `Invalidate the given records. Each record, and unless --no-cascade every
record derived from it, is marked invalid and its invalidation action fires.

All records are invalidated in one session, committed at the end: if any
cascade fails (cycle, depth limit, action template error) nothing is stored.
Actions that already ran are not undone.

With --tag-key and --tag-value, every valid record carrying that tag is
invalidated.

Example:
  braid invalidate 3 7 --cause "detector miscalibrated"
  braid invalidate --tag-key run --tag-value 42 --cause "bad run"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvalidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Cause, "cause", "", "reason for the invalidation")
	cmd.Flags().StringVar(&opts.Root, "root", "", "continue the cascade rooted at this invalidation id")
	cmd.Flags().BoolVar(&opts.NoCascade, "no-cascade", false, "invalidate only the given records")
	cmd.Flags().BoolVar(&opts.NoAction, "no-action", false, "do not fire the given records' actions")
	cmd.Flags().BoolVar(&opts.NoCascadedActions, "no-cascaded-actions", false, "do not fire actions of derived records")
	cmd.Flags().StringVar(&opts.TagKey, "tag-key", "", "invalidate records whose tag has this key (with --tag-value)")
	cmd.Flags().StringVar(&opts.TagValue, "tag-value", "", "tag value for --tag-key")

	return cmd
}

func runInvalidate(opts *InvalidateOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	if len(args) == 0 && opts.TagKey == "" {
		return out.Fail("nothing to invalidate", model.NewInvalidArgument("give record ids or --tag-key/--tag-value"))
	}
	if opts.Cause == "" && opts.Root == "" {
		return out.Fail("missing cause", model.NewInvalidArgument("--cause or --root is required"))
	}
	ids := make([]int64, 0, len(args))
	for _, raw := range args {
		id, err := parseID(raw)
		if err != nil {
			return out.Fail("invalid record id", err)
		}
		ids = append(ids, id)
	}

	var invOpts []engine.InvalidateOption
	if opts.Cause != "" {
		invOpts = append(invOpts, engine.WithCause(opts.Cause))
	}
	if opts.Root != "" {
		invOpts = append(invOpts, engine.WithRootInvalidation(opts.Root))
	}
	if opts.NoCascade {
		invOpts = append(invOpts, engine.WithoutCascade())
	}
	if opts.NoAction {
		invOpts = append(invOpts, engine.WithoutAction())
	}
	if opts.NoCascadedActions {
		invOpts = append(invOpts, engine.WithoutCascadedActions())
	}

	env, err := opts.openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer env.Close()

	eng, err := env.engine(cmd)
	if err != nil {
		return env.out.Fail("failed to configure actions", err)
	}

	ctx := cmd.Context()
	sess, err := env.store.Begin(ctx)
	if err != nil {
		return env.out.Fail("failed to begin session", err)
	}
	defer sess.Close()

	reports := reportList{}
	for _, id := range ids {
		env.out.VerboseLog("Invalidating record %d", id)
		report, err := eng.InvalidateReport(ctx, sess, id, invOpts...)
		if err != nil {
			return env.out.Fail(fmt.Sprintf("failed to invalidate record %d", id), err)
		}
		reports = append(reports, newReportView(id, report))
	}
	if opts.TagKey != "" {
		tagged, err := eng.InvalidateByTagValue(ctx, sess, opts.TagKey, opts.TagValue, invOpts...)
		if err != nil {
			return env.out.Fail("failed to invalidate tagged records", err)
		}
		for _, report := range tagged {
			reports = append(reports, newReportView(report.Record.ID, report))
		}
	}

	if err := sess.Commit(); err != nil {
		return env.out.Fail("failed to commit", err)
	}
	return env.out.Success(reports)
}
