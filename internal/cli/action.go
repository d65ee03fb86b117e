package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/braid/internal/model"
)

type actionList []model.InvalidationAction

func (l actionList) String() string {
	if len(l) == 0 {
		return "(no actions)"
	}
	lines := make([]string, len(l))
	for i, a := range l {
		lines[i] = formatAction(a)
	}
	return strings.Join(lines, "\n")
}

func formatAction(a model.InvalidationAction) string {
	params, err := model.MarshalCanonical(a.Params)
	if err != nil {
		params = []byte("?")
	}
	return fmt.Sprintf("%s  %-16s %-14s %s %s", a.ID, a.Name, a.Type, a.Command, params)
}

// NewActionCommand creates the action command group.
func NewActionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Manage invalidation actions",
	}
	cmd.AddCommand(newActionCreateCommand(rootOpts))
	cmd.AddCommand(newActionAttachCommand(rootOpts))
	cmd.AddCommand(newActionListCommand(rootOpts))
	return cmd
}

func newActionCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var typeName, paramsJSON string

	cmd := &cobra.Command{
		Use:   "create <name> <command> [args...]",
		Short: "Create an invalidation action",
		Long: `Create an invalidation action. The command and every string in its
params are templates: {key} is replaced with the invalidated record's tag
value, {name} with its name and {uri} with its first URI.

For shell actions the remaining arguments become params.args. For
external_event actions --params gives the event payload as a JSON object.
Use -- before arguments that start with a dash.

Example:
  braid action create notify echo {name} invalidated
  braid action create rerun -- make -C /work {site}
  braid action create announce topic --type external_event --params '{"run": "{run}"}'`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			typ, err := model.ParseActionType(typeName)
			if err != nil {
				return out.Fail("invalid action type", err)
			}
			params := model.Object{}
			if paramsJSON != "" {
				if err := params.UnmarshalJSON([]byte(paramsJSON)); err != nil {
					return out.Fail("invalid params", model.NewInvalidArgument(err.Error()))
				}
				if params == nil {
					params = model.Object{}
				}
			}
			if len(args) > 2 {
				if _, ok := params["args"]; ok {
					return out.Fail("invalid params", model.NewInvalidArgument("give arguments or params.args, not both"))
				}
				params["args"] = model.ShellParams(args[2:]...)["args"]
			}

			env, err := rootOpts.openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer env.Close()

			act, err := env.store.CreateAction(cmd.Context(), nil, model.InvalidationAction{
				Name:    args[0],
				Type:    typ,
				Command: args[1],
				Params:  params,
			})
			if err != nil {
				return env.out.Fail("failed to create action", err)
			}
			env.logger.Info("action created", "action_id", act.ID, "name", act.Name, "type", act.Type)
			return env.out.Success(actionList{act})
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "shell", "action type (shell|external_event)")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "params as a JSON object")

	return cmd
}

func newActionAttachCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <action-id> <record-id>...",
		Short: "Attach an action to records",
		Long: `Bind an invalidation action to records, replacing any action they had.
An empty action id ("") detaches.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			ids := make([]int64, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := parseID(raw)
				if err != nil {
					return out.Fail("invalid record id", err)
				}
				ids = append(ids, id)
			}

			env, err := rootOpts.openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			sess, err := env.store.Begin(ctx)
			if err != nil {
				return env.out.Fail("failed to begin session", err)
			}
			defer sess.Close()

			views := recordList{}
			for _, id := range ids {
				rec, err := env.store.SetRecordAction(ctx, sess, id, args[0])
				if err != nil {
					return env.out.Fail(fmt.Sprintf("failed to attach action to record %d", id), err)
				}
				view, err := describe(ctx, env.store, sess, rec)
				if err != nil {
					return env.out.Fail("failed to read record", err)
				}
				views = append(views, view)
			}
			if err := sess.Commit(); err != nil {
				return env.out.Fail("failed to commit", err)
			}
			return env.out.Success(views)
		},
	}
}

func newActionListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List invalidation actions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer env.Close()

			actions, err := env.store.ListActions(cmd.Context(), nil)
			if err != nil {
				return env.out.Fail("failed to list actions", err)
			}
			return env.out.Success(actionList(actions))
		},
	}
}
