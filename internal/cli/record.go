package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

// recordAddOptions holds flags for "record add".
type recordAddOptions struct {
	kind        string
	tags        []string
	uris        []string
	derivedFrom []string
	actionID    string
}

// NewRecordCommand creates the record command group.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage records",
	}
	cmd.AddCommand(newRecordAddCommand(rootOpts))
	return cmd
}

func newRecordAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &recordAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a record with tags, URIs and predecessors",
		Long: `Add a record. Everything given on the command line is written in one
session: if any part fails, nothing is stored.

Tags are key=value; key:TYPE=value sets the tag type (STRING, INTEGER,
FLOAT or NONE).

Example:
  braid record add config.yaml --kind fact --tag site=ornl --tag epoch:INTEGER=10
  braid record add output.h5 --kind data --derived-from 1 --uri file:///data/output.h5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordAdd(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "record", "record kind (record|fact|data|model)")
	cmd.Flags().StringArrayVarP(&opts.tags, "tag", "t", nil, "tag as key=value or key:TYPE=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.uris, "uri", "u", nil, "URI (repeatable, first is primary)")
	cmd.Flags().StringSliceVarP(&opts.derivedFrom, "derived-from", "d", nil, "predecessor record ids")
	cmd.Flags().StringVar(&opts.actionID, "action", "", "invalidation action id to attach")

	return cmd
}

func runRecordAdd(rootOpts *RootOptions, opts *recordAddOptions, name string, cmd *cobra.Command) error {
	kind, err := model.ParseKind(opts.kind)
	if err != nil {
		return rootOpts.formatter(cmd).Fail("invalid kind", err)
	}
	type tagArg struct {
		key, value string
		typ        model.TagType
	}
	tags := make([]tagArg, 0, len(opts.tags))
	for _, raw := range opts.tags {
		key, value, typ, err := parseTagFlag(raw)
		if err != nil {
			return rootOpts.formatter(cmd).Fail("invalid tag", err)
		}
		tags = append(tags, tagArg{key, value, typ})
	}
	preds := make([]int64, 0, len(opts.derivedFrom))
	for _, raw := range opts.derivedFrom {
		id, err := parseID(raw)
		if err != nil {
			return rootOpts.formatter(cmd).Fail("invalid predecessor", err)
		}
		preds = append(preds, id)
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

	rec, err := env.store.CreateRecord(ctx, sess, model.Record{Name: name, Kind: kind, ActionID: opts.actionID})
	if err != nil {
		return env.out.Fail("failed to create record", err)
	}
	for _, t := range tags {
		if _, err := env.store.AddTag(ctx, sess, rec.ID, t.key, t.value, t.typ); err != nil {
			return env.out.Fail("failed to add tag", err)
		}
	}
	for _, u := range opts.uris {
		if _, err := env.store.AddURI(ctx, sess, rec.ID, u); err != nil {
			return env.out.Fail("failed to add uri", err)
		}
	}
	for _, p := range preds {
		if _, err := env.store.AddDerivation(ctx, sess, p, rec.ID); err != nil {
			return env.out.Fail("failed to add derivation", err)
		}
	}

	view, err := describe(ctx, env.store, sess, rec)
	if err != nil {
		return env.out.Fail("failed to read record", err)
	}
	if err := sess.Commit(); err != nil {
		return env.out.Fail("failed to commit", err)
	}

	env.logger.Info("record added", "record_id", rec.ID, "name", rec.Name, "kind", rec.Kind)
	return env.out.Success(view)
}

// parseTagFlag splits key=value or key:TYPE=value.
func parseTagFlag(raw string) (key, value string, typ model.TagType, err error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || key == "" {
		return "", "", 0, model.NewInvalidArgument(fmt.Sprintf("tag %q must be key=value", raw))
	}
	typ = model.TagString
	if k, t, hasType := strings.Cut(key, ":"); hasType {
		typ, err = model.ParseTagType(t)
		if err != nil {
			return "", "", 0, err
		}
		key = k
	}
	return key, value, typ, nil
}

// NewTagCommand creates the tag command.
func NewTagCommand(rootOpts *RootOptions) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "tag <record-id> <key> <value>",
		Short: "Add a tag to a record",
		Long: `Append a tag to a record. Tags are append-only; adding an existing key
again creates a second tag.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return out.Fail("invalid record id", err)
			}
			typ, err := model.ParseTagType(typeName)
			if err != nil {
				return out.Fail("invalid tag type", err)
			}
			return withRecord(rootOpts, cmd, id, "failed to add tag", func(env *env, sess *store.Session) error {
				_, err := env.store.AddTag(cmd.Context(), sess, id, args[1], args[2], typ)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "STRING", "tag type (STRING|INTEGER|FLOAT|NONE)")

	return cmd
}

// NewURICommand creates the uri command.
func NewURICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "uri <record-id> <uri>",
		Short:         "Add a URI to a record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return rootOpts.formatter(cmd).Fail("invalid record id", err)
			}
			return withRecord(rootOpts, cmd, id, "failed to add uri", func(env *env, sess *store.Session) error {
				_, err := env.store.AddURI(cmd.Context(), sess, id, args[1])
				return err
			})
		},
	}
}

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "derive <predecessor-id> <successor-id>",
		Short: "Record that successor was derived from predecessor",
		Long: `Add a derivation edge. Adding an existing edge again is a no-op.
Facts cannot be derived from other records.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			pred, err := parseID(args[0])
			if err != nil {
				return out.Fail("invalid predecessor id", err)
			}
			succ, err := parseID(args[1])
			if err != nil {
				return out.Fail("invalid successor id", err)
			}
			return withRecord(rootOpts, cmd, succ, "failed to add derivation", func(env *env, sess *store.Session) error {
				_, err := env.store.AddDerivation(cmd.Context(), sess, pred, succ)
				return err
			})
		},
	}
}

// withRecord runs fn in a session and prints the record afterwards.
func withRecord(rootOpts *RootOptions, cmd *cobra.Command, id int64, failMsg string, fn func(*env, *store.Session) error) error {
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

	if err := fn(env, sess); err != nil {
		return env.out.Fail(failMsg, err)
	}
	rec, found, err := env.store.GetRecord(ctx, sess, id)
	if err != nil {
		return env.out.Fail("failed to read record", err)
	}
	if !found {
		return env.out.Fail("failed to read record", model.NewReferentialError(fmt.Sprintf("record %d does not exist", id), nil))
	}
	view, err := describe(ctx, env.store, sess, rec)
	if err != nil {
		return env.out.Fail("failed to read record", err)
	}
	if err := sess.Commit(); err != nil {
		return env.out.Fail("failed to commit", err)
	}
	return env.out.Success(view)
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <key> <value>",
		Short: "Find records by tag value",
		Long: `List records carrying a tag with the given key and value. Values are
compared as text: 10 matches a tag stored as "10" but not "10.0".`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			recs, err := store.Collect(env.store.FindByTagValue(ctx, nil, args[0], args[1]))
			if err != nil {
				return env.out.Fail("failed to search tags", err)
			}
			views, err := describeAll(ctx, env.store, nil, recs)
			if err != nil {
				return env.out.Fail("failed to read records", err)
			}
			return env.out.Success(views)
		},
	}
}
