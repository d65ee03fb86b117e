package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/braid/internal/model"
)

// CreateResult is the output of the create command.
type CreateResult struct {
	Database string `json:"database"`
	Backup   string `json:"backup,omitempty"`
}

func (r CreateResult) String() string {
	if r.Backup != "" {
		return fmt.Sprintf("moved %s -> %s\ncreated %s", r.Database, r.Backup, r.Database)
	}
	return fmt.Sprintf("created %s", r.Database)
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var backup bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create (or upgrade) the database",
		Long: `Create the BRAID database and apply the schema. Running create on an
existing database is safe; with -B the existing file is first moved to
<db>.NNN.bak and a fresh database is created.

Example:
  braid create --db ./braid.db
  braid create --db ./braid.db -B`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(rootOpts, backup, cmd)
		},
	}

	cmd.Flags().BoolVarP(&backup, "backup", "B", false, "move an existing database to a backup first")

	return cmd
}

func runCreate(opts *RootOptions, backup bool, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return out.Fail("failed to load config", model.NewInvalidArgument(err.Error()))
	}

	result := CreateResult{Database: cfg.Database}
	if backup {
		if _, err := os.Stat(cfg.Database); err == nil {
			bak, err := nextBackup(cfg.Database)
			if err != nil {
				return out.Fail("failed to pick backup name", err)
			}
			if err := os.Rename(cfg.Database, bak); err != nil {
				return out.Fail("failed to move database", err)
			}
			result.Backup = bak
		} else if !errors.Is(err, os.ErrNotExist) {
			return out.Fail("failed to stat database", err)
		}
	}

	env, err := opts.openEnv(cmd, false)
	if err != nil {
		return err
	}
	env.Close()

	out.VerboseLog("Database ready: %s", cfg.Database)
	return out.Success(result)
}

// nextBackup returns the first unused name of the form path.NNN.bak.
func nextBackup(path string) (string, error) {
	for i := 1; i < 1000; i++ {
		name := fmt.Sprintf("%s.%03d.bak", path, i)
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
	}
	return "", fmt.Errorf("no free backup name for %s", path)
}

// NewPrintCommand creates the print command.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	var rootID string

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print every record with predecessors, URIs and tags",
		Long: `Print every record in id order. Each line shows the record id, name,
creation time and predecessor ids, followed by its URIs and tags. STRING
tags are quoted.

With --root, print only what one root invalidation took down: its cause,
the invalidations its cascade created, and the records bound to any of them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := cmd.Context()
			if rootID != "" {
				view, err := describeCascade(ctx, env.store, rootID)
				if err != nil {
					return env.out.Fail("failed to read cascade", err)
				}
				return env.out.Success(view)
			}

			recs, err := env.store.ListRecords(ctx, nil)
			if err != nil {
				return env.out.Fail("failed to list records", err)
			}
			views, err := describeAll(ctx, env.store, nil, recs)
			if err != nil {
				return env.out.Fail("failed to read records", err)
			}
			return env.out.Success(views)
		},
	}

	cmd.Flags().StringVar(&rootID, "root", "", "Only records invalidated by this root invalidation's cascade")
	return cmd
}
