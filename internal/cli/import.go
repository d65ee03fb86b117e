package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/braid/internal/manifest"
	"github.com/roach88/braid/internal/model"
)

// ImportResult summarizes an import.
type ImportResult struct {
	File        string           `json:"file"`
	Actions     int              `json:"actions"`
	Records     []int64          `json:"records"`
	Derivations int              `json:"derivations"`
	Refs        map[string]int64 `json:"refs"`
}

func (r ImportResult) String() string {
	return fmt.Sprintf("imported %s: %d actions, %d records %s, %d derivations",
		r.File, r.Actions, len(r.Records), formatIDs(r.Records), r.Derivations)
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <manifest>",
		Short: "Import records and actions from a YAML, JSON or CUE manifest",
		Long: `Import a manifest of invalidation actions and records. Records may
nest their derivations, refer to each other by ref and to stored records by
id. The import is atomic: on any error nothing is stored.

Example manifest (YAML):
  actions:
    - name: notify
      command: echo
      args: ["{name}", "invalidated"]
  records:
    - name: config.yaml
      ref: cfg
      kind: fact
      tags: {site: ornl, epoch: 10}
      derivations:
        - name: output.h5
          kind: data
          action: notify

The database is created if it does not exist.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			m, err := manifest.Load(args[0])
			if err != nil {
				return out.Fail("failed to load manifest", model.NewInvalidArgument(err.Error()))
			}
			out.VerboseLog("Loaded %d actions and %d top-level records from %s", len(m.Actions), len(m.Records), args[0])

			env, err := rootOpts.openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := manifest.Apply(cmd.Context(), env.store, nil, m, env.logger)
			if err != nil {
				return env.out.Fail("failed to import manifest", err)
			}

			ids := make([]int64, len(res.Records))
			for i, rec := range res.Records {
				ids[i] = rec.ID
			}
			return env.out.Success(ImportResult{
				File:        args[0],
				Actions:     len(res.Actions),
				Records:     ids,
				Derivations: len(res.Derivations),
				Refs:        res.Refs,
			})
		},
	}
}
