package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/fixtures"
)

// SeedResult is the output of the seed command.
type SeedResult struct {
	Inserted  int               `json:"inserted"`
	Documents []fixtures.Seeded `json:"documents"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Insert fixture documents",
		Long: `Insert the documents of a YAML fixture file through the table clients.

Tables are seeded in file order. A document may carry a _key; later
string values of the form "@key" are replaced with that document's id.

Example:
  livedoc seed ./fixtures/tickets.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	sets, err := fixtures.Load(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, CodeFixture, "failed to load fixtures", err)
	}

	ctx := cmd.Context()
	env, err := openEnvironment(ctx, opts, formatter)
	if err != nil {
		return err
	}
	defer env.close()

	seeded, err := fixtures.Apply(ctx, env.tablesDB(), sets)
	for _, s := range seeded {
		formatter.VerboseLog("Inserted %s %s", s.Table, s.ID)
	}
	if err != nil {
		return formatter.Fail(ExitFailure, CodeFixture,
			fmt.Sprintf("seeding stopped after %d document(s)", len(seeded)), err)
	}

	result := SeedResult{Inserted: len(seeded), Documents: seeded}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("✓ Seeded %d document(s) from %s", len(seeded), path))
}
