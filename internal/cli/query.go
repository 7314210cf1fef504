package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/server"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Args string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <table> <op>",
		Short: "Run one table operation against the store",
		Long: fmt.Sprintf(`Run a table operation directly against the configured store.

op is one of: %v

Arguments use the same JSON shape as the HTTP table API.

Example:
  livedoc query tickets findMany --args '{"where":{"status":"open"},"include":["user"]}'
  livedoc query tickets aggregate --args '{"groupBy":["user"],"sum":["stock"],"populate":["user"]}'
  livedoc query users create --args '{"data":{"name":"Ada"}}'`, server.Operations),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "operation arguments as JSON")

	return cmd
}

func runQuery(opts *QueryOptions, table, op string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var raw map[string]any
	if err := json.Unmarshal([]byte(opts.Args), &raw); err != nil {
		return formatter.Fail(ExitCommandError, CodeQuery, "invalid --args JSON", err)
	}

	ctx := cmd.Context()
	env, err := openEnvironment(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer env.close()

	formatter.VerboseLog("Running %s on %s", op, table)
	result, err := server.Execute(ctx, env.tablesDB(), table, op, raw)
	if err != nil {
		return formatter.Fail(ExitFailure, CodeQuery, fmt.Sprintf("%s %s failed", table, op), err)
	}
	return formatter.Success(result)
}
