package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/docstore"
	"github.com/roach88/livedoc/internal/realtime"
	"github.com/roach88/livedoc/internal/server"
	"github.com/roach88/livedoc/internal/tables"
)

// shutdownTimeout bounds how long in-flight HTTP requests may run after a
// shutdown signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and subscription server",
		Long: `Start the livedoc server.

The server loads the schema, opens the configured store, starts the
mutation broadcaster and listens for HTTP requests:

  GET  /healthz              store health
  GET  /subscribe?table=...  WebSocket live query
  POST /mutations            publish a changed document
  POST /api/{table}/{op}     table operations

Example:
  livedoc serve
  livedoc serve --addr :9090 --config ./livedoc.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	env, err := openEnvironment(ctx, opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer env.close()
	logger := env.logger

	addr := env.cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	var coord *realtime.Coordinator
	db := env.tablesDB(tables.WithMutationHook(func(table string, doc docstore.Document) {
		coord.Publish(table, doc)
	}))
	coord = realtime.NewCoordinator(env.schema, db,
		realtime.WithLogger(logger),
		realtime.WithMaxConcurrentQueries(env.cfg.Realtime.MaxConcurrentQueries),
	)
	transport := realtime.NewTransport(coord, logger,
		realtime.WithWriteTimeout(env.cfg.Realtime.WriteTimeout),
	)
	srv := server.New(addr, db, coord, transport, env.store, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Infow("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		_ = coord.Run(context.WithoutCancel(ctx))
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "livedoc listening on %s (%s store)\n", addr, env.cfg.Store.Driver)

	var runErr error
	select {
	case runErr = <-serveErr:
		cancel()
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("http shutdown failed", "error", err)
	}
	transport.CloseAll()
	coord.Stop()
	<-coordDone

	if runErr != nil {
		return formatter.Fail(ExitFailure, CodeServer, "server error", runErr)
	}
	logger.Infow("server stopped gracefully")
	return nil
}
