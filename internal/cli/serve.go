package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyike/agenttrader/internal/api"
	"github.com/dyike/agenttrader/internal/debug"
	"github.com/dyike/agenttrader/pkg/app"
)

func newServeCmd(o *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Long: `Serve POST /analyze, POST /analyze/stream, GET /health and the run history.
The config file is watched and the engine is rebuilt when it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := o.manager()
			if err != nil {
				return err
			}
			rt, err := app.NewRuntime(mgr, app.WithBuilder(o.builder()))
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := rt.Engine().Config
			if err := debug.Init(ctx, &cfg); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.HTTPAddr
			}

			fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprintf("agenttrader %s listening on %s (config %s)", Version, addr, mgr.Path())))
			if url := debug.URL(&cfg); url != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "eino debug UI: "+url)
			}

			srv := api.NewServer(func() api.Service { return rt.Analyzer() })
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (http_addr from config if not provided)")
	return cmd
}
