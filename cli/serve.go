package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragplane/ragplane/engine/infra/server"
	"github.com/ragplane/ragplane/pkg/config"
	"github.com/ragplane/ragplane/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control plane",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logger.NewLogger(&logger.Config{
				Level:     logger.LogLevel(cfg.Log.Level),
				Output:    os.Stdout,
				JSON:      cfg.Log.JSON,
				AddSource: cfg.Log.Source,
			})
			logger.SetDefault(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logger.ContextWithLogger(ctx, log)
			ctx = config.ContextWithConfig(ctx, cfg)

			state, err := server.NewState(ctx, cfg)
			if err != nil {
				return err
			}
			return server.New(ctx, cfg, state).Run(ctx)
		},
	}
}
