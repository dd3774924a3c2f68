package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/any-hub/any-cli/internal/server"
	"github.com/any-hub/any-cli/internal/server/routes"
)

func (a *App) serveCommand() *cobra.Command {
	var (
		port     int
		upstream string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "以 npm registry 形式对外提供本地缓存",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Serve.ListenPort = port
			}
			if cmd.Flags().Changed("upstream") {
				a.cfg.Serve.Upstream = upstream
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Serve(ctx, server.Options{
				Config:   a.cfg,
				Logger:   a.logger,
				Register: routes.RegisterDiagnosticsRoutes,
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "监听端口，覆盖 Serve.ListenPort")
	cmd.Flags().StringVar(&upstream, "upstream", "", "未命中时回源的 registry 地址")
	return cmd
}
