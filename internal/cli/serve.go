package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ytget/streamproxy/internal/config"
	"github.com/ytget/streamproxy/internal/logger"
	"github.com/ytget/streamproxy/internal/server"
)

var serveFlagKeys = map[string]string{
	"host": config.KeyServerHost,
	"port": config.KeyServerPort,
}

func serveFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Address to bind")
	cmd.Flags().IntP("port", "P", 0, "Port to listen on (default $PORT or 5000)")
}

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stream API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  a.serve,
	}
	serveFlags(cmd)
	return cmd
}

func (a *app) serve(cmd *cobra.Command, _ []string) error {
	resolver, log, closer, err := a.pipeline()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithComponent(logger.ComponentApp).Info("starting", map[string]interface{}{
		"addr":      a.cfg.Addr(),
		"extractor": resolver.ExtractorName(),
		"policy":    resolver.Policy().String(),
	})

	srv := server.New(resolver, server.Config{
		Addr:            a.cfg.Addr(),
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, log)
	return srv.Run(ctx)
}
