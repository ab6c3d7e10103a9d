package servecmder

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/lenschat/cmd/lenschat/cmdutil"
	"github.com/papercomputeco/lenschat/pkg/logger"
	"github.com/papercomputeco/lenschat/pkg/metrics"
	"github.com/papercomputeco/lenschat/pkg/session"
	"github.com/papercomputeco/lenschat/server"
)

const serveLongDesc string = `Serve the browser chat page and the session JSON API.

Each browser tab gets its own session with an independent transcript
and pending image. Sessions idle for longer than session_idle_timeout
are discarded. Prometheus metrics are exposed on /metrics.

Examples:
  lenschat serve
  lenschat serve --listen 127.0.0.1:8080 --transport sdk`

const serveShortDesc string = "Run the chat web server"

type serveCommander struct {
	flags      *cmdutil.GlobalFlags
	listenAddr string
}

func NewServeCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	cmder := &serveCommander{flags: flags}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.listenAddr, "listen", "l", "", "Address to listen on (default :8501)")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.flags.Load(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.ListenAddr = c.listenAddr
	}

	log := logger.New(logger.Config{Debug: cfg.Debug, JSON: cfg.LogJSON})
	defer log.Sync()

	client, err := cmdutil.NewClient(cfg, log)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	sessions := session.NewManager(cfg.Session(m), log)

	srv := server.New(server.Config{
		ListenAddr:    cfg.ListenAddr,
		MaxImageBytes: cfg.MaxImageBytes,
	}, sessions, client, m, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("lenschat server configured",
		zap.String("model", client.Model()),
		zap.String("transport", cfg.Transport),
		zap.Duration("session_idle_timeout", cfg.SessionIdleTimeout),
	)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
