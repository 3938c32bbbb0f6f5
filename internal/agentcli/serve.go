package agentcli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danpasecinic/podfleet/internal/agent"
	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveNodeName        string
	serveAddress         string
	servePort            int
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent API over HTTP",
	Long: `Serve apply, remove and info over HTTP for nodes configured with the http
transport. Prometheus metrics are exposed on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger("info")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		nodeName := serveNodeName
		if nodeName == "" {
			if nodeName, err = os.Hostname(); err != nil {
				return fmt.Errorf("failed to resolve node name: %w", err)
			}
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		a, release, err := newAgent(cmd.Context(), logger, agent.NewMetrics(reg))
		if err != nil {
			return err
		}
		defer release()

		e := newEcho(agent.NewServer(nodeName, a, reg))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := net.JoinHostPort(serveAddress, strconv.Itoa(servePort))
		errCh := make(chan error, 1)
		go func() {
			logger.Info("agent starting", zap.String("addr", addr), zap.String("node", nodeName))
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("agent server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutdown signal received, beginning graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", zap.Error(err))
			return err
		}

		logger.Info("agent stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveNodeName, "node-name", "", "name reported on /health (default is the hostname)")
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "address to listen on (default all interfaces)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", fleet.DefaultAgentPort, "port to listen on")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
}

// newEcho builds the HTTP server with the agent routes registered
func newEcho(server *agent.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server.RegisterRoutes(e)
	return e
}
