// Package agentcli is the command surface of podfleet-agent, the program that
// runs on every node. The scheduler reaches it either by running the one-shot
// commands over SSH or through the HTTP server started by serve.
package agentcli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/danpasecinic/podfleet/internal/agent"
	"github.com/danpasecinic/podfleet/internal/agent/docker"
	"github.com/danpasecinic/podfleet/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errReported marks an error whose text was already written to stderr
var errReported = errors.New("error already reported")

var (
	logLevel string
)

// Replaced in tests.
var (
	openRuntime = func(ctx context.Context) (agent.Runtime, func() error, error) {
		cli, err := docker.NewClient()
		if err != nil {
			return nil, nil, err
		}
		if err := cli.Ping(ctx); err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		return cli, cli.Close, nil
	}

	hostProbe agent.HostProbe = agent.ProbeHost
)

var rootCmd = &cobra.Command{
	Use:   "podfleet-agent",
	Short: "Podfleet node agent",
	Long: `podfleet-agent runs pods and deployments on this node as labelled Docker
containers and reports the node's telemetry to the podfleet scheduler.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the agent CLI. Errors are written to stderr once.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errReported) {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn, error (default info for serve, error otherwise)",
	)
}

// newLogger builds the command's logger, falling back to level when no
// --log-level was given
func newLogger(level string) (*zap.Logger, error) {
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(level, false)
}

// newAgent opens the container runtime and builds an agent on it. The
// returned func releases the runtime.
func newAgent(ctx context.Context, logger *zap.Logger, metrics *agent.Metrics) (*agent.Agent, func(), error) {
	rt, closeRuntime, err := openRuntime(ctx)
	if err != nil {
		return nil, nil, err
	}

	release := func() {
		if err := closeRuntime(); err != nil {
			logger.Warn("failed to close container runtime", zap.Error(err))
		}
	}
	return agent.NewAgent(rt, hostProbe, logger, metrics), release, nil
}
