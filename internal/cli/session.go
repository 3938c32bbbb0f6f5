package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/danpasecinic/podfleet/internal/config"
	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/logging"
	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// clusterFleet is a fleet whose channels the session owns
type clusterFleet interface {
	fleet.Fleet
	Close() error
}

// Replaced in tests.
var (
	loadConfig = config.Load

	connectFleet = func(
		ctx context.Context, cluster *config.Cluster, timeout time.Duration, logger *zap.Logger,
	) (clusterFleet, []error) {
		return fleet.Connect(ctx, cluster, timeout, logger)
	}
)

// session is the loaded configuration and the connected fleet of one command
type session struct {
	cfg     *config.Config
	cluster *config.Cluster
	logger  *zap.Logger
	fleet   clusterFleet
}

// openSession loads the configuration, builds the logger and connects to every
// node of the selected cluster. Nodes that fail to connect are reported on
// stderr and left out.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if IsVerbose() {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}

	cluster, err := cfg.ResolveCluster(clusterName)
	if err != nil {
		return nil, err
	}

	f, errs := connectFleet(cmd.Context(), cluster, cfg.ConnectTimeout, logger)
	for _, err := range errs {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err)
	}

	return &session{
		cfg:     cfg,
		cluster: cluster,
		logger:  logger,
		fleet:   f,
	}, nil
}

// refresh builds a snapshot of every connected node
func (s *session) refresh(ctx context.Context) (*state.Snapshot, error) {
	refresher := state.NewRefresher(s.fleet, s.cfg.RefreshTimeout, s.logger)
	snapshot, err := refresher.Refresh(ctx, s.fleet.Names())
	if err != nil {
		return nil, fmt.Errorf("failed to refresh cluster state: %w", err)
	}
	return snapshot, nil
}

func (s *session) Close() {
	if err := s.fleet.Close(); err != nil {
		s.logger.Warn("failed to close node connections", zap.Error(err))
	}
	_ = s.logger.Sync()
}
