package state

import (
	"context"
	"time"

	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Refresher builds snapshots by asking every node for its telemetry
type Refresher struct {
	fleet   fleet.Fleet
	timeout time.Duration
	logger  *zap.Logger
}

// NewRefresher creates a refresher. timeout bounds each node's query.
func NewRefresher(f fleet.Fleet, timeout time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		fleet:   f,
		timeout: timeout,
		logger:  logger,
	}
}

// Refresh queries the given nodes concurrently and returns a snapshot in the
// same order. A node that has no channel or does not answer in time is marked
// Unhealthy with no telemetry; the refresh itself only fails if ctx is done.
func (r *Refresher) Refresh(ctx context.Context, nodeNames []string) (*Snapshot, error) {
	nodes := make([]types.NodeState, len(nodeNames))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range nodeNames {
		g.Go(
			func() error {
				nodes[i] = r.refreshNode(gctx, name)
				return nil
			},
		)
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := NewSnapshot(nodes)
	r.logger.Debug(
		"cluster state refreshed",
		zap.Int("nodes", snapshot.Len()),
		zap.Int("healthy", snapshot.HealthyCount()),
	)
	return snapshot, nil
}

func (r *Refresher) refreshNode(ctx context.Context, name string) types.NodeState {
	unhealthy := types.NodeState{Name: name, Health: types.NodeUnhealthy}

	ch, ok := r.fleet.Find(name)
	if !ok {
		r.logger.Warn("no connection for node, marking unhealthy", zap.String("node", name))
		return unhealthy
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	info, err := ch.SystemInfo(ctx)
	if err != nil {
		r.logger.Warn("failed to get system info, marking unhealthy", zap.String("node", name), zap.Error(err))
		return unhealthy
	}

	return types.NodeState{Name: name, Health: types.NodeHealthy, Info: info}
}
