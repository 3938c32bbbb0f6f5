package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/manifest"
	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
	"go.uber.org/zap"
)

// SerializeFunc renders a resource as manifest text
type SerializeFunc func(types.Resource) (string, error)

// Dispatcher schedules one resource at a time: it serializes the resource,
// plans its placement, removes it from where it currently runs and applies it
// on the chosen node.
type Dispatcher struct {
	serialize SerializeFunc
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *Metrics
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithSerializer replaces manifest.Serialize
func WithSerializer(fn SerializeFunc) DispatcherOption {
	return func(d *Dispatcher) {
		d.serialize = fn
	}
}

// WithTimeout bounds every remote apply and remove call. Zero means no bound.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithMetrics records outcomes in m
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher that serializes with manifest.Serialize
func NewDispatcher(logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		serialize: manifest.Serialize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScheduleOne places res on a node of the snapshot and dispatches it through
// the fleet. Failures are reported in the result's status, never returned.
func (d *Dispatcher) ScheduleOne(
	ctx context.Context, f fleet.Fleet, snapshot *state.Snapshot, res types.Resource,
) types.ScheduleResult {
	result := d.scheduleOne(ctx, f, snapshot, res)
	d.metrics.observeResult(result)

	if result.Status.IsScheduled() {
		d.logger.Info(
			"resource scheduled",
			zap.Stringer("resource", res),
			zap.String("node", result.NodeName),
		)
	} else {
		d.logger.Warn(
			"failed to schedule resource",
			zap.Stringer("resource", res),
			zap.String("node", result.NodeName),
			zap.Error(result.Err),
		)
	}
	return result
}

func (d *Dispatcher) scheduleOne(
	ctx context.Context, f fleet.Fleet, snapshot *state.Snapshot, res types.Resource,
) types.ScheduleResult {
	text, err := d.serialize(res)
	if err != nil {
		return failed(res, "", &StageError{Stage: ErrSerialization, Err: err})
	}

	plan := BuildPlan(snapshot, res)
	if plan.Next == nil {
		return failed(res, "", ErrNoSchedulableNode)
	}

	if plan.Current != nil {
		d.cleanup(ctx, f, plan.Current)
	}

	target := plan.Next.Name
	ch, ok := f.Find(target)
	if !ok {
		return failed(res, target, fmt.Errorf("%w %s", ErrNoChannel, target))
	}

	d.logger.Debug(
		"applying resource",
		zap.Stringer("resource", res),
		zap.String("node", target),
		zap.Int("load", plan.Next.Load()),
	)

	callCtx, cancel := d.callContext(ctx)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := ch.ApplyResource(callCtx, text)
	d.metrics.observeDispatch(start)
	if err != nil {
		return failed(res, target, &StageError{Stage: ErrDispatch, Err: err})
	}

	return types.ScheduleResult{
		Resource: res,
		NodeName: target,
		Status:   types.Scheduled(formatDetail(stdout, stderr)),
	}
}

// cleanup removes the resource from every node it currently runs on.
// Failures are logged and counted but never fail the resource.
func (d *Dispatcher) cleanup(ctx context.Context, f fleet.Fleet, current *LocatedResource) {
	for _, node := range current.Nodes {
		ch, ok := f.Find(node.Name)
		if !ok {
			d.metrics.cleanupFailed()
			d.logger.Warn(
				"no connection for previous node, skipping removal",
				zap.Stringer("resource", current.Identity),
				zap.String("node", node.Name),
			)
			continue
		}

		callCtx, cancel := d.callContext(ctx)
		err := ch.RemoveResource(callCtx, current.Identity)
		cancel()
		if err != nil {
			d.metrics.cleanupFailed()
			d.logger.Warn(
				"failed to remove resource from previous node",
				zap.Stringer("resource", current.Identity),
				zap.String("node", node.Name),
				zap.Error(err),
			)
			continue
		}

		d.logger.Debug(
			"removed resource from previous node",
			zap.Stringer("resource", current.Identity),
			zap.String("node", node.Name),
		)
	}
}

func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

func failed(res types.Resource, node string, err error) types.ScheduleResult {
	return types.ScheduleResult{
		Resource: res,
		NodeName: node,
		Status:   types.ScheduleError(err.Error()),
		Err:      err,
	}
}

// formatDetail joins the agent's output into one line
func formatDetail(stdout, stderr string) string {
	detail := stdout
	if stderr != "" {
		detail += " ( stderr: " + stderr + " )"
	}
	return strings.ReplaceAll(detail, "\n", `\n`)
}
