// Package scheduler places Pod and Deployment resources on the nodes of a
// cluster snapshot and dispatches them through a fleet.
package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
)

// Scheduler schedules a batch of resources against one snapshot.
type Scheduler interface {
	// Schedule returns one result per resource, in input order. A failing
	// resource never stops the batch; the returned error is reserved for
	// resources the scheduler cannot handle at all.
	Schedule(
		ctx context.Context, f fleet.Fleet, snapshot *state.Snapshot, resources []types.Resource,
	) ([]types.ScheduleResult, error)
}

// DefaultScheduler runs the dispatcher over a batch sequentially, so every
// placement in a batch reads the same snapshot.
type DefaultScheduler struct {
	dispatcher *Dispatcher
}

// NewDefaultScheduler creates a batch scheduler around d
func NewDefaultScheduler(d *Dispatcher) *DefaultScheduler {
	return &DefaultScheduler{dispatcher: d}
}

// Schedule implements Scheduler. On an unknown kind it returns the results
// gathered so far together with ErrUnknownKind.
func (s *DefaultScheduler) Schedule(
	ctx context.Context, f fleet.Fleet, snapshot *state.Snapshot, resources []types.Resource,
) ([]types.ScheduleResult, error) {
	results := make([]types.ScheduleResult, 0, len(resources))

	for i, res := range resources {
		switch res.Kind {
		case types.KindPod, types.KindDeployment:
			results = append(results, s.dispatcher.ScheduleOne(ctx, f, snapshot, res))
		default:
			return results, fmt.Errorf("resource %d: %w %q", i, ErrUnknownKind, res.Kind)
		}
	}

	return results, nil
}

// FormatSummary renders one line per result:
//
//	<kind>/<namespace>/<name> -> <node>: <SCHEDULED|ERROR> <text>
//
// A result without a target node shows "<none>".
func FormatSummary(results []types.ScheduleResult) string {
	var b strings.Builder
	for _, res := range results {
		node := res.NodeName
		if node == "" {
			node = "<none>"
		}
		fmt.Fprintf(
			&b, "%s -> %s: %s %s\n",
			res.Resource.Identity(), node, strings.ToUpper(string(res.Status.Phase)), res.Status.Message,
		)
	}
	return b.String()
}

// CountFailed returns the number of results with an Error status
func CountFailed(results []types.ScheduleResult) int {
	n := 0
	for _, res := range results {
		if !res.Status.IsScheduled() {
			n++
		}
	}
	return n
}
