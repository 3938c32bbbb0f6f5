package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/fleet/fleettest"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func newTestDispatcher(opts ...DispatcherOption) *Dispatcher {
	return NewDispatcher(zap.NewNop(), opts...)
}

// failOnUse makes any fleet access fail the test
func failOnUse(t *testing.T, f *fleettest.Fleet) {
	t.Helper()
	f.OnUse = func(c fleettest.Call) {
		t.Fatalf("unexpected fleet call: %s on %q", c.Op, c.Node)
	}
}

func TestDispatcher_PicksLeastLoadedNode(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1")
	f.AddNode("node-2").WithApply(fleettest.ApplyResult{Stdout: "pod/web.default created\n"})

	snap := snapshotOf(loadedNode("node-1", 3), loadedNode("node-2", 1))
	res := newTestDispatcher().ScheduleOne(context.Background(), f, snap, testPod("web", "default"))

	if !res.Status.IsScheduled() {
		t.Fatalf("status = %+v, want Scheduled", res.Status)
	}
	if res.NodeName != "node-2" {
		t.Errorf("NodeName = %s, want node-2", res.NodeName)
	}
	if res.Status.Message != `pod/web.default created\n` {
		t.Errorf("detail = %q", res.Status.Message)
	}

	applies := f.CallsOf(fleettest.OpApply)
	if len(applies) != 1 || applies[0].Node != "node-2" {
		t.Fatalf("apply calls = %+v, want one on node-2", applies)
	}
	if !strings.Contains(applies[0].Manifest, "kind: Pod") || !strings.Contains(applies[0].Manifest, "name: web") {
		t.Errorf("manifest = %q", applies[0].Manifest)
	}
	if removes := f.CallsOf(fleettest.OpRemove); len(removes) != 0 {
		t.Errorf("remove calls = %+v, want none for a new pod", removes)
	}
}

func TestDispatcher_SerializationFailure(t *testing.T) {
	tests := []struct {
		name    string
		res     types.Resource
		opts    []DispatcherOption
		wantMsg string
	}{
		{
			name: "pod without payload",
			res:  types.Resource{Kind: types.KindPod},
		},
		{
			name: "deployment without payload",
			res:  types.Resource{Kind: types.KindDeployment},
		},
		{
			name: "serializer error",
			res:  testPod("web", "default"),
			opts: []DispatcherOption{
				WithSerializer(
					func(types.Resource) (string, error) {
						return "", errors.New("cannot encode field spec")
					},
				),
			},
			wantMsg: "cannot encode field spec",
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				f := fleettest.NewFleet()
				f.AddNode("node-1")
				failOnUse(t, f)

				snap := snapshotOf(loadedNode("node-1", 0))
				res := newTestDispatcher(tt.opts...).ScheduleOne(context.Background(), f, snap, tt.res)

				if res.Status.Phase != types.PhaseError {
					t.Fatalf("phase = %s, want Error", res.Status.Phase)
				}
				if res.NodeName != "" {
					t.Errorf("NodeName = %q, want empty", res.NodeName)
				}
				if !errors.Is(res.Err, ErrSerialization) {
					t.Errorf("Err = %v, want ErrSerialization", res.Err)
				}
				if tt.wantMsg != "" && res.Status.Message != tt.wantMsg {
					t.Errorf("message = %q, want %q", res.Status.Message, tt.wantMsg)
				}
				if len(f.Calls()) != 0 {
					t.Errorf("fleet calls = %+v, want none", f.Calls())
				}
			},
		)
	}
}

func TestDispatcher_EmptyCluster(t *testing.T) {
	f := fleettest.NewFleet()
	failOnUse(t, f)

	res := newTestDispatcher().ScheduleOne(context.Background(), f, snapshotOf(), testPod("web", "default"))

	if res.Status != types.ScheduleError("failed to find schedulable node") {
		t.Errorf("status = %+v", res.Status)
	}
	if res.NodeName != "" {
		t.Errorf("NodeName = %q, want empty", res.NodeName)
	}
	if !errors.Is(res.Err, ErrNoSchedulableNode) {
		t.Errorf("Err = %v, want ErrNoSchedulableNode", res.Err)
	}
}

func TestDispatcher_NoChannelForTarget(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1")

	snap := snapshotOf(loadedNode("node-1", 4), loadedNode("node-2", 0))
	res := newTestDispatcher().ScheduleOne(context.Background(), f, snap, testPod("web", "default"))

	if res.Status != types.ScheduleError("no connection for node node-2") {
		t.Errorf("status = %+v", res.Status)
	}
	if res.NodeName != "node-2" {
		t.Errorf("NodeName = %q, want node-2", res.NodeName)
	}
	if !errors.Is(res.Err, ErrNoChannel) {
		t.Errorf("Err = %v, want ErrNoChannel", res.Err)
	}
	if applies := f.CallsOf(fleettest.OpApply); len(applies) != 0 {
		t.Errorf("apply calls = %+v, want none", applies)
	}
}

func TestDispatcher_ApplyFailure(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1").WithApply(
		fleettest.ApplyResult{Err: &fleet.RemoteError{Status: 1, Stderr: "pull access denied for privateimage"}},
	)

	snap := snapshotOf(loadedNode("node-1", 0))
	res := newTestDispatcher().ScheduleOne(context.Background(), f, snap, testPod("web", "default"))

	if res.Status != types.ScheduleError("pull access denied for privateimage") {
		t.Errorf("status = %+v", res.Status)
	}
	if res.NodeName != "node-1" {
		t.Errorf("NodeName = %q, want node-1", res.NodeName)
	}
	if !errors.Is(res.Err, ErrDispatch) || !errors.Is(res.Err, fleet.ErrRemoteCommand) {
		t.Errorf("Err = %v, want ErrDispatch wrapping ErrRemoteCommand", res.Err)
	}
}

func TestDispatcher_CleanupFailureStillSchedules(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1").WithRemoveError(errors.New("connection reset by peer"))
	f.AddNode("node-2").WithApply(fleettest.ApplyResult{Stdout: "pod/web.default created"})

	snap := snapshotOf(
		hostingNode("node-1", instance("w1", "web", "default", ""), instance("x1", "x", "other", "")),
		loadedNode("node-2", 0),
	)
	metrics := NewMetrics(prometheus.NewRegistry())

	res := newTestDispatcher(WithMetrics(metrics)).ScheduleOne(context.Background(), f, snap, testPod("web", "default"))

	if !res.Status.IsScheduled() {
		t.Fatalf("status = %+v, want Scheduled", res.Status)
	}
	if res.NodeName != "node-2" {
		t.Errorf("NodeName = %s, want node-2", res.NodeName)
	}

	var ops []string
	for _, c := range f.Calls() {
		if c.Op != fleettest.OpFind {
			ops = append(ops, string(c.Op)+"@"+c.Node)
		}
	}
	if strings.Join(ops, ",") != "remove@node-1,apply@node-2" {
		t.Errorf("calls = %v, want remove on node-1 then apply on node-2", ops)
	}

	removes := f.CallsOf(fleettest.OpRemove)
	want := types.ResourceIdentity{Kind: types.KindPod, Name: "web", Namespace: "default"}
	if removes[0].Identity != want {
		t.Errorf("removed %v, want %v", removes[0].Identity, want)
	}

	if got := testutil.ToFloat64(metrics.cleanupFailures); got != 1 {
		t.Errorf("cleanup failures = %v, want 1", got)
	}
}

func TestDispatcher_CleanupMissingChannel(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-2").WithApply(fleettest.ApplyResult{Stdout: "ok"})

	snap := snapshotOf(
		hostingNode("node-1", instance("w1", "web", "default", ""), instance("x1", "x", "other", "")),
		loadedNode("node-2", 0),
	)
	metrics := NewMetrics(nil)

	res := newTestDispatcher(WithMetrics(metrics)).ScheduleOne(context.Background(), f, snap, testPod("web", "default"))

	if !res.Status.IsScheduled() || res.NodeName != "node-2" {
		t.Fatalf("result = %s on %s, want Scheduled on node-2", res.Status.Phase, res.NodeName)
	}
	if got := testutil.ToFloat64(metrics.cleanupFailures); got != 1 {
		t.Errorf("cleanup failures = %v, want 1", got)
	}
}

func TestDispatcher_DeploymentCleanupOnEveryNode(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1")
	f.AddNode("node-2")
	f.AddNode("node-3").WithApply(fleettest.ApplyResult{Stdout: "deployment/api.prod configured"})

	snap := snapshotOf(
		hostingNode("node-1", instance("a1", "api-0", "prod", "api"), instance("a2", "api-1", "prod", "api")),
		hostingNode("node-2", instance("a3", "api-2", "prod", "api")),
		loadedNode("node-3", 0),
	)

	res := newTestDispatcher().ScheduleOne(context.Background(), f, snap, testDeployment("api", "prod", 3))

	if !res.Status.IsScheduled() || res.NodeName != "node-3" {
		t.Fatalf("result = %+v on %s, want Scheduled on node-3", res.Status, res.NodeName)
	}

	removes := f.CallsOf(fleettest.OpRemove)
	if len(removes) != 2 || removes[0].Node != "node-1" || removes[1].Node != "node-2" {
		t.Errorf("remove calls = %+v, want node-1 and node-2", removes)
	}
	for _, r := range removes {
		if r.Identity.Kind != types.KindDeployment || r.Identity.Name != "api" {
			t.Errorf("removed %v, want the deployment", r.Identity)
		}
	}
}

func TestDispatcher_ApplyTimeout(t *testing.T) {
	f := fleettest.NewFleet()
	slow := f.AddNode("node-1")
	slow.Block = make(chan struct{})
	defer close(slow.Block)

	snap := snapshotOf(loadedNode("node-1", 0))

	start := time.Now()
	res := newTestDispatcher(WithTimeout(20*time.Millisecond)).ScheduleOne(
		context.Background(), f, snap, testPod("web", "default"),
	)

	if res.Status.Phase != types.PhaseError || res.NodeName != "node-1" {
		t.Fatalf("result = %+v on %s, want Error on node-1", res.Status, res.NodeName)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("apply was not bounded, took %s", elapsed)
	}
}

func TestDispatcher_Metrics(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1").WithApply(
		fleettest.ApplyResult{Stdout: "ok"},
		fleettest.ApplyResult{Err: errors.New("boom")},
	)
	snap := snapshotOf(loadedNode("node-1", 0))
	metrics := NewMetrics(prometheus.NewRegistry())
	d := newTestDispatcher(WithMetrics(metrics))

	d.ScheduleOne(context.Background(), f, snap, testPod("a", "default"))
	d.ScheduleOne(context.Background(), f, snap, testPod("b", "default"))
	d.ScheduleOne(context.Background(), f, snap, types.Resource{Kind: types.KindDeployment})

	tests := []struct {
		kind   types.ResourceKind
		status types.SchedulePhase
		want   float64
	}{
		{types.KindPod, types.PhaseScheduled, 1},
		{types.KindPod, types.PhaseError, 1},
		{types.KindDeployment, types.PhaseError, 1},
		{types.KindDeployment, types.PhaseScheduled, 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(metrics.results.WithLabelValues(string(tt.kind), string(tt.status)))
		if got != tt.want {
			t.Errorf("results{%s,%s} = %v, want %v", tt.kind, tt.status, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(metrics.dispatchDuration); n != 1 {
		t.Errorf("dispatch duration series = %d, want 1", n)
	}
}

func TestFormatDetail(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		want   string
	}{
		{
			name:   "stdout only",
			stdout: "pod/web.default created\n",
			want:   `pod/web.default created\n`,
		},
		{
			name:   "stderr appended",
			stdout: "created",
			stderr: "pulled nginx:latest",
			want:   "created ( stderr: pulled nginx:latest )",
		},
		{
			name:   "line breaks in both",
			stdout: "line one\nline two\n",
			stderr: "warning\n",
			want:   `line one\nline two\n ( stderr: warning\n )`,
		},
		{
			name: "empty",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				got := formatDetail(tt.stdout, tt.stderr)
				if got != tt.want {
					t.Errorf("formatDetail() = %q, want %q", got, tt.want)
				}
				if strings.Contains(got, "\n") {
					t.Errorf("formatDetail() = %q contains a line break", got)
				}
			},
		)
	}
}
