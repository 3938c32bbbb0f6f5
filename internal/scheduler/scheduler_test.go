package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/danpasecinic/podfleet/internal/fleet/fleettest"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultScheduler_BatchContinuesPastFailure(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1").WithApply(
		fleettest.ApplyResult{Stdout: "pod/a.default created"},
		fleettest.ApplyResult{Err: errors.New("image not found")},
		fleettest.ApplyResult{Stdout: "pod/c.default created"},
	)
	snap := snapshotOf(loadedNode("node-1", 0))

	resources := []types.Resource{
		testPod("a", "default"),
		testPod("b", "default"),
		testPod("c", "default"),
	}

	s := NewDefaultScheduler(newTestDispatcher())
	results, err := s.Schedule(context.Background(), f, snap, resources)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Schedule() returned %d results, want 3", len(results))
	}

	var names []string
	var phases []types.SchedulePhase
	for _, r := range results {
		names = append(names, r.Resource.Identity().Name)
		phases = append(phases, r.Status.Phase)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	wantPhases := []types.SchedulePhase{types.PhaseScheduled, types.PhaseError, types.PhaseScheduled}
	if diff := cmp.Diff(wantPhases, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	if results[1].Status.Message != "image not found" {
		t.Errorf("failure message = %q", results[1].Status.Message)
	}

	applies := f.CallsOf(fleettest.OpApply)
	if len(applies) != 3 {
		t.Fatalf("apply calls = %d, want 3", len(applies))
	}
	for i, name := range []string{"a", "b", "c"} {
		if !strings.Contains(applies[i].Manifest, "\n  name: "+name+"\n") {
			t.Errorf("apply %d manifest does not name %s:\n%s", i, name, applies[i].Manifest)
		}
	}
}

func TestDefaultScheduler_PerResourceFailuresAreNotBatchErrors(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1").WithApply(fleettest.ApplyResult{Stdout: "ok"})
	snap := snapshotOf(loadedNode("node-1", 0))

	resources := []types.Resource{
		{Kind: types.KindPod},
		testDeployment("api", "prod", 2),
	}

	results, err := NewDefaultScheduler(newTestDispatcher()).Schedule(context.Background(), f, snap, resources)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if results[0].Status.Phase != types.PhaseError || results[0].NodeName != "" {
		t.Errorf("malformed resource = %+v on %q", results[0].Status, results[0].NodeName)
	}
	if !results[1].Status.IsScheduled() {
		t.Errorf("deployment = %+v, want Scheduled", results[1].Status)
	}
}

func TestDefaultScheduler_UnknownKind(t *testing.T) {
	f := fleettest.NewFleet()
	f.AddNode("node-1").WithApply(fleettest.ApplyResult{Stdout: "ok"})
	snap := snapshotOf(loadedNode("node-1", 0))

	resources := []types.Resource{
		testPod("a", "default"),
		{Kind: "CronJob"},
		testPod("c", "default"),
	}

	results, err := NewDefaultScheduler(newTestDispatcher()).Schedule(context.Background(), f, snap, resources)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Schedule() error = %v, want ErrUnknownKind", err)
	}
	if len(results) != 1 || !results[0].Status.IsScheduled() {
		t.Errorf("results before the unknown kind = %+v", results)
	}
}

func TestDefaultScheduler_EmptyBatch(t *testing.T) {
	f := fleettest.NewFleet()
	failOnUse(t, f)

	results, err := NewDefaultScheduler(newTestDispatcher()).Schedule(context.Background(), f, snapshotOf(), nil)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Schedule() returned %d results, want 0", len(results))
	}
}

func TestFormatSummary(t *testing.T) {
	results := []types.ScheduleResult{
		{
			Resource: testPod("web", "default"),
			NodeName: "node-2",
			Status:   types.Scheduled(`pod/web.default created\n`),
		},
		{
			Resource: testDeployment("api", "prod", 2),
			Status:   types.ScheduleError("failed to find schedulable node"),
		},
	}

	want := "Pod/default/web -> node-2: SCHEDULED pod/web.default created\\n\n" +
		"Deployment/prod/api -> <none>: ERROR failed to find schedulable node\n"

	if got := FormatSummary(results); got != want {
		t.Errorf("FormatSummary() mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}
	if CountFailed(results) != 1 {
		t.Errorf("CountFailed() = %d, want 1", CountFailed(results))
	}
}
