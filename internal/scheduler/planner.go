package scheduler

import (
	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
)

// LocatedResource is where a resource is currently running.
// A pod has one instance on one node; a deployment may have many instances
// spread over several nodes.
type LocatedResource struct {
	Identity types.ResourceIdentity
	Pods     []types.PodInstance
	Nodes    []types.NodeState
}

// Node returns the first node hosting the resource
func (l *LocatedResource) Node() *types.NodeState {
	if l == nil || len(l.Nodes) == 0 {
		return nil
	}
	n := l.Nodes[0]
	return &n
}

// ApplyPlan pairs the current location of a resource with the node it should
// be applied to next. Current is nil for a resource that is not running.
type ApplyPlan struct {
	Current *LocatedResource
	Next    *types.NodeState
}

// Locate finds the running instances of res in the snapshot.
// It returns nil when nothing matches.
func Locate(snapshot *state.Snapshot, res types.Resource) *LocatedResource {
	id := res.Identity()

	switch res.Kind {
	case types.KindPod:
		pod, node, ok := snapshot.LocatePod(id.Name, id.Namespace)
		if !ok {
			return nil
		}
		return &LocatedResource{
			Identity: id,
			Pods:     []types.PodInstance{pod},
			Nodes:    []types.NodeState{node},
		}
	case types.KindDeployment:
		found, ok := snapshot.LocateDeployment(id.Name, id.Namespace)
		if !ok {
			return nil
		}
		return &LocatedResource{
			Identity: id,
			Pods:     found.Pods,
			Nodes:    found.Nodes,
		}
	default:
		return nil
	}
}

// SelectTargetNode picks the least loaded node, where load is the number of
// pod instances a node reported. The scan starts from current and replaces
// the best choice unless it is strictly less loaded than the candidate, so
// among equally loaded nodes the last one in snapshot order wins.
// It returns nil only for an empty snapshot.
func SelectTargetNode(snapshot *state.Snapshot, current *types.NodeState) *types.NodeState {
	if snapshot.Len() == 0 {
		return nil
	}

	best := current
	for _, candidate := range snapshot.Nodes() {
		if best != nil && best.Load() < candidate.Load() {
			continue
		}
		best = &candidate
	}
	return best
}

// BuildPlan locates res and chooses its next node
func BuildPlan(snapshot *state.Snapshot, res types.Resource) ApplyPlan {
	current := Locate(snapshot, res)
	return ApplyPlan{
		Current: current,
		Next:    SelectTargetNode(snapshot, current.Node()),
	}
}
