// Package state holds the point-in-time view of the cluster that scheduling
// decisions are made against, and the refresher that produces it.
package state

import (
	"time"

	"github.com/danpasecinic/podfleet/internal/types"
)

// Snapshot is an immutable, ordered view of node telemetry.
// Accessors return copies so callers cannot alter the snapshot.
type Snapshot struct {
	nodes   []types.NodeState
	takenAt time.Time
}

// NewSnapshot creates a snapshot from the given nodes, preserving their order
func NewSnapshot(nodes []types.NodeState) *Snapshot {
	return newSnapshotAt(nodes, time.Now())
}

func newSnapshotAt(nodes []types.NodeState, at time.Time) *Snapshot {
	cp := make([]types.NodeState, len(nodes))
	for i := range nodes {
		cp[i] = nodes[i].DeepCopy()
	}
	return &Snapshot{nodes: cp, takenAt: at}
}

// Nodes returns a copy of the node states in snapshot order
func (s *Snapshot) Nodes() []types.NodeState {
	if s == nil {
		return nil
	}
	out := make([]types.NodeState, len(s.nodes))
	for i := range s.nodes {
		out[i] = s.nodes[i].DeepCopy()
	}
	return out
}

// Len returns the number of nodes in the snapshot
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.nodes)
}

// TakenAt returns when the snapshot was produced
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Node returns the state of the named node
func (s *Snapshot) Node(name string) (types.NodeState, bool) {
	if s == nil {
		return types.NodeState{}, false
	}
	for i := range s.nodes {
		if s.nodes[i].Name == name {
			return s.nodes[i].DeepCopy(), true
		}
	}
	return types.NodeState{}, false
}

// HealthyCount returns the number of nodes that answered the last refresh
func (s *Snapshot) HealthyCount() int {
	if s == nil {
		return 0
	}
	count := 0
	for i := range s.nodes {
		if s.nodes[i].Health == types.NodeHealthy {
			count++
		}
	}
	return count
}

// LocatePod returns the first pod instance, in node order, whose name and
// namespace label match, together with the node it runs on.
func (s *Snapshot) LocatePod(name, namespace string) (types.PodInstance, types.NodeState, bool) {
	if s == nil {
		return types.PodInstance{}, types.NodeState{}, false
	}
	for i := range s.nodes {
		node := &s.nodes[i]
		if node.Info == nil {
			continue
		}
		for j := range node.Info.Pods {
			pod := &node.Info.Pods[j]
			if pod.Name == name && pod.Namespace() == namespace {
				return pod.DeepCopy(), node.DeepCopy(), true
			}
		}
	}
	return types.PodInstance{}, types.NodeState{}, false
}

// DeploymentInstances is every pod instance of one deployment and the nodes
// they span, both in snapshot order.
type DeploymentInstances struct {
	Pods  []types.PodInstance
	Nodes []types.NodeState
}

// LocateDeployment collects all pod instances on all nodes whose deployment
// and namespace labels match. An empty name never matches, since standalone
// pods carry no deployment label.
func (s *Snapshot) LocateDeployment(name, namespace string) (DeploymentInstances, bool) {
	var found DeploymentInstances
	if s == nil || name == "" {
		return found, false
	}
	for i := range s.nodes {
		node := &s.nodes[i]
		if node.Info == nil {
			continue
		}
		onNode := false
		for j := range node.Info.Pods {
			pod := &node.Info.Pods[j]
			if pod.Deployment() == name && pod.Namespace() == namespace {
				found.Pods = append(found.Pods, pod.DeepCopy())
				onNode = true
			}
		}
		if onNode {
			found.Nodes = append(found.Nodes, node.DeepCopy())
		}
	}
	return found, len(found.Pods) > 0
}
