package types

// NodeHealth is the reachability of a node as observed by the last refresh
type NodeHealth string

const (
	NodeHealthy   NodeHealth = "Healthy"
	NodeUnhealthy NodeHealth = "Unhealthy"
)

// NodeState is one node's entry in a cluster snapshot.
// Info is nil when the node could not be reached during the refresh; that means
// its load is unknown, not that it is idle.
type NodeState struct {
	Name   string      `json:"name"`
	Health NodeHealth  `json:"health"`
	Info   *SystemInfo `json:"info,omitempty"`
}

// Load returns the number of pod instances reported by the node, or 0 when the
// node has no telemetry.
func (n *NodeState) Load() int {
	if n == nil || n.Info == nil {
		return 0
	}
	return len(n.Info.Pods)
}

// Platform describes the node's operating system and architecture
type Platform struct {
	Arch string `json:"arch"`
	OS   string `json:"os"`
}

// SystemInfo is the telemetry a node agent reports about its host
type SystemInfo struct {
	Platform       Platform      `json:"platform"`
	Hostname       string        `json:"hostname,omitempty"`
	TotalMemoryMiB uint64        `json:"totalMemoryMib"`
	UsedMemoryMiB  uint64        `json:"usedMemoryMib"`
	TotalSwapMiB   uint64        `json:"totalSwapMib"`
	UsedSwapMiB    uint64        `json:"usedSwapMib"`
	NumCPUs        int           `json:"numCpus"`
	Pods           []PodInstance `json:"pods,omitempty"`
}

// DeepCopy returns an independent copy of the system info
func (s *SystemInfo) DeepCopy() *SystemInfo {
	if s == nil {
		return nil
	}
	out := *s
	if s.Pods != nil {
		out.Pods = make([]PodInstance, len(s.Pods))
		for i := range s.Pods {
			out.Pods[i] = s.Pods[i].DeepCopy()
		}
	}
	return &out
}

// DeepCopy returns an independent copy of the node state
func (n NodeState) DeepCopy() NodeState {
	n.Info = n.Info.DeepCopy()
	return n
}
