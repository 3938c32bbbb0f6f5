package types

import (
	"maps"
	"time"
)

const (
	// NamespaceLabel holds the namespace of the workload that owns a pod instance
	NamespaceLabel = "podfleet.io/namespace"

	// DeploymentLabel groups pod instances that belong to one deployment
	DeploymentLabel = "podfleet.io/deployment"

	// PodLabel holds the pod name a container belongs to
	PodLabel = "podfleet.io/pod"

	// PodIDLabel holds the agent-assigned id of a pod instance
	PodIDLabel = "podfleet.io/pod-id"

	// ContainerLabel holds the container name from the pod spec
	ContainerLabel = "podfleet.io/container"
)

// PodInstanceStatus represents the observed state of a pod instance on a node
type PodInstanceStatus string

const (
	PodInstanceCreated  PodInstanceStatus = "Created"
	PodInstanceRunning  PodInstanceStatus = "Running"
	PodInstanceExited   PodInstanceStatus = "Exited"
	PodInstanceDegraded PodInstanceStatus = "Degraded"
	PodInstanceUnknown  PodInstanceStatus = "Unknown"
)

// PodInstance is a pod observed running on a node
type PodInstance struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Status     PodInstanceStatus   `json:"status"`
	Created    time.Time           `json:"created"`
	Labels     map[string]string   `json:"labels,omitempty"`
	Containers []ContainerInstance `json:"containers,omitempty"`
}

// ContainerInstance is one container of an observed pod instance
type ContainerInstance struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	Status       string `json:"status"`
	RestartCount int    `json:"restartCount,omitempty"`
}

// Namespace returns the namespace label, or "" when the pod has none
func (p *PodInstance) Namespace() string {
	return p.Labels[NamespaceLabel]
}

// Deployment returns the deployment label, or "" when the pod is standalone
func (p *PodInstance) Deployment() string {
	return p.Labels[DeploymentLabel]
}

// NamespacedName returns the pod's name and namespace
func (p *PodInstance) NamespacedName() NamespacedName {
	return NamespacedName{Name: p.Name, Namespace: p.Namespace()}
}

// DeepCopy returns an independent copy of the pod instance
func (p PodInstance) DeepCopy() PodInstance {
	p.Labels = maps.Clone(p.Labels)
	if p.Containers != nil {
		p.Containers = append([]ContainerInstance(nil), p.Containers...)
	}
	return p
}
