package types

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// ResourceKind is the kind of a schedulable resource
type ResourceKind string

const (
	KindPod        ResourceKind = "Pod"
	KindDeployment ResourceKind = "Deployment"
)

// NamespacedName identifies a workload within its namespace
type NamespacedName struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

func (n NamespacedName) String() string {
	return n.Name + "." + n.Namespace
}

// ResourceIdentity identifies a resource across kinds
type ResourceIdentity struct {
	Kind      ResourceKind `json:"kind"`
	Name      string       `json:"name"`
	Namespace string       `json:"namespace"`
}

func (r ResourceIdentity) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Namespace, r.Name)
}

// Resource is a schedulable workload. Exactly one of Pod or Deployment is set,
// matching Kind.
type Resource struct {
	Kind       ResourceKind
	Pod        *corev1.Pod
	Deployment *appsv1.Deployment
}

// NewPodResource wraps a pod manifest
func NewPodResource(pod *corev1.Pod) Resource {
	return Resource{Kind: KindPod, Pod: pod}
}

// NewDeploymentResource wraps a deployment manifest
func NewDeploymentResource(deployment *appsv1.Deployment) Resource {
	return Resource{Kind: KindDeployment, Deployment: deployment}
}

// Identity returns the kind, name and namespace of the resource.
// Name and namespace are empty when the payload is missing.
func (r Resource) Identity() ResourceIdentity {
	id := ResourceIdentity{Kind: r.Kind}
	switch r.Kind {
	case KindPod:
		if r.Pod != nil {
			id.Name, id.Namespace = r.Pod.Name, r.Pod.Namespace
		}
	case KindDeployment:
		if r.Deployment != nil {
			id.Name, id.Namespace = r.Deployment.Name, r.Deployment.Namespace
		}
	}
	return id
}

// NamespacedName returns the resource's name and namespace
func (r Resource) NamespacedName() NamespacedName {
	id := r.Identity()
	return NamespacedName{Name: id.Name, Namespace: id.Namespace}
}

func (r Resource) String() string {
	return r.Identity().String()
}
