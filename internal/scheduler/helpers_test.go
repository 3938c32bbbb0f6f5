package scheduler

import (
	"fmt"

	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func testPod(name, namespace string) types.Resource {
	return types.NewPodResource(
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec: corev1.PodSpec{
				Containers: []corev1.Container{{Name: "app", Image: "nginx:latest"}},
			},
		},
	)
}

func testDeployment(name, namespace string, replicas int32) types.Resource {
	return types.NewDeploymentResource(
		&appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec: appsv1.DeploymentSpec{
				Replicas: &replicas,
				Template: corev1.PodTemplateSpec{
					Spec: corev1.PodSpec{
						Containers: []corev1.Container{{Name: "app", Image: "nginx:latest"}},
					},
				},
			},
		},
	)
}

func instance(id, name, namespace, deployment string) types.PodInstance {
	labels := map[string]string{types.NamespaceLabel: namespace}
	if deployment != "" {
		labels[types.DeploymentLabel] = deployment
	}
	return types.PodInstance{ID: id, Name: name, Status: types.PodInstanceRunning, Labels: labels}
}

// loadedNode creates a healthy node running load unrelated pods
func loadedNode(name string, load int) types.NodeState {
	pods := make([]types.PodInstance, 0, load)
	for i := 0; i < load; i++ {
		pods = append(pods, instance(fmt.Sprintf("%s-filler-%d", name, i), fmt.Sprintf("filler-%d", i), "other", ""))
	}
	return hostingNode(name, pods...)
}

func hostingNode(name string, pods ...types.PodInstance) types.NodeState {
	return types.NodeState{
		Name:   name,
		Health: types.NodeHealthy,
		Info:   &types.SystemInfo{Pods: pods},
	}
}

func snapshotOf(nodes ...types.NodeState) *state.Snapshot {
	return state.NewSnapshot(nodes)
}
