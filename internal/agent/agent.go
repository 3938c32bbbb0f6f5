// Package agent runs on every node. It applies and removes resources as
// labelled containers and reports the node's telemetry.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danpasecinic/podfleet/internal/manifest"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
)

// ErrInvalidManifest is returned when the manifest cannot be applied
var ErrInvalidManifest = errors.New("invalid manifest")

// Agent applies resources to the local container runtime.
type Agent struct {
	runtime Runtime
	host    HostProbe
	logger  *zap.Logger
	metrics *Metrics
}

// NewAgent creates an agent. A nil host probe reports no host facts.
func NewAgent(runtime Runtime, host HostProbe, logger *zap.Logger, metrics *Metrics) *Agent {
	if host == nil {
		host = func(context.Context) (types.SystemInfo, error) { return types.SystemInfo{}, nil }
	}
	return &Agent{
		runtime: runtime,
		host:    host,
		logger:  logger,
		metrics: metrics,
	}
}

// podInstance is one pod to start: a standalone pod or a deployment replica
type podInstance struct {
	name   string
	labels map[string]string
	spec   corev1.PodSpec
}

// Apply starts the resource described by the manifest. Containers already
// running for the same resource are replaced, so applying twice is safe.
// stderr carries progress notes such as image pulls.
func (a *Agent) Apply(ctx context.Context, text string) (string, string, error) {
	stdout, stderr, err := a.apply(ctx, text)
	a.metrics.observeApply(err)
	return stdout, stderr, err
}

func (a *Agent) apply(ctx context.Context, text string) (string, string, error) {
	res, err := manifest.ParseOne([]byte(text))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	instances, err := expand(res)
	if err != nil {
		return "", "", err
	}

	id := res.Identity()
	replaced, err := a.remove(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("failed to remove existing containers: %w", err)
	}

	var stderr strings.Builder
	var started []string
	for _, inst := range instances {
		ids, err := a.startPod(ctx, inst, &stderr)
		started = append(started, ids...)
		if err != nil {
			a.rollback(started)
			return "", stderr.String(), err
		}
	}

	verb := "created"
	if replaced > 0 {
		verb = "configured"
	}

	var stdout string
	switch res.Kind {
	case types.KindDeployment:
		stdout = fmt.Sprintf("deployment/%s %s (%d replicas)\n", res.NamespacedName(), verb, len(instances))
	default:
		stdout = fmt.Sprintf("pod/%s %s\n", res.NamespacedName(), verb)
	}

	a.logger.Info(
		"resource applied",
		zap.Stringer("resource", id),
		zap.Int("pods", len(instances)),
		zap.Int("containers", len(started)),
		zap.Int("replaced", replaced),
	)
	return stdout, stderr.String(), nil
}

// expand turns a resource into the pod instances it runs as
func expand(res types.Resource) ([]podInstance, error) {
	id := res.Identity()
	if id.Name == "" {
		return nil, fmt.Errorf("%w: %s has no name", ErrInvalidManifest, res.Kind)
	}

	switch res.Kind {
	case types.KindPod:
		if len(res.Pod.Spec.Containers) == 0 {
			return nil, fmt.Errorf("%w: pod %s has no containers", ErrInvalidManifest, id.Name)
		}
		return []podInstance{
			{
				name:   id.Name,
				labels: map[string]string{types.NamespaceLabel: id.Namespace},
				spec:   res.Pod.Spec,
			},
		}, nil
	case types.KindDeployment:
		tmpl := res.Deployment.Spec.Template
		if len(tmpl.Spec.Containers) == 0 {
			return nil, fmt.Errorf("%w: deployment %s has no containers", ErrInvalidManifest, id.Name)
		}
		replicas := 1
		if res.Deployment.Spec.Replicas != nil {
			replicas = int(*res.Deployment.Spec.Replicas)
		}
		if replicas < 0 {
			return nil, fmt.Errorf("%w: deployment %s has negative replicas", ErrInvalidManifest, id.Name)
		}
		out := make([]podInstance, 0, replicas)
		for i := 0; i < replicas; i++ {
			out = append(
				out, podInstance{
					name: fmt.Sprintf("%s-%d", id.Name, i),
					labels: map[string]string{
						types.NamespaceLabel:  id.Namespace,
						types.DeploymentLabel: id.Name,
					},
					spec: tmpl.Spec,
				},
			)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", manifest.ErrUnsupportedKind, res.Kind)
	}
}

// startPod creates and starts every container of one pod instance and
// returns the ids of the containers it created.
func (a *Agent) startPod(ctx context.Context, inst podInstance, stderr *strings.Builder) ([]string, error) {
	podID := uuid.NewString()
	var created []string

	for _, c := range inst.spec.Containers {
		if err := a.ensureImage(ctx, c, stderr); err != nil {
			return created, err
		}

		spec, notes := containerSpec(inst, podID, c)
		for _, note := range notes {
			fmt.Fprintln(stderr, note)
		}

		id, err := a.runtime.CreateContainer(ctx, spec)
		if err != nil {
			return created, fmt.Errorf("failed to create container %s of pod %s: %w", c.Name, inst.name, err)
		}
		created = append(created, id)

		if err := a.runtime.StartContainer(ctx, id); err != nil {
			return created, fmt.Errorf("failed to start container %s of pod %s: %w", c.Name, inst.name, err)
		}

		a.logger.Debug(
			"container started",
			zap.String("pod", inst.name),
			zap.String("container", c.Name),
			zap.String("id", id),
		)
	}
	return created, nil
}

func (a *Agent) ensureImage(ctx context.Context, c corev1.Container, stderr *strings.Builder) error {
	switch c.ImagePullPolicy {
	case corev1.PullNever:
		return nil
	case corev1.PullIfNotPresent:
		ok, err := a.runtime.ImageExists(ctx, c.Image)
		if err != nil {
			return fmt.Errorf("failed to inspect image %s: %w", c.Image, err)
		}
		if ok {
			return nil
		}
	}

	if err := a.runtime.PullImage(ctx, c.Image); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "pulled image %s\n", c.Image)
	return nil
}

// rollback removes containers created by a failed apply
func (a *Agent) rollback(ids []string) {
	ctx := context.Background()
	for _, id := range ids {
		if err := a.runtime.RemoveContainer(ctx, id); err != nil {
			a.logger.Warn("failed to roll back container", zap.String("id", id), zap.Error(err))
		}
	}
}

// Remove deletes every container of the resource. Removing a resource that
// does not exist succeeds. It returns the number of containers removed.
func (a *Agent) Remove(ctx context.Context, id types.ResourceIdentity) (int, error) {
	n, err := a.remove(ctx, id)
	if err != nil {
		return n, err
	}
	if n > 0 {
		a.logger.Info("resource removed", zap.Stringer("resource", id), zap.Int("containers", n))
	}
	return n, nil
}

func (a *Agent) remove(ctx context.Context, id types.ResourceIdentity) (int, error) {
	selector, err := selectorFor(id)
	if err != nil {
		return 0, err
	}

	containers, err := a.runtime.ListContainers(ctx, selector)
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	removed := 0
	for _, c := range containers {
		// a standalone pod never owns deployment replicas of the same name
		if id.Kind == types.KindPod && c.Labels[types.DeploymentLabel] != "" {
			continue
		}
		if err := a.runtime.RemoveContainer(ctx, c.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// selectorFor matches the containers of exactly one workload. An empty
// namespace is a namespace of its own, not a wildcard.
func selectorFor(id types.ResourceIdentity) (Selector, error) {
	if id.Name == "" {
		return Selector{}, fmt.Errorf("%w: %s has no name", ErrInvalidManifest, id.Kind)
	}

	switch id.Kind {
	case types.KindPod:
		return Selector{
			Equal: map[string]string{types.NamespaceLabel: id.Namespace, types.PodLabel: id.Name},
		}, nil
	case types.KindDeployment:
		return Selector{
			Equal: map[string]string{types.NamespaceLabel: id.Namespace, types.DeploymentLabel: id.Name},
		}, nil
	default:
		return Selector{}, fmt.Errorf("%w: %q", manifest.ErrUnsupportedKind, id.Kind)
	}
}

// Info reports host facts and every pod instance on the node
func (a *Agent) Info(ctx context.Context) (*types.SystemInfo, error) {
	info, err := a.host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read host info: %w", err)
	}

	containers, err := a.runtime.ListContainers(ctx, Selector{Present: []string{types.PodIDLabel}})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	info.Pods = groupPods(containers)
	return &info, nil
}

// groupPods builds pod instances from containers sharing a pod id
func groupPods(containers []Container) []types.PodInstance {
	byID := make(map[string]*types.PodInstance)
	var order []string

	for _, c := range containers {
		podID := c.Labels[types.PodIDLabel]
		pod, ok := byID[podID]
		if !ok {
			pod = &types.PodInstance{
				ID:      podID,
				Name:    c.Labels[types.PodLabel],
				Created: c.Created,
				Labels:  podLabels(c.Labels),
			}
			byID[podID] = pod
			order = append(order, podID)
		}
		if c.Created.Before(pod.Created) {
			pod.Created = c.Created
		}
		pod.Containers = append(
			pod.Containers, types.ContainerInstance{
				ID:           c.ID,
				Name:         c.Labels[types.ContainerLabel],
				Image:        c.Image,
				Status:       c.State,
				RestartCount: c.RestartCount,
			},
		)
	}

	pods := make([]types.PodInstance, 0, len(order))
	for _, podID := range order {
		pod := byID[podID]
		pod.Status = podStatus(pod.Containers)
		pods = append(pods, *pod)
	}
	sort.SliceStable(
		pods, func(i, j int) bool {
			if !pods[i].Created.Equal(pods[j].Created) {
				return pods[i].Created.Before(pods[j].Created)
			}
			return pods[i].Name < pods[j].Name
		},
	)
	return pods
}

// podLabels drops the per-container labels
func podLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		if k == types.ContainerLabel {
			continue
		}
		out[k] = v
	}
	return out
}

func podStatus(containers []types.ContainerInstance) types.PodInstanceStatus {
	counts := make(map[string]int)
	for _, c := range containers {
		counts[c.Status]++
	}

	switch {
	case counts[StateRunning] == len(containers):
		return types.PodInstanceRunning
	case counts[StateExited] == len(containers):
		return types.PodInstanceExited
	case counts[StateCreated] == len(containers):
		return types.PodInstanceCreated
	case counts[StateRunning] > 0:
		return types.PodInstanceDegraded
	default:
		return types.PodInstanceUnknown
	}
}
