package agent

import (
	"fmt"
	"maps"

	"github.com/danpasecinic/podfleet/internal/types"
	corev1 "k8s.io/api/core/v1"
)

// containerSpec translates one container of a pod instance. Settings the
// runtime cannot honour are returned as notes for the caller's stderr.
func containerSpec(inst podInstance, podID string, c corev1.Container) (ContainerSpec, []string) {
	var notes []string

	labels := maps.Clone(inst.labels)
	labels[types.PodLabel] = inst.name
	labels[types.PodIDLabel] = podID
	labels[types.ContainerLabel] = c.Name

	env := make([]string, 0, len(c.Env))
	for _, e := range c.Env {
		if e.ValueFrom != nil {
			notes = append(notes, fmt.Sprintf("container %s: env %s uses valueFrom, skipped", c.Name, e.Name))
			continue
		}
		env = append(env, e.Name+"="+e.Value)
	}
	if len(c.Ports) > 0 {
		notes = append(notes, fmt.Sprintf("container %s: container ports are not published", c.Name))
	}

	spec := ContainerSpec{
		Name:          containerName(inst.name, c.Name, podID),
		Image:         c.Image,
		Entrypoint:    c.Command,
		Command:       c.Args,
		Env:           env,
		WorkingDir:    c.WorkingDir,
		Labels:        labels,
		RestartPolicy: restartPolicy(inst.spec.RestartPolicy),
	}

	if cpu, ok := c.Resources.Limits[corev1.ResourceCPU]; ok {
		spec.NanoCPUs = cpu.MilliValue() * 1_000_000
	}
	if mem, ok := c.Resources.Limits[corev1.ResourceMemory]; ok {
		spec.MemoryBytes = mem.Value()
	}

	return spec, notes
}

func containerName(pod, container, podID string) string {
	short := podID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("podfleet_%s_%s_%s", pod, container, short)
}

func restartPolicy(p corev1.RestartPolicy) string {
	switch p {
	case corev1.RestartPolicyNever:
		return RestartNever
	case corev1.RestartPolicyOnFailure:
		return RestartOnFailure
	default:
		return RestartAlways
	}
}
