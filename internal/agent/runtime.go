package agent

import (
	"context"
	"time"
)

// Container states reported by a Runtime
const (
	StateCreated = "created"
	StateRunning = "running"
	StateExited  = "exited"
)

// Restart policies understood by a Runtime
const (
	RestartAlways    = "always"
	RestartOnFailure = "on-failure"
	RestartNever     = "no"
)

// ContainerSpec describes a container to create
type ContainerSpec struct {
	Name          string
	Image         string
	Entrypoint    []string
	Command       []string
	Env           []string
	WorkingDir    string
	Labels        map[string]string
	RestartPolicy string
	NanoCPUs      int64
	MemoryBytes   int64
}

// Container is a container observed on the node
type Container struct {
	ID           string
	Name         string
	Image        string
	State        string
	Created      time.Time
	Labels       map[string]string
	RestartCount int
}

// Runtime manages containers on the local node.
type Runtime interface {
	// ImageExists reports whether the image is present locally
	ImageExists(ctx context.Context, image string) (bool, error)
	PullImage(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	// RemoveContainer force-removes a container, running or not
	RemoveContainer(ctx context.Context, id string) error
	// ListContainers returns every container, running or not, that sel matches
	ListContainers(ctx context.Context, sel Selector) ([]Container, error)
}

// Selector picks containers by label. Every Equal label must be present with
// exactly that value, the empty value included. Present labels only need to
// exist. The zero Selector matches every container.
type Selector struct {
	Equal   map[string]string
	Present []string
}

// Matches reports whether a container with the given labels is selected
func (s Selector) Matches(labels map[string]string) bool {
	for k, want := range s.Equal {
		got, ok := labels[k]
		if !ok || got != want {
			return false
		}
	}
	for _, k := range s.Present {
		if _, ok := labels[k]; !ok {
			return false
		}
	}
	return true
}
