package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// fakeRuntime keeps containers in memory. Created containers start in the
// created state and move to running on start.
type fakeRuntime struct {
	mu         sync.Mutex
	seq        int
	containers map[string]*Container
	order      []string
	images     map[string]bool
	pulls      []string
	specs      []ContainerSpec

	pullErr   error
	failImage string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]*Container),
		images:     make(map[string]bool),
	}
}

func (f *fakeRuntime) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *fakeRuntime) PullImage(_ context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulls = append(f.pulls, image)
	f.images[image] = true
	return nil
}

func (f *fakeRuntime) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if spec.Image == f.failImage {
		return "", errors.New("no space left on device")
	}

	f.seq++
	id := fmt.Sprintf("c%03d", f.seq)
	f.containers[id] = &Container{
		ID:      id,
		Name:    spec.Name,
		Image:   spec.Image,
		State:   StateCreated,
		Created: time.Date(2024, 5, 1, 12, 0, f.seq, 0, time.UTC),
		Labels:  maps.Clone(spec.Labels),
	}
	f.order = append(f.order, id)
	f.specs = append(f.specs, spec)
	return id, nil
}

func (f *fakeRuntime) StartContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("no such container %s", id)
	}
	c.State = StateRunning
	return nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	return nil
}

func (f *fakeRuntime) ListContainers(_ context.Context, sel Selector) ([]Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Container
	for _, id := range f.order {
		c, ok := f.containers[id]
		if !ok || !sel.Matches(c.Labels) {
			continue
		}
		cp := *c
		cp.Labels = maps.Clone(c.Labels)
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakeRuntime) setState(id, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[id].State = state
}

func (f *fakeRuntime) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers)
}
