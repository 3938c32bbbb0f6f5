// Package docker implements the agent runtime on the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danpasecinic/podfleet/internal/agent"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// Client wraps Docker SDK functionality for container management.
type Client struct {
	cli *client.Client
}

var _ agent.Runtime = (*Client)(nil)

// NewClient creates a new Docker client.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not reachable: %w", err)
	}
	return nil
}

// Close closes the Docker client connection.
func (c *Client) Close() error {
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}

// ImageExists reports whether the image is present locally.
func (c *Client) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, err := c.cli.ImageInspect(ctx, imageName)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to inspect image %s: %w", imageName, err)
}

// PullImage pulls a Docker image from a registry.
func (c *Client) PullImage(ctx context.Context, imageName string) error {
	reader, err := c.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer func() { _ = reader.Close() }()

	// Read all output to ensure pull completes
	_, err = io.Copy(io.Discard, reader)
	if err != nil {
		return fmt.Errorf("failed to read image pull output: %w", err)
	}

	return nil
}

// CreateContainer creates a labelled container from spec.
func (c *Client) CreateContainer(ctx context.Context, spec agent.ContainerSpec) (string, error) {
	config := &container.Config{
		Image:      spec.Image,
		Entrypoint: spec.Entrypoint,
		Cmd:        spec.Command,
		Env:        spec.Env,
		WorkingDir: spec.WorkingDir,
		Labels:     spec.Labels,
	}

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(spec.RestartPolicy)},
		Resources: container.Resources{
			NanoCPUs: spec.NanoCPUs,
			Memory:   spec.MemoryBytes,
		},
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return resp.ID, nil
}

// StartContainer starts a container by ID.
func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		return fmt.Errorf("failed to start container %s: %w", containerID, err)
	}
	return nil
}

// RemoveContainer force-removes a container by ID. A container that is
// already gone is not an error.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	err := c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", containerID, err)
	}
	return nil
}

// ListContainers returns all containers sel matches.
func (c *Client) ListContainers(ctx context.Context, sel agent.Selector) ([]agent.Container, error) {
	args := labelFilters(sel)

	summaries, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]agent.Container, 0, len(summaries))
	for _, s := range summaries {
		ctr := agent.Container{
			ID:      s.ID,
			Image:   s.Image,
			State:   string(s.State),
			Created: time.Unix(s.Created, 0).UTC(),
			Labels:  s.Labels,
		}
		if !sel.Matches(ctr.Labels) {
			continue
		}
		if len(s.Names) > 0 {
			ctr.Name = strings.TrimPrefix(s.Names[0], "/")
		}

		inspect, err := c.cli.ContainerInspect(ctx, s.ID)
		if err == nil {
			ctr.RestartCount = inspect.RestartCount
		} else if !errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("failed to inspect container %s: %w", s.ID, err)
		}

		out = append(out, ctr)
	}

	return out, nil
}

// labelFilters turns sel into docker label filters. "key=" only matches the
// empty value, a bare "key" matches any.
func labelFilters(sel agent.Selector) filters.Args {
	args := filters.NewArgs()
	for k, v := range sel.Equal {
		args.Add("label", k+"="+v)
	}
	for _, k := range sel.Present {
		args.Add("label", k)
	}
	return args
}
