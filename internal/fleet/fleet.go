// Package fleet provides the per-node remote execution channels the scheduler
// uses to apply and remove resources.
package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/danpasecinic/podfleet/internal/types"
)

// ErrRemoteCommand matches every RemoteError
var ErrRemoteCommand = errors.New("remote command failed")

// RemoteError is returned when the agent ran but reported failure.
// Its message is the agent's stderr so operators see the node's own words.
type RemoteError struct {
	// Status is the exit status for shell transports or the HTTP status code.
	Status int
	Stderr string
}

func (e *RemoteError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("remote command exited with status %d", e.Status)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteCommand
}

// Channel is a connection to one node's agent.
// A channel is not safe for concurrent use unless the implementation says so.
type Channel interface {
	// ApplyResource sends a manifest to the node and returns the agent's output.
	ApplyResource(ctx context.Context, manifest string) (stdout, stderr string, err error)

	// RemoveResource deletes a resource from the node.
	// Removing a resource that does not exist is not an error.
	RemoveResource(ctx context.Context, id types.ResourceIdentity) error

	// SystemInfo returns the node's current telemetry.
	SystemInfo(ctx context.Context) (*types.SystemInfo, error)

	// Close releases the underlying connection.
	Close() error
}

// Fleet maps node names to their channels
type Fleet interface {
	// Find returns the channel for the named node.
	Find(nodeName string) (Channel, bool)

	// Names returns the node names in configuration order.
	Names() []string
}

// Static is a fixed, ordered set of channels
type Static struct {
	names    []string
	channels map[string]Channel
}

// NewStatic creates an empty fleet
func NewStatic() *Static {
	return &Static{channels: make(map[string]Channel)}
}

// Add registers a channel for a node. Adding the same node twice is an error.
func (f *Static) Add(nodeName string, ch Channel) error {
	if _, ok := f.channels[nodeName]; ok {
		return fmt.Errorf("node %s already has a channel", nodeName)
	}
	f.names = append(f.names, nodeName)
	f.channels[nodeName] = ch
	return nil
}

// Find returns the channel for the named node
func (f *Static) Find(nodeName string) (Channel, bool) {
	ch, ok := f.channels[nodeName]
	return ch, ok
}

// Names returns the node names in the order they were added
func (f *Static) Names() []string {
	return append([]string(nil), f.names...)
}

// Close closes every channel and returns the joined errors
func (f *Static) Close() error {
	var errs []error
	for _, name := range f.names {
		if err := f.channels[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
