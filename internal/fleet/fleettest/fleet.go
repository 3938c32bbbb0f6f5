// Package fleettest provides a deterministic in-memory fleet for tests.
// Every call is recorded, and results are scripted per node.
package fleettest

import (
	"context"
	"sync"

	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/types"
)

// Op names a recorded fleet operation
type Op string

const (
	OpFind   Op = "find"
	OpApply  Op = "apply"
	OpRemove Op = "remove"
	OpInfo   Op = "info"
)

// Call is one recorded invocation
type Call struct {
	Op       Op
	Node     string
	Manifest string
	Identity types.ResourceIdentity
}

// ApplyResult is the scripted outcome of one ApplyResource call
type ApplyResult struct {
	Stdout string
	Stderr string
	Err    error
}

// Fleet is a recording fleet. Use NewFleet and AddNode to build one.
type Fleet struct {
	mu    sync.Mutex
	names []string
	nodes map[string]*Channel
	calls []Call

	// OnUse, when set, is invoked before every recorded call. Tests use it to
	// fail immediately when the fleet must not be touched.
	OnUse func(Call)
}

// NewFleet creates an empty recording fleet
func NewFleet() *Fleet {
	return &Fleet{nodes: make(map[string]*Channel)}
}

// AddNode registers a node and returns its channel for scripting
func (f *Fleet) AddNode(name string) *Channel {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := &Channel{fleet: f, node: name}
	f.names = append(f.names, name)
	f.nodes[name] = ch
	return ch
}

// Find records the lookup and returns the node's channel
func (f *Fleet) Find(nodeName string) (fleet.Channel, bool) {
	f.record(Call{Op: OpFind, Node: nodeName})

	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.nodes[nodeName]
	if !ok {
		return nil, false
	}
	return ch, true
}

// Names returns the node names in registration order
func (f *Fleet) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

// Calls returns a copy of every recorded call in order
func (f *Fleet) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of one operation
func (f *Fleet) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Close closes every channel
func (f *Fleet) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.nodes {
		_ = ch.Close()
	}
	return nil
}

func (f *Fleet) record(c Call) {
	if f.OnUse != nil {
		f.OnUse(c)
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

// Channel is a scripted node channel
type Channel struct {
	fleet *Fleet
	node  string

	mu           sync.Mutex
	applyResults []ApplyResult
	applyDefault ApplyResult
	removeErr    error
	info         *types.SystemInfo
	infoErr      error
	closed       bool

	// Block, when non-nil, makes every remote call wait for it to be closed or
	// for the context to end.
	Block chan struct{}
}

// WithApply queues results returned by successive ApplyResource calls.
// Once the queue is drained the last result keeps being returned.
func (c *Channel) WithApply(results ...ApplyResult) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyResults = append(c.applyResults, results...)
	return c
}

// WithRemoveError makes RemoveResource fail with err
func (c *Channel) WithRemoveError(err error) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeErr = err
	return c
}

// WithInfo sets the telemetry returned by SystemInfo
func (c *Channel) WithInfo(info *types.SystemInfo, err error) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info, c.infoErr = info, err
	return c
}

// ApplyResource records the manifest and returns the next scripted result
func (c *Channel) ApplyResource(ctx context.Context, manifest string) (string, string, error) {
	c.fleet.record(Call{Op: OpApply, Node: c.node, Manifest: manifest})
	if err := c.wait(ctx); err != nil {
		return "", "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.applyDefault
	if len(c.applyResults) > 0 {
		res = c.applyResults[0]
		if len(c.applyResults) > 1 {
			c.applyResults = c.applyResults[1:]
		}
	}
	return res.Stdout, res.Stderr, res.Err
}

// RemoveResource records the identity and returns the scripted error
func (c *Channel) RemoveResource(ctx context.Context, id types.ResourceIdentity) error {
	c.fleet.record(Call{Op: OpRemove, Node: c.node, Identity: id})
	if err := c.wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeErr
}

// SystemInfo returns the scripted telemetry
func (c *Channel) SystemInfo(ctx context.Context) (*types.SystemInfo, error) {
	c.fleet.record(Call{Op: OpInfo, Node: c.node})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.DeepCopy(), c.infoErr
}

// Close marks the channel closed
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) wait(ctx context.Context) error {
	if c.Block == nil {
		return nil
	}
	select {
	case <-c.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
