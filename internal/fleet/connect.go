package fleet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/danpasecinic/podfleet/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultAgentPort is the port node agents listen on in HTTP mode
const DefaultAgentPort = 8081

// NodeError records a node that could not be connected
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Connect opens a channel to every node of the cluster concurrently.
// Nodes that fail are left out of the fleet and reported in the returned
// errors; one bad node never prevents the others from connecting.
func Connect(ctx context.Context, cluster *config.Cluster, timeout time.Duration, logger *zap.Logger) (*Static, []error) {
	channels := make([]Channel, len(cluster.Nodes))
	errs := make([]error, len(cluster.Nodes))

	var g errgroup.Group
	for i, node := range cluster.Nodes {
		g.Go(
			func() error {
				ch, err := dial(ctx, cluster, node, timeout)
				if err != nil {
					errs[i] = &NodeError{Node: node.Name, Err: err}
					return nil
				}
				channels[i] = ch
				return nil
			},
		)
	}
	_ = g.Wait()

	f := NewStatic()
	var failed []error
	for i, node := range cluster.Nodes {
		if errs[i] != nil {
			logger.Warn("failed to connect to node", zap.String("node", node.Name), zap.Error(errs[i]))
			failed = append(failed, errs[i])
			continue
		}
		if err := f.Add(node.Name, channels[i]); err != nil {
			_ = channels[i].Close()
			failed = append(failed, &NodeError{Node: node.Name, Err: err})
			continue
		}
		logger.Debug("connected to node", zap.String("node", node.Name), zap.String("transport", node.TransportFor()))
	}

	return f, failed
}

func dial(ctx context.Context, cluster *config.Cluster, node config.Node, timeout time.Duration) (Channel, error) {
	switch node.TransportFor() {
	case config.TransportHTTP:
		port := node.AgentPort
		if port == 0 {
			port = DefaultAgentPort
		}
		ch := NewHTTPChannel("http://"+net.JoinHostPort(node.Host, strconv.Itoa(port)), timeout)
		return ch, nil
	case config.TransportSSH:
		return DialSSH(
			ctx, SSHConfig{
				Host:                  node.Host,
				Port:                  node.Port,
				User:                  cluster.UserFor(node),
				KeyFile:               cluster.KeyFileFor(node),
				KnownHostsFile:        cluster.KnownHostsFile,
				InsecureIgnoreHostKey: cluster.InsecureIgnoreHostKey,
				Sudo:                  node.Sudo,
				Timeout:               timeout,
			},
		)
	default:
		return nil, fmt.Errorf("unknown transport %q", node.Transport)
	}
}
