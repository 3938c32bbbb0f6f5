package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danpasecinic/podfleet/internal/types"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultAgentCommand is the agent binary invoked on nodes over SSH
const DefaultAgentCommand = "podfleet-agent"

// SSHConfig describes how to reach a node over SSH
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyFile        string
	KnownHostsFile string
	// InsecureIgnoreHostKey skips host key verification. Only for test clusters.
	InsecureIgnoreHostKey bool
	// AgentCommand overrides the agent binary name or path on the node.
	AgentCommand string
	// Sudo runs mutating agent commands through sudo.
	Sudo    bool
	Timeout time.Duration
}

// SSHChannel runs agent commands on a node through an SSH connection
type SSHChannel struct {
	client   *ssh.Client
	agentCmd string
	sudo     bool
}

// DialSSH opens an SSH connection to a node
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSHChannel, error) {
	clientConfig, err := sshClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	agentCmd := cfg.AgentCommand
	if agentCmd == "" {
		agentCmd = DefaultAgentCommand
	}

	return &SSHChannel{
		client:   ssh.NewClient(sshConn, chans, reqs),
		agentCmd: agentCmd,
		sudo:     cfg.Sudo,
	}, nil
}

func sshClientConfig(cfg SSHConfig) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", cfg.KeyFile, err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", cfg.KeyFile, err)
	}

	var hostKeyCallback ssh.HostKeyCallback
	switch {
	case cfg.InsecureIgnoreHostKey:
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	case cfg.KnownHostsFile != "":
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", cfg.KnownHostsFile, err)
		}
	default:
		return nil, errors.New("known hosts file is required unless host key checking is disabled")
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, nil
}

// ApplyResource pipes the manifest into `podfleet-agent apply`
func (c *SSHChannel) ApplyResource(ctx context.Context, manifest string) (string, string, error) {
	return c.run(ctx, c.command(true, "apply", "-f", "-"), strings.NewReader(manifest))
}

// RemoveResource runs `podfleet-agent remove` for the identity
func (c *SSHChannel) RemoveResource(ctx context.Context, id types.ResourceIdentity) error {
	cmd := c.command(
		true, "remove",
		"--kind", string(id.Kind),
		"--name", id.Name,
		"--namespace", id.Namespace,
	)
	_, _, err := c.run(ctx, cmd, nil)
	return err
}

// SystemInfo runs `podfleet-agent info` and decodes its JSON output
func (c *SSHChannel) SystemInfo(ctx context.Context) (*types.SystemInfo, error) {
	stdout, _, err := c.run(ctx, c.command(false, "info"), nil)
	if err != nil {
		return nil, err
	}

	var info types.SystemInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		return nil, fmt.Errorf("decode system info: %w", err)
	}
	return &info, nil
}

// Close closes the SSH connection
func (c *SSHChannel) Close() error {
	return c.client.Close()
}

func (c *SSHChannel) command(mutating bool, args ...string) string {
	parts := make([]string, 0, len(args)+2)
	if mutating && c.sudo {
		parts = append(parts, "sudo")
	}
	parts = append(parts, shellQuote(c.agentCmd))
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

// run executes cmd in a new session. A non-zero exit becomes a RemoteError
// carrying the remote stderr.
func (c *SSHChannel) run(ctx context.Context, cmd string, stdin *strings.Reader) (string, string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	if err := session.Start(cmd); err != nil {
		return "", "", fmt.Errorf("start %q: %w", cmd, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", "", fmt.Errorf("run %q: %w", cmd, ctx.Err())
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), &RemoteError{
				Status: exitErr.ExitStatus(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return stdout.String(), stderr.String(), fmt.Errorf("run %q: %w", cmd, err)
	}

	return stdout.String(), stderr.String(), nil
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:", r):
		return false
	}
	return true
}
