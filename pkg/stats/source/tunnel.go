package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// TunnelConfig contains the SSH jump host parameters.
type TunnelConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	KnownHostsFile string
	DialTimeout    time.Duration
}

// Tunnel dials TCP addresses reachable from the SSH host.
type Tunnel struct {
	logger *slog.Logger
	addr   string
	config *ssh.ClientConfig
}

// NewTunnel returns a new Tunnel. When no known hosts file is configured the
// host key of the SSH server is not verified.
func NewTunnel(c TunnelConfig, logger *slog.Logger) (*Tunnel, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec

	if c.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read known hosts file: %w", err)
		}

		hostKeyCallback = cb
	} else {
		logger.Warn("SSH host key verification is disabled. Set known_hosts_file to enable it", "ssh_host", c.Host)
	}

	return &Tunnel{
		logger: logger,
		addr:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		config: &ssh.ClientConfig{
			User:            c.User,
			Auth:            []ssh.AuthMethod{ssh.Password(c.Password)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         c.DialTimeout,
		},
	}, nil
}

// DialContext opens a new SSH connection and dials addr from the SSH host. The
// SSH connection is closed along with the returned connection.
func (t *Tunnel) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: t.config.Timeout}

	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH host %s: %w", t.addr, err)
	}

	// Handshake does not take a context so bound it with a deadline
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, t.config)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("SSH handshake with %s failed: %w", t.addr, err)
	}

	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)

	remote, err := client.DialContext(ctx, "tcp", addr)
	if err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to dial %s through SSH host %s: %w", addr, t.addr, err)
	}

	t.logger.Debug("SSH tunnel opened", "ssh_host", t.addr, "remote", addr)

	return &tunnelConn{Conn: remote, client: client}, nil
}

// tunnelConn is a connection forwarded through an SSH client it owns.
type tunnelConn struct {
	net.Conn
	client *ssh.Client
}

func (c *tunnelConn) Close() error {
	return errors.Join(c.Conn.Close(), c.client.Close())
}
