package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client is one authenticated connection to a remote instrument host:
// ExecuteCommand drives control, UploadFile/DownloadFile move data.
type Client struct {
	cfg *Config
	log zerolog.Logger

	mu          sync.Mutex
	conn        *ssh.Client
	sftpClient  *sftp.Client
	connectedAt time.Time
}

// NewClient validates cfg and returns an unconnected Client.
func NewClient(cfg *Config, log zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote: invalid config: %w", err)
	}
	return &Client{cfg: cfg, log: log.With().Str("component", "remote_transport").Str("host", cfg.Host).Logger()}, nil
}

// Connect dials the remote host and opens an SFTP subsystem over the
// same connection. A call while already connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	clientCfg, err := c.cfg.buildSSHClientConfig()
	if err != nil {
		return fmt.Errorf("remote: build ssh config: %w", err)
	}

	dialer := net.Dialer{Timeout: c.cfg.ConnectionTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", c.cfg.address())
	if err != nil {
		return fmt.Errorf("remote: dial %s: %w", c.cfg.address(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(rawConn, c.cfg.address(), clientCfg)
	if err != nil {
		_ = rawConn.Close()
		return fmt.Errorf("remote: ssh handshake: %w", err)
	}
	conn := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("remote: open sftp subsystem: %w", err)
	}

	c.conn = conn
	c.sftpClient = sftpClient
	c.connectedAt = time.Now()
	c.log.Info().Msg("connected")
	return nil
}

// Disconnect closes the SFTP subsystem and underlying SSH connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.sftpClient != nil {
		if err := c.sftpClient.Close(); err != nil {
			firstErr = err
		}
		c.sftpClient = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.conn = nil
	}
	return firstErr
}

// IsConnected reports whether Connect has succeeded and Disconnect
// hasn't since been called.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ExecuteCommand runs cmd on the remote host over a fresh SSH session,
// bounded by the configured CommandTimeout.
func (c *Client) ExecuteCommand(ctx context.Context, cmd string) (stdout, stderr string, err error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return "", "", fmt.Errorf("remote: not connected")
	}

	session, err := conn.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("remote: open session: %w", err)
	}
	defer session.Close()

	var out, errOut strings.Builder
	session.Stdout = &out
	session.Stderr = &errOut

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return out.String(), errOut.String(), ctx.Err()
	case runErr := <-done:
		return out.String(), errOut.String(), runErr
	}
}

// UploadFile copies localPath to remotePath over SFTP, setting mode on
// the remote file.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	c.mu.Lock()
	sc := c.sftpClient
	c.mu.Unlock()
	if sc == nil {
		return fmt.Errorf("remote: not connected")
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("remote: open local file: %w", err)
	}
	defer src.Close()

	dst, err := sc.Create(remotePath)
	if err != nil {
		return fmt.Errorf("remote: create remote file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("remote: copy to remote: %w", err)
	}
	return sc.Chmod(remotePath, mode)
}

// DownloadFile copies remotePath to localPath over SFTP.
func (c *Client) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	c.mu.Lock()
	sc := c.sftpClient
	c.mu.Unlock()
	if sc == nil {
		return fmt.Errorf("remote: not connected")
	}

	src, err := sc.Open(remotePath)
	if err != nil {
		return fmt.Errorf("remote: open remote file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("remote: create local file: %w", err)
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// RemoveRemoteFile deletes remotePath, e.g. after a frame dump has been
// fetched by DownloadFile.
func (c *Client) RemoveRemoteFile(path string) error {
	c.mu.Lock()
	sc := c.sftpClient
	c.mu.Unlock()
	if sc == nil {
		return fmt.Errorf("remote: not connected")
	}
	return sc.Remove(path)
}
