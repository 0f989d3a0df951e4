package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Common client errors.
var (
	// ErrDaemonNotRunning is returned when the socket cannot be reached.
	ErrDaemonNotRunning = errors.New("ipc: daemon is not running")

	// ErrCommandFailed wraps an error reported by the daemon.
	ErrCommandFailed = errors.New("ipc: command failed")
)

// Client issues commands to a running clipguard daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the daemon socket at path.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Do sends one command and returns the daemon's response.
func (c *Client) Do(command string) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, ErrDaemonNotRunning
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	req := Request{Version: ProtocolVersion, Command: command}
	out, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	out = append(out, '\n')
	if _, err := conn.Write(out); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return &resp, fmt.Errorf("%w: %s", ErrCommandFailed, resp.Error)
	}
	return &resp, nil
}

// Ping checks whether the daemon is reachable.
func (c *Client) Ping() error {
	_, err := c.Do(CmdPing)
	return err
}
