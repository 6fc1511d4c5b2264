package ipc

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/bnema/eiscreen/internal/logger"
)

// ErrNotRunning is returned when no instance listens on the socket.
var ErrNotRunning = errors.New("eiscreen is not running")

// Client handles IPC communication with a running eiscreen instance
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for socketPath, or for the default path when
// socketPath is empty.
func NewClient(socketPath string) (*Client, error) {
	if socketPath == "" {
		var err error
		socketPath, err = DefaultSocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}

	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}, nil
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// WithTimeout sets the per-request timeout and returns the client.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// Status queries the running instance.
func (c *Client) Status() (*StatusReport, error) {
	response, err := c.sendMessage(NewStatusMessage())
	if err != nil {
		return nil, err
	}

	switch response.Type {
	case MessageTypeStatusResponse:
		if response.Status == nil {
			return &StatusReport{}, nil
		}
		return response.Status, nil
	case MessageTypeError:
		return nil, fmt.Errorf("server error: %s", response.Error)
	default:
		return nil, fmt.Errorf("unexpected response type: %s", response.Type)
	}
}

// Inject asks the running instance to emit one input event.
func (c *Client) Inject(req *InjectRequest) error {
	response, err := c.sendMessage(NewInjectMessage(req))
	if err != nil {
		return err
	}

	switch response.Type {
	case MessageTypeAck:
		return nil
	case MessageTypeError:
		return fmt.Errorf("server error: %s", response.Error)
	default:
		return fmt.Errorf("unexpected response type: %s", response.Type)
	}
}

// IsRunning reports whether an instance answers status queries.
func (c *Client) IsRunning() bool {
	_, err := c.Status()
	return err == nil
}

func (c *Client) sendMessage(msg *Message) (*Message, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isNotListening(err) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("failed to connect to eiscreen: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close IPC connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeMessage(conn, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	response, err := readMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return response, nil
}

func isNotListening(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
