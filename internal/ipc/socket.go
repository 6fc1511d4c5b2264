package ipc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/eiscreen/internal/logger"
)

// maxMessageSize bounds a single frame.
const maxMessageSize = 1 << 20

// requestTimeout bounds how long a request may wait for the dispatch loop.
const requestTimeout = 5 * time.Second

// Controller executes control requests against the running screen.
type Controller interface {
	Status(ctx context.Context) (*StatusReport, error)
	Inject(ctx context.Context, req *InjectRequest) error
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	controller Controller
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a server on socketPath, or on the default path
// when socketPath is empty.
func NewSocketServer(socketPath string, controller Controller) (*SocketServer, error) {
	if socketPath == "" {
		var err error
		socketPath, err = DefaultSocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}

	return &SocketServer{
		socketPath: socketPath,
		controller: controller,
	}, nil
}

func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove a stale socket left by a crashed instance
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the read below on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger.Debug("New IPC connection established")

	for {
		msg, err := readMessage(conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		response := s.handleMessage(ctx, msg)
		if err := writeMessage(conn, response); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleMessage processes a single message and returns a response
func (s *SocketServer) handleMessage(ctx context.Context, msg *Message) *Message {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch msg.Type {
	case MessageTypeStatus:
		report, err := s.controller.Status(ctx)
		if err != nil {
			return NewErrorMessage(err.Error())
		}
		return NewStatusResponseMessage(report)

	case MessageTypeInject:
		if msg.Inject == nil {
			return NewErrorMessage("Invalid inject command: missing payload")
		}
		if err := s.controller.Inject(ctx, msg.Inject); err != nil {
			return NewErrorMessage(err.Error())
		}
		return NewAckMessage()

	default:
		return NewErrorMessage(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// readMessage reads one length-prefixed frame.
func readMessage(r io.Reader) (*Message, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	return UnmarshalMessage(data)
}

// writeMessage writes one length-prefixed frame.
func writeMessage(w io.Writer, msg *Message) error {
	data := msg.Marshal()

	length := uint32(len(data)) //nolint:gosec // bounded by maxMessageSize on the reading side
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}

	return nil
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/eiscreen.sock, or
// /tmp/eiscreen-{username}.sock without a runtime directory.
func DefaultSocketPath() (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "eiscreen.sock"), nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return filepath.Join("/tmp", fmt.Sprintf("eiscreen-%s.sock", currentUser.Username)), nil
}
