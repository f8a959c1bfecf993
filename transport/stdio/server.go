package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/qualityos-mcp-go/tools"
	"github.com/slighter12/qualityos-mcp-go/transport/shared"
)

// maxFrameBytes bounds one newline-delimited message.
const maxFrameBytes = 4 << 20

// StdioServer handles MCP communication over newline-delimited JSON-RPC.
type StdioServer struct {
	toolManager  *tools.Manager
	readResource shared.ResourceReader

	in  io.Reader
	out io.Writer
	mu  sync.Mutex
	enc *json.Encoder
}

// Option configures a StdioServer.
type Option func(*StdioServer)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *StdioServer) {
		s.in = in
		s.out = out
	}
}

// NewStdioServer creates a new stdio server
func NewStdioServer(toolManager *tools.Manager, readResource shared.ResourceReader, opts ...Option) *StdioServer {
	s := &StdioServer{
		toolManager:  toolManager,
		readResource: readResource,
		in:           os.Stdin,
		out:          os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.enc = json.NewEncoder(s.out)
	return s
}

// Start serves until the input reaches EOF or ctx is cancelled.
func (s *StdioServer) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	logger.Debug("Stdio server started and waiting for messages")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Stdio server context cancelled")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read stdio frame: %w", err)
					}
				default:
				}
				logger.Debug("Stdio EOF received, terminating server")
				return nil
			}
			s.handleFrame(line)
		}
	}
}

func (s *StdioServer) handleFrame(frame []byte) {
	requests, prebuilt, _, err := shared.ParseJSONRPCFrame(frame)
	if err != nil {
		// Blank lines between frames are tolerated.
		return
	}
	for _, response := range prebuilt {
		s.write(response)
	}
	for _, request := range requests {
		logger.Debug("Stdio message received", "method", request.Method)
		response, err := s.handleMessage(request)
		if err != nil {
			logger.Error("Error handling message", "error", err, "method", request.Method)
			if request.ID != nil {
				s.write(jsonrpc.NewErrorResponse(request.ID, int(jsonrpc.ErrInternalError), "Internal error", nil))
			}
			continue
		}
		if request.ID == nil || response == nil {
			continue
		}
		s.write(response)
	}
}

func (s *StdioServer) handleMessage(msg jsonrpc.Request) (any, error) {
	switch msg.Method {
	case "initialize":
		logger.Debug("Handling initialize message", "request_id", msg.ID)
		return jsonrpc.NewResponse(msg.ID, shared.BuildInitializeResult(msg.Params, "")), nil
	default:
		return shared.DispatchStandardMethod(msg, s.toolManager, s.readResource), nil
	}
}

// Notify writes a server notification to the client.
func (s *StdioServer) Notify(method string, params any) {
	s.write(jsonrpc.NewNotification(method, params))
}

func (s *StdioServer) write(message any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(message); err != nil {
		logger.Error("Error encoding stdio message", "error", err)
	}
}
