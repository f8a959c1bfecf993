package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/qualityos-mcp-go/transport/shared"
)

const maxJSONRPCBodyBytes = 1 << 20

const (
	headerSessionID       = "MCP-Session-Id"
	headerProtocolVersion = "MCP-Protocol-Version"
)

func RegisterRoutes(e *echo.Echo, s *Server) {
	e.GET("/", s.handleHTTPInfo)
	e.GET("/healthz", s.handleHealth)
	e.POST("/mcp", s.handleStreamableHTTPPost)
	e.GET("/mcp", s.handleStreamableHTTPGet)
	e.DELETE("/mcp", s.handleStreamableHTTPDelete)
	e.OPTIONS("/mcp", s.handleOptions)

	registerQualityRoutes(e.Group("/v1/quality"), s)

	if s.config.Metrics.Enabled && s.recorder != nil {
		e.GET(s.config.Metrics.Path, echo.WrapHandler(s.recorder.Handler()))
	}
}

func (s *Server) handleHTTPInfo(c echo.Context) error {
	logger.Debug("HTTP info requested", "remote_addr", c.RealIP())
	info := map[string]any{
		"name":    mcp.ServerName,
		"version": mcp.ServerVersion,
		"type":    "qualityos-mcp",
		"capabilities": map[string]any{
			"stdio":           true,
			"streamable_http": true,
			"rest":            true,
		},
		"streamable_http_endpoint": "/mcp",
		"rest_endpoint":            "/v1/quality",
	}
	if s.config.Metrics.Enabled && s.recorder != nil {
		info["metrics_endpoint"] = s.config.Metrics.Path
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleHealth(c echo.Context) error {
	status := s.runner.Catalog().Status()
	body := map[string]any{
		"status":   "ok",
		"catalog":  status,
		"sessions": s.sessionManager.Count(),
	}
	if !status.Loaded {
		body["status"] = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) handleOptions(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleStreamableHTTPPost(c echo.Context) error {
	logger.Debug("Streamable HTTP POST request", "remote_addr", c.RealIP())

	limitedBody := http.MaxBytesReader(c.Response(), c.Request().Body, maxJSONRPCBodyBytes)
	defer limitedBody.Close()

	body, err := io.ReadAll(limitedBody)
	if err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			logger.Warn("Request body too large", "limit_bytes", maxJSONRPCBodyBytes, "remote_addr", c.RealIP())
			return c.JSON(http.StatusRequestEntityTooLarge, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Request body too large", nil))
		}
		logger.Error("Failed to read request body", "error", err)
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrParseError), "Parse error", nil))
	}

	requests, prebuiltResponses, acceptedOneWay, err := shared.ParseJSONRPCFrame(body)
	if err != nil {
		logger.Error("Failed to parse JSON-RPC request", "error", err)
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrParseError), "Parse error", nil))
	}
	if len(requests) == 0 && len(prebuiltResponses) == 0 && !acceptedOneWay {
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Invalid request", nil))
	}

	sessionID := c.Request().Header.Get(headerSessionID)
	requestedProtocolVersion := strings.TrimSpace(c.Request().Header.Get(headerProtocolVersion))
	if requestedProtocolVersion != "" && !shared.IsSupportedProtocolVersion(requestedProtocolVersion) {
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Unsupported MCP-Protocol-Version header", nil))
	}

	hasInitialize := false
	hasNonInitialize := false
	for _, req := range requests {
		if req.Method == "initialize" {
			hasInitialize = true
		} else {
			hasNonInitialize = true
		}
	}

	if len(requests) > 0 {
		if hasInitialize {
			if sessionID == "" {
				sessionID = s.sessionManager.CreateSession()
				logger.Debug("Generated new MCP session", "session_id", sessionID)
			} else if !s.sessionManager.TouchSession(sessionID) {
				return c.JSON(http.StatusNotFound, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Unknown MCP session", nil))
			}
		}

		if !hasInitialize || hasNonInitialize {
			if sessionID == "" {
				return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Missing MCP-Session-Id header", nil))
			}
			if !s.sessionManager.TouchSession(sessionID) {
				return c.JSON(http.StatusNotFound, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Unknown MCP session", nil))
			}
		}
	}
	if acceptedOneWay && sessionID == "" {
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Missing MCP-Session-Id header", nil))
	}
	if sessionID != "" && (len(requests) == 0 || acceptedOneWay) {
		if !s.sessionManager.TouchSession(sessionID) {
			return c.JSON(http.StatusNotFound, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Unknown MCP session", nil))
		}
	}

	requireProtocolHeader := false
	if hasNonInitialize || acceptedOneWay {
		requireProtocolHeader = s.requireProtocolVersionHeader(sessionID)
	}
	if !s.isProtocolVersionAccepted(sessionID, requestedProtocolVersion, requireProtocolHeader) {
		return protocolHeaderError(c, requestedProtocolVersion, requireProtocolHeader)
	}

	responses := make([]any, 0, len(requests)+len(prebuiltResponses))
	responses = append(responses, prebuiltResponses...)

	for _, request := range requests {
		logger.Debug("Streamable HTTP request received", "method", request.Method, "id", request.ID)
		response := s.handleMessage(request, sessionID)
		if request.ID == nil || response == nil {
			continue
		}
		responses = append(responses, response)
	}

	if sessionID != "" {
		c.Response().Header().Set(headerSessionID, sessionID)
	}

	if len(requests) == 0 && len(prebuiltResponses) > 0 {
		return c.JSON(http.StatusBadRequest, prebuiltResponses[0])
	}

	if len(responses) == 0 {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, responses[0])
}

func (s *Server) handleStreamableHTTPGet(c echo.Context) error {
	logger.Debug("Streamable HTTP GET request", "remote_addr", c.RealIP())

	sessionID, err := s.requireKnownSession(c)
	if sessionID == "" {
		return err
	}

	if !acceptsEventStream(c.Request().Header.Get(echo.HeaderAccept)) {
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Accept header must include text/event-stream", nil))
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusMethodNotAllowed, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "SSE stream is not available", nil))
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set(headerSessionID, sessionID)
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	streamCtx, stopStream := context.WithCancel(c.Request().Context())
	defer stopStream()

	transport := NewStreamableHTTPTransport(c.Response().Writer, flusher, stopStream)
	if err := transport.SendComment("stream opened"); err != nil {
		logger.Warn("Failed to write initial SSE comment", "session_id", sessionID, "error", err)
		return nil
	}

	// Publish the transport only after headers and the first frame are out so that
	// broadcasts never race stream setup.
	if !s.sessionManager.SetTransport(sessionID, transport) {
		transport.Close()
		logger.Warn("SSE session disappeared before stream binding", "session_id", sessionID)
		return nil
	}
	defer s.sessionManager.ClearTransportIfMatch(sessionID, transport)

	<-streamCtx.Done()
	transport.Close()
	return nil
}

func (s *Server) handleStreamableHTTPDelete(c echo.Context) error {
	logger.Debug("Streamable HTTP DELETE request", "remote_addr", c.RealIP())
	sessionID, err := s.requireKnownSession(c)
	if sessionID == "" {
		return err
	}
	s.sessionManager.RemoveSession(sessionID)
	return c.NoContent(http.StatusNoContent)
}

// requireKnownSession validates the session and protocol headers of GET and DELETE.
// An empty id means a response has already been written.
func (s *Server) requireKnownSession(c echo.Context) (string, error) {
	sessionID := c.Request().Header.Get(headerSessionID)
	if sessionID == "" {
		return "", c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Missing MCP-Session-Id header", nil))
	}
	if !s.sessionManager.HasSession(sessionID) {
		return "", c.JSON(http.StatusNotFound, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Unknown MCP session", nil))
	}
	requestedProtocolVersion := strings.TrimSpace(c.Request().Header.Get(headerProtocolVersion))
	requireProtocolHeader := s.requireProtocolVersionHeader(sessionID)
	if !s.isProtocolVersionAccepted(sessionID, requestedProtocolVersion, requireProtocolHeader) {
		return "", protocolHeaderError(c, requestedProtocolVersion, requireProtocolHeader)
	}
	return sessionID, nil
}

func protocolHeaderError(c echo.Context, requestedVersion string, required bool) error {
	if requestedVersion == "" && required {
		return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Missing MCP-Protocol-Version header", nil))
	}
	return c.JSON(http.StatusBadRequest, jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrInvalidRequest), "Invalid MCP-Protocol-Version header", nil))
}

func (s *Server) handleMessage(msg jsonrpc.Request, sessionID string) any {
	switch msg.Method {
	case "initialize":
		logger.Debug("Handling initialize message", "request_id", msg.ID)
		result := shared.BuildInitializeResult(msg.Params, sessionID)
		if sessionID != "" {
			s.sessionManager.SetProtocolVersion(sessionID, result["protocolVersion"].(string))
		}
		return jsonrpc.NewResponse(msg.ID, result)
	case "initialized", "notifications/initialized":
		if msg.ID != nil {
			return jsonrpc.NewErrorResponse(msg.ID, int(jsonrpc.ErrInvalidRequest), "Invalid request", nil)
		}
		if sessionID != "" {
			s.sessionManager.MarkInitialized(sessionID)
		}
		return nil
	default:
		return shared.DispatchStandardMethod(msg, s.toolManager, s.readResource)
	}
}

func (s *Server) isProtocolVersionAccepted(sessionID string, requestedVersion string, requireHeader bool) bool {
	if requestedVersion != "" {
		if !shared.IsSupportedProtocolVersion(requestedVersion) {
			return false
		}
		if sessionID != "" {
			if negotiatedVersion, ok := s.sessionManager.GetProtocolVersion(sessionID); ok && negotiatedVersion != "" && negotiatedVersion != requestedVersion {
				return false
			}
		}
		return true
	}
	return !requireHeader
}

func (s *Server) requireProtocolVersionHeader(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	negotiatedVersion, ok := s.sessionManager.GetProtocolVersion(sessionID)
	if !ok {
		return true
	}
	return strings.TrimSpace(negotiatedVersion) == ""
}

func acceptsEventStream(acceptHeader string) bool {
	for part := range strings.SplitSeq(acceptHeader, ",") {
		mime := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if strings.EqualFold(mime, "text/event-stream") {
			return true
		}
	}
	return false
}
