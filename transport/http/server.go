package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/slighter12/qualityos-mcp-go/config"
	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/qualityos-mcp-go/metrics"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
	"github.com/slighter12/qualityos-mcp-go/tools"
	"github.com/slighter12/qualityos-mcp-go/tools/quality"
	"github.com/slighter12/qualityos-mcp-go/transport/shared"
)

const (
	sessionTimeout  = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	config         *config.Config
	runner         *quality.Runner
	toolManager    *tools.Manager
	readResource   shared.ResourceReader
	recorder       *metrics.Recorder
	sessionManager *SessionManager
	echo           *echo.Echo
}

// NewServer wires routes and catalog notifications. recorder may be nil.
func NewServer(cfg *config.Config, toolManager *tools.Manager, runner *quality.Runner, recorder *metrics.Recorder) *Server {
	s := &Server{
		config:         cfg,
		runner:         runner,
		toolManager:    toolManager,
		readResource:   shared.NewResourceReader(runner),
		recorder:       recorder,
		sessionManager: NewSessionManager(),
		echo:           echo.New(),
	}
	s.setupEcho()
	runner.Catalog().Subscribe(func(result rulecatalog.ReloadResult) {
		sent := s.Broadcast(mcp.NotificationResourcesListChanged, nil)
		logger.Debug("Rule catalog change broadcast", "fingerprint", result.Fingerprint, "streams", sent)
	})
	return s
}

func (s *Server) setupEcho() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "remote_ip", v.RemoteIP}
			if v.Error != nil {
				logger.Warn("HTTP request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("HTTP request", attrs...)
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerSessionID, headerProtocolVersion, "Last-Event-ID"},
		ExposeHeaders: []string{headerSessionID},
	}))
	RegisterRoutes(s.echo, s)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then closes open streams and shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go s.startCleanupGoroutine(ctx)

	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	logger.Info("Streamable HTTP server starting to listen", "address", addr, "metrics", s.config.Metrics.Enabled)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Streamable HTTP server shutting down")
	for _, transport := range s.sessionManager.Transports() {
		transport.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) startCleanupGoroutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.sessionManager.CleanupSessions(sessionTimeout); removed > 0 {
				logger.Debug("Expired MCP sessions removed", "count", removed)
			}
		}
	}
}

// Broadcast sends a notification to every open SSE stream and returns how many got it.
func (s *Server) Broadcast(method string, params any) int {
	notification := jsonrpc.NewNotification(method, params)
	sent := 0
	for _, transport := range s.sessionManager.Transports() {
		if err := transport.SendSSE("message", notification); err != nil {
			logger.Warn("Failed to push notification", "method", method, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) GetSessionManager() *SessionManager {
	return s.sessionManager
}
