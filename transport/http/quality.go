package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/slighter12/qualityos-mcp-go/quality/engine"
	"github.com/slighter12/qualityos-mcp-go/tools/quality"
	"github.com/slighter12/qualityos-mcp-go/tools/types"
)

// registerQualityRoutes exposes the runner as plain JSON endpoints for callers that do
// not speak MCP.
func registerQualityRoutes(g *echo.Group, s *Server) {
	g.Use(middleware.BodyLimit("1M"))
	g.POST("/run", s.handleQualityRun)
	g.POST("/run-batch", s.handleQualityRunBatch)
	g.POST("/input-requests", s.handleQualityInputRequests)
	g.GET("/rules", s.handleQualityRules)
	g.GET("/policies", s.handleQualityPolicies)
}

func (s *Server) handleQualityRun(c echo.Context) error {
	var req engine.Request
	if err := c.Bind(&req); err != nil {
		return restBindError(c)
	}
	result, err := s.runner.Run(req)
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleQualityRunBatch(c echo.Context) error {
	var payload struct {
		Requests []engine.Request `json:"requests"`
	}
	if err := c.Bind(&payload); err != nil {
		return restBindError(c)
	}
	items, err := s.runner.RunBatch(c.Request().Context(), payload.Requests)
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":   len(items),
		"results": items,
	})
}

func (s *Server) handleQualityInputRequests(c echo.Context) error {
	var req engine.Request
	if err := c.Bind(&req); err != nil {
		return restBindError(c)
	}
	result, err := s.runner.InputRequests(req)
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleQualityRules(c echo.Context) error {
	snapshot, err := s.runner.Snapshot()
	if err != nil {
		return restError(c, err)
	}
	filter := quality.RuleFilter{
		ModuleKey: c.QueryParam("moduleKey"),
		Severity:  c.QueryParam("severity"),
		Dimension: c.QueryParam("dimension"),
	}
	return c.JSON(http.StatusOK, quality.ListRules(snapshot, filter))
}

func (s *Server) handleQualityPolicies(c echo.Context) error {
	snapshot, err := s.runner.Snapshot()
	if err != nil {
		return restError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"version":  snapshot.Version,
		"policies": snapshot.Policies,
	})
}

func restBindError(c echo.Context) error {
	err := types.NewInvalidParamsError("Request body is not a valid run request", map[string]any{
		"field":   "body",
		"problem": "malformed_payload",
	})
	return c.JSON(http.StatusBadRequest, map[string]any{"error": err.Payload()})
}

func restError(c echo.Context, err error) error {
	semanticErr, ok := types.AsSemanticError(err)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"kind": "internal", "message": err.Error()},
		})
	}
	status := http.StatusBadRequest
	if semanticErr.Kind == types.SemanticKindNotAvailable {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{"error": semanticErr.Payload()})
}
