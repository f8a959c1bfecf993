package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/qualityos-mcp-go/tools"
	"github.com/slighter12/qualityos-mcp-go/tools/types"
)

const pageSize = 50

// ResourceReader resolves a resource URI to its JSON-encodable content.
type ResourceReader func(uri string) (any, error)

func BuildToolsListResponse(msg jsonrpc.Request, tools []mcp.Tool) *jsonrpc.Response {
	start, err := ParseCursor(msg.Params, len(tools))
	if err != nil {
		return errorResponse(msg.ID, err)
	}
	end := min(start+pageSize, len(tools))

	result := map[string]any{
		"tools": tools[start:end],
	}
	if end < len(tools) {
		result["nextCursor"] = strconv.Itoa(end)
	}
	return jsonrpc.NewResponse(msg.ID, result)
}

func BuildResourcesListResponse(msg jsonrpc.Request) *jsonrpc.Response {
	resources := mcp.Resources()
	start, err := ParseCursor(msg.Params, len(resources))
	if err != nil {
		return errorResponse(msg.ID, err)
	}
	end := min(start+pageSize, len(resources))

	result := map[string]any{
		"resources": resources[start:end],
	}
	if end < len(resources) {
		result["nextCursor"] = strconv.Itoa(end)
	}
	return jsonrpc.NewResponse(msg.ID, result)
}

func BuildResourcesReadResponse(msg jsonrpc.Request, readResource ResourceReader) *jsonrpc.Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return semanticError(msg.ID, jsonrpc.ErrInvalidParams, "Invalid resources/read payload", types.SemanticKindInvalidParams, map[string]any{
			"field":   "params",
			"problem": "malformed_payload",
		})
	}
	params.URI = strings.TrimSpace(params.URI)
	if params.URI == "" {
		return semanticError(msg.ID, jsonrpc.ErrInvalidParams, "Resource URI is required", types.SemanticKindInvalidParams, map[string]any{
			"field":   "uri",
			"problem": "missing",
		})
	}
	if readResource == nil {
		return semanticError(msg.ID, jsonrpc.ErrServerError, "Resource handler is not configured", types.SemanticKindNotAvailable, nil)
	}

	result, err := readResource(params.URI)
	if err != nil {
		if semanticErr, ok := types.AsSemanticError(err); ok {
			code := jsonrpc.ErrInvalidParams
			if semanticErr.Kind == types.SemanticKindNotAvailable {
				code = jsonrpc.ErrServerError
			}
			return semanticError(msg.ID, code, semanticErr.Error(), semanticErr.Kind, semanticErr.Data)
		}
		return jsonrpc.NewErrorResponse(msg.ID, int(jsonrpc.ErrInternalError), err.Error(), nil)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return jsonrpc.NewErrorResponse(msg.ID, int(jsonrpc.ErrInternalError), "Failed to encode resource result", nil)
	}

	return jsonrpc.NewResponse(msg.ID, map[string]any{
		"contents": []mcp.ResourceContent{
			{
				URI:      params.URI,
				MimeType: "application/json",
				Text:     string(resultJSON),
			},
		},
	})
}

func BuildPingResponse(msg jsonrpc.Request) *jsonrpc.Response {
	return jsonrpc.NewResponse(msg.ID, map[string]any{})
}

// BuildInitializeResult is the initialize result shared by every transport.
func BuildInitializeResult(paramsRaw json.RawMessage, sessionID string) map[string]any {
	result := map[string]any{
		"protocolVersion": NegotiateProtocolVersion(paramsRaw),
		"capabilities":    ServerCapabilities(),
		"serverInfo": map[string]any{
			"name":    mcp.ServerName,
			"version": mcp.ServerVersion,
		},
		"instructions": "Call quality-run with moduleKey and draft to score and rewrite marketing copy. " +
			"Use quality-input-requests to learn which proof the module policy expects.",
	}
	if sessionID != "" {
		result["sessionId"] = sessionID
	}
	return result
}

// DispatchStandardMethod handles shared non-initialize JSON-RPC methods for all transports.
func DispatchStandardMethod(msg jsonrpc.Request, toolManager *tools.Manager, readResource ResourceReader) any {
	switch msg.Method {
	case "tools/list":
		return BuildToolsListResponse(msg, toolManager.GetTools())
	case "resources/list":
		return BuildResourcesListResponse(msg)
	case "resources/read":
		return BuildResourcesReadResponse(msg, readResource)
	case "tools/call":
		return BuildToolCallResponse(msg, toolManager)
	case "ping":
		return BuildPingResponse(msg)
	case "initialized", "notifications/initialized", "notifications/cancelled":
		if msg.ID != nil {
			return jsonrpc.NewErrorResponse(msg.ID, int(jsonrpc.ErrInvalidRequest), "Invalid request", nil)
		}
		return nil
	default:
		if msg.ID != nil {
			return jsonrpc.NewErrorResponse(msg.ID, int(jsonrpc.ErrMethodNotFound), "Method not found", map[string]any{
				"method": msg.Method,
			})
		}
		return nil
	}
}

// errorResponse keeps the code of JSON-RPC errors and reports anything else as internal.
func errorResponse(id any, err error) *jsonrpc.Response {
	if rpcErr, ok := errors.AsType[*jsonrpc.JSONRPCError](err); ok {
		return rpcErr.Response(id)
	}
	return jsonrpc.NewErrorResponse(id, int(jsonrpc.ErrInternalError), err.Error(), nil)
}

func semanticError(id any, code jsonrpc.ErrorCode, message, kind string, extra map[string]any) *jsonrpc.Response {
	data := map[string]any{
		"kind": kind,
	}
	for key, value := range extra {
		data[key] = value
	}
	return jsonrpc.NewErrorResponse(id, int(code), message, data)
}

func BuildToolCallResponse(msg jsonrpc.Request, toolManager *tools.Manager) *jsonrpc.Response {
	var toolCall struct {
		Name      string          `json:"name"`
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &toolCall); err != nil {
		return jsonrpc.NewErrorResponse(msg.ID, int(jsonrpc.ErrInvalidParams), "Invalid tool call payload", nil)
	}

	toolName := strings.TrimSpace(toolCall.Name)
	if toolName == "" {
		toolName = strings.TrimSpace(toolCall.Tool)
	}
	if toolName == "" {
		return jsonrpc.NewErrorResponse(msg.ID, int(jsonrpc.ErrInvalidParams), "Tool name is required", nil)
	}

	arguments := toolCall.Arguments
	if len(arguments) == 0 || string(arguments) == "null" {
		arguments = json.RawMessage(`{}`)
	}

	resultJSON, err := toolManager.ExecuteTool(toolName, arguments)
	if err != nil {
		if tools.IsToolNotFound(err) {
			return jsonrpc.NewJSONRPCError(jsonrpc.ErrInvalidParams, err.Error(), map[string]any{"tool": toolName}).Response(msg.ID)
		}
		return jsonrpc.NewResponse(msg.ID, BuildToolErrorResult(toolName, err))
	}

	var result any
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return jsonrpc.NewResponse(msg.ID, BuildToolErrorResult(toolName, fmt.Errorf("decode tool result: %w", err)))
	}
	return jsonrpc.NewResponse(msg.ID, BuildToolSuccessResult(toolName, result))
}

func BuildToolSuccessResult(toolName string, result any) map[string]any {
	return map[string]any{
		"type":              string(mcp.TypeResult),
		"tool":              toolName,
		"content":           ToolContentFromResult(result),
		"structuredContent": result,
		"isError":           false,
	}
}

// BuildToolErrorResult reports a failed tool call in-band. Semantic errors carry their
// structured payload.
func BuildToolErrorResult(toolName string, err error) map[string]any {
	result := map[string]any{
		"type":    string(mcp.TypeResult),
		"tool":    toolName,
		"content": []map[string]any{{"type": "text", "text": err.Error()}},
		"isError": true,
	}
	if semanticErr, ok := types.AsSemanticError(err); ok {
		result["structuredContent"] = map[string]any{"error": semanticErr.Payload()}
	}
	return result
}

func ToolContentFromResult(result any) []map[string]any {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return []map[string]any{{"type": "text", "text": "tool call completed"}}
	}
	return []map[string]any{{"type": "text", "text": string(resultJSON)}}
}

func ServerCapabilities() map[string]any {
	return map[string]any{
		"tools": map[string]any{},
		"resources": map[string]any{
			"listChanged": true,
		},
	}
}

// ParseCursor decodes a pagination cursor. Failures are invalid-params *jsonrpc.JSONRPCError values.
func ParseCursor(paramsRaw json.RawMessage, total int) (int, error) {
	if len(paramsRaw) == 0 {
		return 0, nil
	}

	var params struct {
		Cursor string `json:"cursor"`
	}
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return 0, jsonrpc.NewJSONRPCError(jsonrpc.ErrInvalidParams, "invalid params payload", nil)
	}
	if strings.TrimSpace(params.Cursor) == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(params.Cursor)
	if err != nil || offset < 0 || offset > total {
		return 0, jsonrpc.NewJSONRPCError(jsonrpc.ErrInvalidParams, "invalid cursor value", map[string]any{"cursor": params.Cursor})
	}
	return offset, nil
}
