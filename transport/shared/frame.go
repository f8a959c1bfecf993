package shared

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/mcp/jsonrpc"
)

var supportedProtocolVersions = map[string]struct{}{
	"2024-11-05":        {},
	"2025-03-26":        {},
	"2025-06-18":        {},
	mcp.ProtocolVersion: {},
}

// IsSupportedProtocolVersion reports whether version can be negotiated.
func IsSupportedProtocolVersion(version string) bool {
	if version == "" {
		return false
	}
	_, ok := supportedProtocolVersions[version]
	return ok
}

// NegotiateProtocolVersion echoes the client's version when supported, else the latest.
func NegotiateProtocolVersion(paramsRaw json.RawMessage) string {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	preferred := mcp.ProtocolVersion
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return preferred
	}

	if IsSupportedProtocolVersion(params.ProtocolVersion) {
		return params.ProtocolVersion
	}
	return preferred
}

// ParseJSONRPCFrame validates and parses one JSON-RPC message frame.
// Both stdio and streamable HTTP require a single message per frame; batches are rejected.
// It returns the requests to dispatch, responses that are already decided, and whether a
// client response (a one-way message) was accepted.
func ParseJSONRPCFrame(frame []byte) ([]jsonrpc.Request, []any, bool, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, nil, false, fmt.Errorf("empty message")
	}

	invalid := func(id any) []any {
		return []any{jsonrpc.NewErrorResponse(id, int(jsonrpc.ErrInvalidRequest), "Invalid request", nil)}
	}

	if trimmed[0] == '[' {
		return nil, invalid(nil), false, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, []any{jsonrpc.NewErrorResponse(nil, int(jsonrpc.ErrParseError), "Parse error", nil)}, false, nil
	}

	requestID, hasID, validID := parseIDFromEnvelope(envelope)
	if !validID {
		return nil, invalid(nil), false, nil
	}

	var msg jsonrpc.Request
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, invalid(requestID), false, nil
	}
	msg.ID = requestID

	if msg.Method == "" {
		_, hasResult := envelope["result"]
		_, hasErr := envelope["error"]
		if hasResult || hasErr {
			if msg.JSONRPC != jsonrpc.Version || !hasID || (hasResult && hasErr) {
				return nil, invalid(nil), false, nil
			}
			return nil, nil, true, nil
		}
		return nil, invalid(requestID), false, nil
	}

	if msg.JSONRPC != jsonrpc.Version {
		return nil, invalid(requestID), false, nil
	}
	if rawParams, ok := envelope["params"]; ok && !isValidParamsValue(rawParams) {
		return nil, invalid(requestID), false, nil
	}
	if msg.Method == "initialize" && msg.ID == nil {
		return nil, invalid(nil), false, nil
	}

	return []jsonrpc.Request{msg}, nil, false, nil
}

func parseIDFromEnvelope(envelope map[string]json.RawMessage) (any, bool, bool) {
	rawID, exists := envelope["id"]
	if !exists {
		return nil, false, true
	}
	trimmed := bytes.TrimSpace(rawID)
	if len(trimmed) == 0 {
		return nil, true, false
	}

	var id any
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&id); err != nil {
		return nil, true, false
	}
	if !isValidJSONRPCID(id) {
		return nil, true, false
	}
	return id, true, true
}

func isValidJSONRPCID(id any) bool {
	switch v := id.(type) {
	case string:
		return true
	case json.Number:
		return isJSONInteger(v.String())
	default:
		return false
	}
}

func isValidParamsValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{'
}

func isJSONInteger(value string) bool {
	if value == "" || strings.ContainsAny(value, ".eE") {
		return false
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	if strings.HasPrefix(value, "-") {
		return false
	}
	_, err := strconv.ParseUint(value, 10, 64)
	return err == nil
}
