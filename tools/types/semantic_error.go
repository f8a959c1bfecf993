package types

import (
	"errors"
	"fmt"
)

const (
	SemanticKindNotAvailable  = "not_available"
	SemanticKindInvalidParams = "invalid_params"
)

// SemanticError marks tool failures that should be surfaced as structured isError payloads.
type SemanticError struct {
	Kind    string
	Message string
	Data    map[string]any
}

func (e *SemanticError) Error() string {
	if e == nil {
		return "tool semantic error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return fmt.Sprintf("tool semantic error: %s", e.Kind)
	}
	return "tool semantic error"
}

// Payload is the structured error body returned to MCP clients.
func (e *SemanticError) Payload() map[string]any {
	payload := map[string]any{"kind": e.Kind, "message": e.Error()}
	for key, value := range e.Data {
		payload[key] = value
	}
	return payload
}

func NewSemanticError(kind, message string, data map[string]any) *SemanticError {
	return &SemanticError{Kind: kind, Message: message, Data: data}
}

func NewNotAvailableError(message string, data map[string]any) *SemanticError {
	if message == "" {
		message = "Tool is temporarily unavailable"
	}
	return NewSemanticError(SemanticKindNotAvailable, message, data)
}

func NewInvalidParamsError(message string, data map[string]any) *SemanticError {
	if message == "" {
		message = "Invalid tool arguments"
	}
	return NewSemanticError(SemanticKindInvalidParams, message, data)
}

// MissingField reports a required argument that was absent or blank.
func MissingField(field string) *SemanticError {
	return NewInvalidParamsError(fmt.Sprintf("%s is required", field), map[string]any{
		"field":   field,
		"problem": "missing",
	})
}

func AsSemanticError(err error) (*SemanticError, bool) {
	if err == nil {
		return nil, false
	}
	return errors.AsType[*SemanticError](err)
}
