package jsonrpc

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestIsErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NewJSONRPCError(ErrInvalidParams, "bad cursor", nil))

	if !IsInvalidParams(err) {
		t.Fatal("expected wrapped error to be invalid params")
	}
	if IsMethodNotFound(err) || IsParseError(err) {
		t.Fatal("expected other codes not to match")
	}
	if IsError(fmt.Errorf("plain"), ErrInvalidParams) {
		t.Fatal("expected plain error not to match")
	}
}

func TestJSONRPCErrorResponse(t *testing.T) {
	resp := NewJSONRPCError(ErrServerError, "catalog unavailable", map[string]any{"kind": "not_available"}).Response(json.Number("7"))

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":7,"error":{"code":-32000,"message":"catalog unavailable","data":{"kind":"not_available"}}}`
	if string(raw) != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}
}

func TestNotificationHasNoID(t *testing.T) {
	raw, err := json.Marshal(NewNotification("notifications/resources/list_changed", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","method":"notifications/resources/list_changed"}`
	if string(raw) != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}
}
