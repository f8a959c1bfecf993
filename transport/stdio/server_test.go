package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/slighter12/qualityos-mcp-go/logger"
	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/qualityos-mcp-go/rulecatalog"
	"github.com/slighter12/qualityos-mcp-go/tools"
	"github.com/slighter12/qualityos-mcp-go/tools/quality"
	"github.com/slighter12/qualityos-mcp-go/transport/shared"
)

func TestMain(m *testing.M) {
	// Logs must never reach stdout in stdio mode.
	if err := logger.Init(logger.GetLevelFromString("debug"), logger.FormatJSON, nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestStdioServer(t *testing.T, in io.Reader, out io.Writer) *StdioServer {
	t.Helper()
	catalog := rulecatalog.New(rulecatalog.Options{})
	if _, err := catalog.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	runner := quality.NewRunner(catalog, quality.Options{})
	return NewStdioServer(tools.NewDefaultManager(runner), shared.NewResourceReader(runner), WithIO(in, out))
}

func decodeLines(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var messages []map[string]any
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		var msg map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("output line is not JSON: %q", scanner.Text())
		}
		messages = append(messages, msg)
	}
	return messages
}

func TestStdioServerSession(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"quality-run","arguments":{"moduleKey":"push","draft":"무조건 지금 바로 구매하세요!!"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":5,"method":"unknown/method"}`,
		`not json`,
	}, "\n") + "\n"

	var out bytes.Buffer
	server := newTestStdioServer(t, strings.NewReader(input), &out)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	messages := decodeLines(t, &out)
	if len(messages) != 6 {
		t.Fatalf("expected 6 responses, got %d: %v", len(messages), messages)
	}

	initResult := messages[0]["result"].(map[string]any)
	if initResult["protocolVersion"] != "2025-06-18" {
		t.Fatalf("unexpected protocol version: %v", initResult["protocolVersion"])
	}

	listed := messages[1]["result"].(map[string]any)["tools"].([]any)
	if len(listed) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(listed))
	}

	call := messages[2]["result"].(map[string]any)
	if call["isError"] != false {
		t.Fatalf("expected successful tool call, got %v", call)
	}

	if messages[3]["id"].(float64) != 4 {
		t.Fatalf("expected ping response id 4, got %v", messages[3]["id"])
	}

	unknown := messages[4]["error"].(map[string]any)
	if int(unknown["code"].(float64)) != int(jsonrpc.ErrMethodNotFound) {
		t.Fatalf("expected method not found, got %v", unknown)
	}

	parseErr := messages[5]["error"].(map[string]any)
	if int(parseErr["code"].(float64)) != int(jsonrpc.ErrParseError) {
		t.Fatalf("expected parse error, got %v", parseErr)
	}
}

func TestStdioServerStopsOnCancel(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	var out bytes.Buffer
	server := newTestStdioServer(t, reader, &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestStdioNotify(t *testing.T) {
	var out bytes.Buffer
	server := newTestStdioServer(t, strings.NewReader(""), &out)

	server.Notify(mcp.NotificationResourcesListChanged, nil)

	messages := decodeLines(t, &out)
	if len(messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(messages))
	}
	if messages[0]["method"] != mcp.NotificationResourcesListChanged {
		t.Fatalf("unexpected notification: %v", messages[0])
	}
	if _, hasID := messages[0]["id"]; hasID {
		t.Fatal("notifications must not carry an id")
	}
}
