package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slighter12/qualityos-mcp-go/config"
	"github.com/slighter12/qualityos-mcp-go/mcp"
)

// writeTestConfig saves a default config that logs nowhere and loads bundles from bundleDir.
func writeTestConfig(t *testing.T, bundleDir string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Logging.Console = config.ConsoleNone
	cfg.Logging.Path = ""
	if bundleDir != "" {
		cfg.RuleCatalog.Paths = []string{bundleDir}
	}
	path := filepath.Join(dir, "qualityos.json")
	if err := config.SaveConfig(cfg, path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, mcp.ServerVersion) || !strings.Contains(out, mcp.ServerName) {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestRunCommandPrintsResult(t *testing.T) {
	configPath := writeTestConfig(t, "")
	dir := t.TempDir()
	draftPath := filepath.Join(dir, "draft.txt")
	if err := os.WriteFile(draftPath, []byte("역대급 혜택! 지금 바로 신청하세요.\n"), 0644); err != nil {
		t.Fatalf("write draft: %v", err)
	}
	proofPath := filepath.Join(dir, "proof.yaml")
	if err := os.WriteFile(proofPath, []byte("numbers:\n  - 누적 고객 1,200명\n"), 0644); err != nil {
		t.Fatalf("write proof: %v", err)
	}

	out, err := execute(t, "", "--config", configPath, "run", "--module", "landing", "--draft", draftPath, "--proof", proofPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("run output is not JSON: %v\n%s", err, out)
	}
	for _, key := range []string{"runId", "ruleVersion", "finalCopy", "scorecard", "stopReason"} {
		if _, ok := result[key]; !ok {
			t.Fatalf("expected %s in run output", key)
		}
	}
	if strings.Contains(result["finalCopy"].(string), "역대급") {
		t.Fatalf("expected hype term to be rewritten, got %q", result["finalCopy"])
	}
}

func TestRunCommandReadsStdin(t *testing.T) {
	configPath := writeTestConfig(t, "")

	out, err := execute(t, "지금 바로 확인하세요\n", "--config", configPath, "run", "--module", "push", "--draft", "-", "--copy-only")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.TrimSpace(out) == "" || strings.HasPrefix(out, "{") {
		t.Fatalf("expected plain final copy, got %q", out)
	}
}

func TestRunCommandIndustrySelectsOverride(t *testing.T) {
	configPath := writeTestConfig(t, "")
	const disclaimer = "개인에 따라 결과가 다를 수 있으며, 부작용이 발생할 수 있습니다."
	draft := "편안한 진료를 약속합니다. 지금 문의하세요.\n"

	plain, err := execute(t, draft, "--config", configPath, "run", "--module", "clinic", "--draft", "-", "--copy-only")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.Contains(plain, disclaimer) {
		t.Fatalf("disclaimer inserted without an industry: %q", plain)
	}

	medical, err := execute(t, draft, "--config", configPath, "run", "--module", "clinic", "--industry", "medical", "--draft", "-", "--copy-only")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(medical, disclaimer) {
		t.Fatalf("expected the medical disclaimer, got %q", medical)
	}

	for _, cmd := range NewRootCommand().Commands() {
		if cmd.Name() != "run" {
			continue
		}
		usage := cmd.Flags().Lookup("industry").Usage
		if !strings.Contains(usage, "rewrite-map override") {
			t.Fatalf("unexpected --industry usage: %q", usage)
		}
	}
}

func TestRunCommandErrors(t *testing.T) {
	configPath := writeTestConfig(t, "")

	if _, err := execute(t, "", "--config", configPath, "run", "--draft", "-"); err == nil {
		t.Fatal("expected missing --module to fail")
	}
	if _, err := execute(t, "   \n", "--config", configPath, "run", "--module", "sns", "--draft", "-"); err == nil {
		t.Fatal("expected empty draft to fail")
	}
	if _, err := execute(t, "x", "--config", filepath.Join(t.TempDir(), "missing.json"), "run", "--module", "sns", "--draft", "-"); err == nil {
		t.Fatal("expected missing config file to fail")
	}
	if _, err := execute(t, "x", "--config", configPath, "--log-level", "loud", "run", "--module", "sns", "--draft", "-"); err == nil {
		t.Fatal("expected invalid log level to fail")
	}
}

func TestValidateCommand(t *testing.T) {
	bundleDir := t.TempDir()
	bundle := "rules:\n  rules:\n    - id: TEAM-1\n      severity: LOW\n      detect: {type: pattern_match_any, params: {patterns: [\"x\"]}}\n"
	if err := os.WriteFile(filepath.Join(bundleDir, "team.yaml"), []byte(bundle), 0644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	configPath := writeTestConfig(t, bundleDir)

	out, err := execute(t, "", "--config", configPath, "validate")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	var report validateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("validate output is not JSON: %v", err)
	}
	if len(report.Files) != 1 || !strings.HasSuffix(report.Files[0].Path, "team.yaml") {
		t.Fatalf("expected team.yaml to be discovered, got %+v", report.Files)
	}
	if !report.Status.Loaded || len(report.Status.Sources) != 2 {
		t.Fatalf("expected default and team sources, got %+v", report.Status)
	}
	if report.ConfigPath != configPath {
		t.Fatalf("expected config path %s, got %s", configPath, report.ConfigPath)
	}
}

func TestValidateStrictFailsOnBrokenBundle(t *testing.T) {
	bundleDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(bundleDir, "broken.json"), []byte(`{"rules":`), 0644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	configPath := writeTestConfig(t, bundleDir)

	if _, err := execute(t, "", "--config", configPath, "validate"); err != nil {
		t.Fatalf("non-strict validate should tolerate a broken file: %v", err)
	}
	if _, err := execute(t, "", "--config", configPath, "validate", "--strict"); err == nil {
		t.Fatal("expected strict validate to fail on a broken file")
	}
}

func TestConfigCommands(t *testing.T) {
	configPath := writeTestConfig(t, "")

	out, err := execute(t, "", "--config", configPath, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if strings.TrimSpace(out) != configPath {
		t.Fatalf("expected %s, got %q", configPath, out)
	}

	out, err = execute(t, "", "--config", configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("config show output is not JSON: %v", err)
	}
	if cfg.Logging.Console != config.ConsoleNone {
		t.Fatalf("expected console none, got %q", cfg.Logging.Console)
	}
}
