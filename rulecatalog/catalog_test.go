package rulecatalog

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
)

const overlayYAML = `
rules:
  version: overlay
  rules:
    - id: TEAM-001
      severity: MEDIUM
      dimension: clarity
      applies_to: [landing]
      detect: {type: pattern_match_any, params: {patterns: ["혁명"]}}
      score: {penalty: 5}
rewrite_maps:
  lexicons: {cta: ["상담 신청"]}
module_policies:
  modules:
    landing: {pass_cutoff: 88}
`

const brokenJSON = `{"rules": {"rules": [`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultBundleCompilesClean(t *testing.T) {
	bundle, err := DefaultBundle()
	require.NoError(t, err)

	snapshot, warnings := ruleset.Compile(bundle)
	assert.Empty(t, warnings)
	assert.NotEmpty(t, snapshot.Rules)
	assert.Equal(t, ruleset.AllDimensions, snapshot.Dimensions)
	for _, rule := range snapshot.Rules {
		_, unhandled := rule.Detection.(ruleset.UnhandledDetection)
		assert.False(t, unhandled, rule.ID)
	}
	assert.True(t, snapshot.Policies.IsHighRisk("clinic"))
}

func TestSnapshotBeforeLoad(t *testing.T) {
	catalog := New(Options{Enabled: true})
	_, err := catalog.Snapshot()
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	var nilCatalog *Catalog
	_, err = nilCatalog.Snapshot()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestDisabledCatalogServesDefaultBundle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "team.yaml"), overlayYAML)

	catalog := New(Options{Enabled: false, Paths: []string{dir}})
	result, err := catalog.Reload()
	require.NoError(t, err)

	assert.True(t, result.Changed)
	assert.Equal(t, ReloadOK, result.Status)
	status := catalog.Status()
	assert.Equal(t, []string{DefaultBundleSource}, status.Sources)
	snapshot, err := catalog.Snapshot()
	require.NoError(t, err)
	_, ok := snapshot.Rule("TEAM-001")
	assert.False(t, ok)
}

func TestReloadMergesFilesInPathOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b", "team.yaml"), overlayYAML)
	writeFile(t, filepath.Join(dir, "a", "extra.json"), `{"rewrite_maps": {"lexicons": {"cta": ["예약 문의"]}}}`)
	writeFile(t, filepath.Join(dir, "notes.md"), "ignored")

	catalog := New(Options{Enabled: true, Paths: []string{dir}})
	result, err := catalog.Reload()
	require.NoError(t, err)
	assert.Equal(t, ReloadOK, result.Status, result.Warnings)

	status := catalog.Status()
	require.Len(t, status.Sources, 3)
	assert.Equal(t, DefaultBundleSource, status.Sources[0])
	assert.True(t, strings.HasSuffix(status.Sources[1], filepath.Join("a", "extra.json")))
	assert.True(t, strings.HasSuffix(status.Sources[2], filepath.Join("b", "team.yaml")))

	snapshot, err := catalog.Snapshot()
	require.NoError(t, err)
	// The embedded bundle is merged first, so its version wins.
	assert.Equal(t, "2026.10-default", snapshot.Version)
	_, ok := snapshot.Rule("TEAM-001")
	assert.True(t, ok)
	assert.Contains(t, snapshot.RewriteMaps.Lexicons.CTA, "예약 문의")
	assert.Contains(t, snapshot.RewriteMaps.Lexicons.CTA, "상담 신청")
	assert.Equal(t, 88.0, snapshot.Policies.Policy("landing").PassCutoff)
}

func TestReloadGlobPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "rules", "nested", "deep", "team.yml"), overlayYAML)
	writeFile(t, filepath.Join(dir, "rules", "other.txt"), "x")

	catalog := New(Options{Enabled: true, SkipDefault: true, Paths: []string{filepath.Join(dir, "rules", "**", "*.yml")}})
	result, err := catalog.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, result.RuleCount)
	assert.Equal(t, "overlay", catalog.Status().Version)
}

func TestReloadReportsBrokenFilesAndKeepsGoing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.json"), brokenJSON)
	writeFile(t, filepath.Join(dir, "team.yaml"), overlayYAML)

	catalog := New(Options{Enabled: true, Paths: []string{dir, filepath.Join(dir, "missing")}})
	result, err := catalog.Reload()
	require.NoError(t, err)

	assert.Equal(t, ReloadWarning, result.Status)
	assert.Equal(t, 2, result.LoadErrorCount)
	joined := strings.Join(catalog.Status().LoadErrors, "\n")
	assert.Contains(t, joined, "broken.json")
	assert.Contains(t, joined, "missing")
}

func TestReloadKeepsPreviousSnapshotWhenNothingLoads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	writeFile(t, path, overlayYAML)

	catalog := New(Options{Enabled: true, SkipDefault: true, Paths: []string{dir}})
	_, err := catalog.Reload()
	require.NoError(t, err)
	before, err := catalog.Snapshot()
	require.NoError(t, err)

	writeFile(t, path, brokenJSON)
	require.NoError(t, os.Rename(path, filepath.Join(dir, "team.json")))

	result, err := catalog.Reload()
	require.Error(t, err)
	assert.Equal(t, ReloadFailed, result.Status)

	after, err := catalog.Snapshot()
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.NotEmpty(t, catalog.Status().LoadErrors)
}

func TestAllowedRootsRejectOutsideFiles(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(root, "in.yaml"), overlayYAML)
	writeFile(t, filepath.Join(outside, "out.yaml"), overlayYAML)

	files, loadErrors := DiscoverBundleFiles([]string{root, filepath.Join(outside, "out.yaml")}, []string{root})
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "in.yaml"))
	require.Len(t, loadErrors, 1)
	assert.Contains(t, loadErrors[0], "outside rule catalog allowed roots")
}

func TestExplicitFileWithUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.toml")
	writeFile(t, path, "x")

	files, loadErrors := DiscoverBundleFiles([]string{path}, nil)
	assert.Empty(t, files)
	require.Len(t, loadErrors, 1)
	assert.Contains(t, loadErrors[0], "unsupported extension")
}

func TestFingerprintAndSubscribers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.yaml")
	writeFile(t, path, overlayYAML)

	catalog := New(Options{Enabled: true, Paths: []string{dir}})
	var mu sync.Mutex
	var notified []ReloadResult
	catalog.Subscribe(func(result ReloadResult) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, result)
	})

	first, err := catalog.Reload()
	require.NoError(t, err)
	again, err := catalog.Reload()
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, first.Fingerprint, again.Fingerprint)

	writeFile(t, path, strings.Replace(overlayYAML, "혁명", "대혁명", 1))
	changed, err := catalog.Reload()
	require.NoError(t, err)
	assert.True(t, changed.Changed)
	assert.NotEqual(t, first.Fingerprint, changed.Fingerprint)
	assert.Equal(t, changed.Fingerprint, catalog.Fingerprint())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, notified, 2)
}

func TestCollectBundleFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "team.yaml"), overlayYAML)

	files, loadErrors := CollectBundleFiles([]string{dir}, nil)
	assert.Empty(t, loadErrors)
	require.Len(t, files, 1)
	assert.Equal(t, int64(len(overlayYAML)), files[0].Size)
	assert.Len(t, files[0].ContentSHA256, 64)
}

func TestStatusUsesClock(t *testing.T) {
	fixed := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	catalog := New(Options{Clock: func() time.Time { return fixed }})
	_, err := catalog.Reload()
	require.NoError(t, err)

	status := catalog.Status()
	assert.True(t, status.Loaded)
	assert.Equal(t, fixed, status.LoadedAt)
	assert.True(t, slices.Equal([]string{DefaultBundleSource}, status.Sources))
}
