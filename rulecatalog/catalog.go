// Package rulecatalog loads rule bundles from disk, compiles them and serves the
// resulting immutable snapshot to concurrent runs.
package rulecatalog

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
)

// ErrNoSnapshot is returned before the first successful load.
var ErrNoSnapshot = errors.New("rule catalog has no snapshot")

// DefaultBundleSource names the embedded bundle in sources and fingerprints.
const DefaultBundleSource = "embedded:bundles/default.yaml"

//go:embed bundles/default.yaml
var defaultBundle []byte

// DefaultBundle decodes the embedded rule bundle.
func DefaultBundle() (ruleset.Bundle, error) {
	return ruleset.DecodeBundle(defaultBundle, ruleset.FormatYAML)
}

// Options configure a Catalog.
type Options struct {
	// Enabled turns on loading of Paths. A disabled catalog serves the embedded bundle only.
	Enabled      bool
	Paths        []string
	AllowedRoots []string
	// SkipDefault leaves the embedded bundle out of the merge.
	SkipDefault bool
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Status reports what the current snapshot was built from.
type Status struct {
	Enabled     bool      `json:"enabled"`
	Loaded      bool      `json:"loaded"`
	Version     string    `json:"version"`
	RuleCount   int       `json:"ruleCount"`
	Sources     []string  `json:"sources"`
	Warnings    []string  `json:"warnings"`
	LoadErrors  []string  `json:"loadErrors"`
	Fingerprint string    `json:"fingerprint"`
	LoadedAt    time.Time `json:"loadedAt"`
}

// ReloadResult summarizes one Reload call.
type ReloadResult struct {
	Changed        bool     `json:"changed"`
	RuleCount      int      `json:"ruleCount"`
	WarningCount   int      `json:"warningCount"`
	LoadErrorCount int      `json:"loadErrorCount"`
	Status         string   `json:"status"`
	Fingerprint    string   `json:"fingerprint"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Reload statuses.
const (
	ReloadOK      = "ok"
	ReloadWarning = "warning"
	ReloadFailed  = "failed"
)

// Catalog holds the active snapshot. Reload swaps it atomically; readers never see a
// partially built snapshot.
type Catalog struct {
	opts Options

	mu          sync.RWMutex
	snapshot    *ruleset.Snapshot
	sources     []string
	warnings    []string
	loadErrors  []string
	fingerprint string
	loadedAt    time.Time

	reloadMu sync.Mutex

	subMu       sync.Mutex
	subscribers []func(ReloadResult)
}

// New creates a catalog. Nothing is read until Reload.
func New(opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	opts.Paths = slices.Clone(opts.Paths)
	opts.AllowedRoots = slices.Clone(opts.AllowedRoots)
	return &Catalog{opts: opts}
}

// Enabled reports whether configured bundle paths are loaded.
func (c *Catalog) Enabled() bool {
	return c != nil && c.opts.Enabled
}

// Paths returns the configured bundle paths.
func (c *Catalog) Paths() []string {
	return slices.Clone(c.opts.Paths)
}

// Snapshot returns the active snapshot.
func (c *Catalog) Snapshot() (*ruleset.Snapshot, error) {
	if c == nil {
		return nil, ErrNoSnapshot
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return c.snapshot, nil
}

// Fingerprint is a digest of the sources behind the active snapshot.
func (c *Catalog) Fingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fingerprint
}

// Status returns a copy of the catalog state.
func (c *Catalog) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := Status{
		Enabled:     c.opts.Enabled,
		Loaded:      c.snapshot != nil,
		Sources:     slices.Clone(c.sources),
		Warnings:    slices.Clone(c.warnings),
		LoadErrors:  slices.Clone(c.loadErrors),
		Fingerprint: c.fingerprint,
		LoadedAt:    c.loadedAt,
	}
	if c.snapshot != nil {
		status.Version = c.snapshot.Version
		status.RuleCount = len(c.snapshot.Rules)
	}
	return status
}

// Subscribe registers fn to be called after every reload that changed the snapshot.
func (c *Catalog) Subscribe(fn func(ReloadResult)) {
	if fn == nil {
		return
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

type fragment struct {
	source string
	data   []byte
	bundle ruleset.Bundle
}

// Reload rediscovers, decodes, merges and compiles every bundle and swaps the snapshot.
// Unreadable or undecodable files are skipped and reported. When no fragment at all
// could be decoded the previous snapshot stays active and an error is returned.
func (c *Catalog) Reload() (ReloadResult, error) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	fragments, loadErrors := c.collect()
	if len(fragments) == 0 {
		result := ReloadResult{
			LoadErrorCount: len(loadErrors),
			Status:         ReloadFailed,
			Fingerprint:    c.Fingerprint(),
			Warnings:       summarize(loadErrors, maxSummarized),
		}
		c.mu.Lock()
		c.loadErrors = slices.Clone(loadErrors)
		c.mu.Unlock()
		c.opts.Logger.Warn("Rule catalog reload produced no bundle", "load_errors", len(loadErrors))
		return result, fmt.Errorf("reload rule catalog: no bundle could be loaded: %s", strings.Join(loadErrors, "; "))
	}

	bundles := make([]ruleset.Bundle, 0, len(fragments))
	sources := make([]string, 0, len(fragments))
	for _, f := range fragments {
		bundles = append(bundles, f.bundle)
		sources = append(sources, f.source)
	}
	merged, mergeWarnings := ruleset.MergeBundles(bundles...)
	snapshot, compileWarnings := ruleset.Compile(merged)
	warnings := slices.Concat(mergeWarnings, compileWarnings)
	fingerprint := fingerprintFragments(fragments)

	c.mu.Lock()
	changed := c.fingerprint != fingerprint
	c.snapshot = snapshot
	c.sources = sources
	c.warnings = warnings
	c.loadErrors = slices.Clone(loadErrors)
	c.fingerprint = fingerprint
	c.loadedAt = c.opts.Clock()
	c.mu.Unlock()

	result := ReloadResult{
		Changed:        changed,
		RuleCount:      len(snapshot.Rules),
		WarningCount:   len(warnings),
		LoadErrorCount: len(loadErrors),
		Status:         ReloadOK,
		Fingerprint:    fingerprint,
	}
	if len(warnings) > 0 || len(loadErrors) > 0 {
		result.Status = ReloadWarning
		result.Warnings = summarize(slices.Concat(loadErrors, warnings), maxSummarized)
	}

	c.opts.Logger.Info("Rule catalog reloaded",
		"version", snapshot.Version,
		"rules", len(snapshot.Rules),
		"sources", len(sources),
		"warnings", len(warnings),
		"load_errors", len(loadErrors),
		"changed", changed,
	)
	for _, warning := range warnings {
		c.opts.Logger.Debug("Rule catalog warning", "warning", warning)
	}

	if changed {
		c.notify(result)
	}
	return result, nil
}

func (c *Catalog) collect() ([]fragment, []string) {
	var fragments []fragment
	var loadErrors []string

	if !c.opts.SkipDefault {
		bundle, err := DefaultBundle()
		if err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", DefaultBundleSource, err))
		} else {
			fragments = append(fragments, fragment{source: DefaultBundleSource, data: defaultBundle, bundle: bundle})
		}
	}
	if !c.opts.Enabled {
		return fragments, loadErrors
	}

	files, discoverErrors := DiscoverBundleFiles(c.opts.Paths, c.opts.AllowedRoots)
	loadErrors = append(loadErrors, discoverErrors...)
	for _, path := range files {
		f, err := loadFragment(path)
		if err != nil {
			loadErrors = append(loadErrors, err.Error())
			continue
		}
		fragments = append(fragments, f)
	}
	return fragments, loadErrors
}

func loadFragment(path string) (fragment, error) {
	format, ok := ruleset.FormatForPath(path)
	if !ok {
		return fragment{}, fmt.Errorf("bundle file %s: unsupported extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fragment{}, fmt.Errorf("read bundle file %s: %w", path, err)
	}
	bundle, err := ruleset.DecodeBundle(data, format)
	if err != nil {
		return fragment{}, fmt.Errorf("bundle file %s: %w", path, err)
	}
	return fragment{source: path, data: data, bundle: bundle}, nil
}

// CollectBundleFiles returns size and content digests for the discovered bundle files.
func CollectBundleFiles(paths []string, allowedRoots []string) ([]BundleFile, []string) {
	files, loadErrors := DiscoverBundleFiles(paths, allowedRoots)
	out := make([]BundleFile, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("read bundle file %s: %v", path, err))
			continue
		}
		out = append(out, BundleFile{Path: path, Size: int64(len(data)), ContentSHA256: contentSHA256(data)})
	}
	return out, loadErrors
}

func fingerprintFragments(fragments []fragment) string {
	h := sha256.New()
	for _, f := range fragments {
		h.Write([]byte(f.source))
		h.Write([]byte{0})
		h.Write([]byte(contentSHA256(f.data)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Catalog) notify(result ReloadResult) {
	c.subMu.Lock()
	subscribers := slices.Clone(c.subscribers)
	c.subMu.Unlock()
	for _, fn := range subscribers {
		fn(result)
	}
}

const maxSummarized = 5

func summarize(messages []string, limit int) []string {
	if len(messages) == 0 {
		return nil
	}
	if limit <= 0 || len(messages) <= limit {
		return slices.Clone(messages)
	}
	out := slices.Clone(messages[:limit])
	return append(out, fmt.Sprintf("... %d more warning(s)", len(messages)-limit))
}
