package rulecatalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/slighter12/qualityos-mcp-go/quality/ruleset"
)

// BundleFile captures one bundle file's identity for deterministic change detection.
type BundleFile struct {
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	ContentSHA256 string `json:"contentSha256"`
}

// DiscoverBundleFiles expands paths (files, directories or doublestar globs) into bundle
// files, applying the allowed-roots policy. Results are canonical and sorted.
func DiscoverBundleFiles(paths []string, allowedRoots []string) ([]string, []string) {
	files := make([]string, 0)
	seen := make(map[string]struct{})
	loadErrors := make([]string, 0)

	roots := normalizePolicyRoots(allowedRoots)
	if len(roots) == 0 {
		roots = normalizePolicyRoots(staticPrefixes(paths))
	}

	for _, rawPath := range paths {
		discovered, discoverErr := discoverBundleFiles(rawPath)
		if discoverErr != nil {
			loadErrors = append(loadErrors, discoverErr.Error())
		}
		for _, filePath := range discovered {
			canonicalFilePath := canonicalPathForBoundary(filePath)
			if len(roots) > 0 && !isPathWithinAllowedRoots(canonicalFilePath, roots) {
				loadErrors = append(loadErrors, fmt.Sprintf("bundle file %s is outside rule catalog allowed roots", canonicalFilePath))
				continue
			}
			if _, ok := seen[canonicalFilePath]; ok {
				continue
			}
			seen[canonicalFilePath] = struct{}{}
			files = append(files, canonicalFilePath)
		}
	}

	sort.Strings(files)
	return files, loadErrors
}

func discoverBundleFiles(rawPath string) ([]string, error) {
	path := strings.TrimSpace(rawPath)
	if path == "" {
		return nil, nil
	}
	path = expandUser(path)

	if isGlob(path) {
		matches, err := doublestar.FilepathGlob(path, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob bundle pattern %s: %w", path, err)
		}
		results := make([]string, 0, len(matches))
		for _, match := range matches {
			if isBundleFile(match) {
				results = append(results, filepath.Clean(match))
			}
		}
		return results, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat bundle path %s: %w", filepath.Clean(path), err)
	}

	if !info.IsDir() {
		if !isBundleFile(path) {
			return nil, fmt.Errorf("bundle file %s: unsupported extension", filepath.Clean(path))
		}
		return []string{filepath.Clean(path)}, nil
	}

	results := make([]string, 0)
	walkErr := filepath.WalkDir(path, func(current string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && isBundleFile(current) {
			results = append(results, filepath.Clean(current))
		}
		return nil
	})
	if walkErr != nil {
		return results, fmt.Errorf("walk bundle path %s: %w", filepath.Clean(path), walkErr)
	}
	return results, nil
}

func isBundleFile(path string) bool {
	_, ok := ruleset.FormatForPath(path)
	return ok
}

func isGlob(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// staticPrefixes turns each configured path into the directory part that holds no glob
// syntax, so a pattern's own base directory bounds it when no roots are configured.
func staticPrefixes(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, raw := range paths {
		path := expandUser(strings.TrimSpace(raw))
		if path == "" {
			continue
		}
		if isGlob(path) {
			base, _ := doublestar.SplitPattern(filepath.ToSlash(path))
			path = filepath.FromSlash(base)
		}
		out = append(out, path)
	}
	return out
}

func normalizePolicyRoots(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, raw := range paths {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		canonical := canonicalPathForBoundary(expandUser(trimmed))
		if _, exists := seen[canonical]; exists {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out
}

func canonicalPathForBoundary(path string) string {
	cleaned := filepath.Clean(path)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		cleaned = resolved
	}
	return filepath.Clean(cleaned)
}

func isPathWithinAllowedRoots(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || rel == "" {
			return true
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func expandUser(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func contentSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
