package shared

import (
	"fmt"

	"github.com/slighter12/qualityos-mcp-go/mcp"
	"github.com/slighter12/qualityos-mcp-go/tools/quality"
	"github.com/slighter12/qualityos-mcp-go/tools/types"
)

// NewResourceReader serves the quality:// resources from runner's catalog.
func NewResourceReader(runner *quality.Runner) ResourceReader {
	return func(uri string) (any, error) {
		switch uri {
		case mcp.ResourceCatalogStatus:
			return runner.Catalog().Status(), nil
		case mcp.ResourceRules, mcp.ResourcePolicies:
		default:
			return nil, types.NewInvalidParamsError(fmt.Sprintf("unknown resource: %s", uri), map[string]any{
				"field":   "uri",
				"problem": "unknown_resource",
				"value":   uri,
			})
		}

		snapshot, err := runner.Snapshot()
		if err != nil {
			return nil, err
		}
		if uri == mcp.ResourceRules {
			return quality.ListRules(snapshot, quality.RuleFilter{}), nil
		}
		return map[string]any{
			"version":  snapshot.Version,
			"policies": snapshot.Policies,
		}, nil
	}
}
