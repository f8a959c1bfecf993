package mcp

// Tool represents a tool definition
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema represents the JSON schema for tool input
type InputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
	Title      string         `json:"title"`
}

// Resource is one entry of resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType"`
}

// ResourceContent is one entry of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Resources lists every resource the server can read.
func Resources() []Resource {
	return []Resource{
		{
			URI:         ResourceRules,
			Name:        "Quality Rules",
			Description: "Compiled rules of the active snapshot",
			MimeType:    "application/json",
		},
		{
			URI:         ResourcePolicies,
			Name:        "Module Policies",
			Description: "Pass cutoffs, required evidence and high-risk modules",
			MimeType:    "application/json",
		},
		{
			URI:         ResourceCatalogStatus,
			Name:        "Rule Catalog Status",
			Description: "Sources, warnings and fingerprint of the active snapshot",
			MimeType:    "application/json",
		},
	}
}
