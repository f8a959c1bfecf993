package mcp

// Protocol version
const (
	ProtocolVersion = "2025-11-25"
)

// Server identity reported on initialize.
const (
	ServerName    = "qualityos-mcp-go"
	ServerVersion = "0.3.0"
)

type MessageType string

// TypeResult tags tool call results.
const TypeResult MessageType = "result"

// NotificationResourcesListChanged is pushed after the rule catalog swaps its snapshot.
const NotificationResourcesListChanged = "notifications/resources/list_changed"

// Resource URIs served by resources/read.
const (
	ResourceRules         = "quality://rules"
	ResourcePolicies      = "quality://policies"
	ResourceCatalogStatus = "quality://catalog/status"
)
