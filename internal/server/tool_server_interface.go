package server

// CardNewsToolServer defines the interface for the MCP server that handles
// card-news tool calls from MCP clients.
type CardNewsToolServer interface {
	// Initialize registers the tools.
	Initialize() error

	// Start starts the MCP server on the specified transport.
	Start() error

	// Stop gracefully shuts down the MCP server.
	Stop() error
}
