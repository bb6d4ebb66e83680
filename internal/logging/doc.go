// Package logging configures structured slog output for nocmatch.
//
// Logs are JSON lines written to a size-rotated file under ~/.nocmatch/logs.
// CLI commands may mirror them to stderr; the MCP server never does, since
// stdout and stderr belong to the JSON-RPC transport.
package logging
