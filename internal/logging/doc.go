// Package logging provides file-based structured logging with rotation
// for brainmcp. Logs are JSON lines written to the data directory so the
// background watcher and resync runs can be diagnosed after the fact.
//
// In MCP stdio mode logs go exclusively to the file: stdout carries the
// JSON-RPC stream and must never be touched by a log line.
package logging
