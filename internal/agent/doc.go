// Package agent is the single entry point every host surface (HTTP API, MCP
// server, CLI, task workers) uses to run actions. It stamps each invocation
// with an id and a duration, journals it, exports metrics and raises alerts
// for failures whose error code is marked as alerting.
package agent
