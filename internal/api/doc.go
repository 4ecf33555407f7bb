// Package api implements the HTTP API of the bridge.
//
// Endpoints:
//   - PUT /api/cover sets a cover position by name
//   - GET /api/cover/{name} reads one cover position from the hub
//   - GET /api/covers reads every cover position
//   - GET /api/health reports component health
//   - GET /metrics serves Prometheus metrics
//
// Errors are JSON documents of the form {"error": "...", "code": "..."}.
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
