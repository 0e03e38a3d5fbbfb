// Package gateway defines the interface for user-facing entry points.
package gateway

import "context"

// Gateway is a user-facing transport (HTTP API, Slack events, etc.).
type Gateway interface {
	// Start launches the gateway's event loop and blocks until the
	// gateway exits or the context is canceled.
	Start(ctx context.Context) error

	// Stop performs graceful shutdown. The context carries the deadline
	// for the grace period; in-flight requests drain before returning.
	Stop(ctx context.Context) error
}
