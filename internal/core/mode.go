// Package core is the orchestration layer.  It composes the event
// loop, the connection controller and a transport into complete
// operational modes and provides a builder that selects the right mode
// from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  controller  →  session  →  core  →  cmd (CLI)
//
// Every controller call made here is posted to the event loop; nothing
// in this package touches the controller from its own goroutine.
package core

import "context"

// Mode represents a complete operational mode of tcpassist (interactive
// console or one-shot send).  Each mode owns its full lifecycle from
// startup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
