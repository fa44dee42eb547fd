package graph

import "errors"

// Structural control-plane errors, per spec.md §7. Surfaced synchronously
// to the caller; they never have audio-path consequences.
var (
	ErrNodeNotFound  = errors.New("graph: node not found")
	ErrDuplicateEdge = errors.New("graph: duplicate edge for (source, source_port, target, target_port)")
	ErrInvalidPort   = errors.New("graph: invalid port")
	ErrCycleDetected = errors.New("graph: cycle detected")
)
