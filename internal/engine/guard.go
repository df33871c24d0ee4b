package engine

import "sync/atomic"

// CloseGuard is the process-wide pre-close flag shared by all symbols. The
// daily schedule coordinator is the only writer; order attempts read it to
// decide whether the market clock must be double-checked before submitting.
type CloseGuard struct {
	armed atomic.Bool
}

// Arm enables the pre-close double check.
func (g *CloseGuard) Arm() { g.armed.Store(true) }

// Disarm disables the pre-close double check at day-open.
func (g *CloseGuard) Disarm() { g.armed.Store(false) }

// Armed reports whether the double check is required.
func (g *CloseGuard) Armed() bool { return g.armed.Load() }
