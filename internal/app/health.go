package app

import (
	"sync/atomic"

	"github.com/genbridge-dev/genbridge/internal/server"
)

var _ server.ReadinessChecker = (*Health)(nil)

// Health holds the readiness flag consumed by the server's /readyz probe.
// The app flips it on once the listener is bound and off again when shutdown
// begins, so load balancers drain before in-flight requests are cut.
type Health struct {
	ready atomic.Bool
}

// NewHealth returns a not-ready Health.
func NewHealth() *Health {
	return &Health{}
}

// SetReady flips the readiness flag.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the current readiness flag.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
