package jobs

import "sync"

// Registry is the single source of truth for "has this job already been
// queued or stored". Claim is an indivisible check-and-set; nothing
// ever unclaims an identity.
type Registry struct {
	seen sync.Map
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Claim atomically tests-and-marks the identity. It returns true for
// the first caller and false for every later one. LoadOrStore keeps the
// check and the set in one step, so there is no window between them.
func (r *Registry) Claim(id Identity) bool {
	if id.IsZero() {
		return false
	}
	_, loaded := r.seen.LoadOrStore(id.Key(), struct{}{})
	return !loaded
}

// Claimed reports whether the identity has been claimed. Used by the
// sink as a last-resort duplicate guard before buffering.
func (r *Registry) Claimed(id Identity) bool {
	_, ok := r.seen.Load(id.Key())
	return ok
}
