package ipc

// resolve validates cap against the registry and checks it authorizes
// want. This is the hot path spec.md §4.3 calls out for a tight cycle
// budget: one shard RLock for the map lookup, one atomic load for the
// generation compare, no allocation.
func (r *registry) resolve(cap Capability, want Perm) (*Endpoint, error) {
	if !cap.Perms().Has(want) {
		return nil, ErrPermissionDenied
	}
	ep := r.lookup(cap.EndpointID())
	if ep == nil {
		return nil, ErrInvalidCapability
	}
	if ep.Generation() != cap.Generation() {
		return nil, ErrInvalidCapability
	}
	return ep, nil
}
