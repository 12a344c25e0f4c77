package domain

// Entitlement is a snapshot of what one tenant is currently allowed to
// consume: granted feature keys plus remaining numeric quota balances.
// The subscription service owns the source of truth; the orchestrator only
// reads it through the EntitlementSource port.
type Entitlement struct {
	Features map[string]bool
	Quotas   map[string]int
}

// HasFeature reports whether the feature key is granted.
func (e Entitlement) HasFeature(key string) bool {
	return e.Features[key]
}
