// Package entitlement provides an in-memory, plan-based entitlement source.
// In production the source of truth is the subscription service; this
// adapter stands in for it in single-binary deployments and tests.
package entitlement

import (
	"context"
	"sync"

	"github.com/avellaneda/modstack/internal/domain"
)

// Compile-time check: InMemory implements domain.EntitlementSource.
var _ domain.EntitlementSource = (*InMemory)(nil)

// Plan groups the grants a subscription tier confers.
type Plan struct {
	Name     string
	Features map[string]bool
	Quotas   map[string]int
}

// InMemory resolves tenant entitlements through plan assignments. Tenants
// without an assignment have no grants.
type InMemory struct {
	mu      sync.RWMutex
	plans   map[string]Plan
	tenants map[string]string // tenant -> plan name
}

// NewInMemory creates a source with the given plans registered.
func NewInMemory(plans ...Plan) *InMemory {
	s := &InMemory{
		plans:   make(map[string]Plan),
		tenants: make(map[string]string),
	}
	for _, p := range plans {
		s.plans[p.Name] = p
	}
	return s
}

// AssignPlan binds a tenant to a plan by name. Assigning an unregistered
// plan leaves the tenant with no grants.
func (s *InMemory) AssignPlan(tenantID, planName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID] = planName
}

// IsEntitled reports whether the tenant's plan grants the feature.
func (s *InMemory) IsEntitled(_ context.Context, tenantID, featureKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[s.tenants[tenantID]]
	if !ok {
		return false, nil
	}
	return plan.Features[featureKey], nil
}

// QuotaRemaining returns the tenant's plan allowance for the quota key.
// Unknown keys and unassigned tenants have zero allowance.
func (s *InMemory) QuotaRemaining(_ context.Context, tenantID, quotaKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[s.tenants[tenantID]]
	if !ok {
		return 0, nil
	}
	return plan.Quotas[quotaKey], nil
}
