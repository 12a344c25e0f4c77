package domain

import "context"

// StateRepository defines the persistence contract for per-tenant module
// states. Save is an upsert keyed by (tenant, slug).
type StateRepository interface {
	Get(ctx context.Context, tenantID, slug string) (TenantModuleState, error)
	Save(ctx context.Context, state TenantModuleState) error
	ListByTenant(ctx context.Context, tenantID string) ([]TenantModuleState, error)
}

// JobRepository defines the persistence contract for installation jobs.
// ListByTenant returns the tenant's jobs most recent first; limit <= 0
// means no limit.
type JobRepository interface {
	Create(ctx context.Context, job InstallationJob) error
	GetByID(ctx context.Context, id string) (InstallationJob, error)
	Update(ctx context.Context, job InstallationJob) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]InstallationJob, error)
}

// Provisioner executes the real per-tenant work behind installation steps:
// schema creation, migrations, seeding. The orchestrator never knows what a
// step does, only that it is idempotent and paired with a compensator.
type Provisioner interface {
	ExecuteStep(ctx context.Context, tenantID, moduleSlug, stepName string) error
	CompensateStep(ctx context.Context, tenantID, moduleSlug, stepName string) error
}

// EntitlementSource exposes subscription-derived grants owned by the
// external subscription service.
type EntitlementSource interface {
	IsEntitled(ctx context.Context, tenantID, featureKey string) (bool, error)
	QuotaRemaining(ctx context.Context, tenantID, quotaKey string) (int, error)
}

// EventPublisher defines the contract for emitting module lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, state TenantModuleState) error
}

// TransitionValidator checks whether an event is allowed from the current
// status and returns the destination status.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
