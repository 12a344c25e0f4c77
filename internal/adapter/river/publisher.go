package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/avellaneda/modstack/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// ModuleEventArgs carries the data needed to process a module lifecycle
// event asynchronously. River serializes this as JSON into its job queue
// table. It includes a snapshot of the module state at the time the event
// was published, so the worker never needs to query the database.
type ModuleEventArgs struct {
	Event    string `json:"event"`
	TenantID string `json:"tenant_id"`
	Module   string `json:"module"`
	Version  string `json:"version"`
	Status   string `json:"status"`
	JobID    string `json:"job_id"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (ModuleEventArgs) Kind() string { return "module.lifecycle" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a module lifecycle event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, state domain.TenantModuleState) error {
	_, err := p.client.Insert(ctx, ModuleEventArgs{
		Event:    string(event),
		TenantID: state.TenantID,
		Module:   state.Slug,
		Version:  state.InstalledVersion,
		Status:   string(state.Status),
		JobID:    state.LastJobID,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
