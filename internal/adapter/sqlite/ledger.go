package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StepLedger is a domain.Provisioner that records each executed step in a
// table keyed by (tenant, module, step). Execution is idempotent: re-running
// a step that already has a row is a no-op, so a retried job never performs
// side effects twice. Compensation deletes the row.
//
// Real provisioning work (schema creation, migrations, seeding) is expected
// to be layered behind this ledger; on its own it gives installations a
// durable, idempotent footprint.
type StepLedger struct {
	db *sql.DB
}

func (l *StepLedger) ExecuteStep(ctx context.Context, tenantID, moduleSlug, stepName string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO provisioned_steps (tenant_id, module, step, executed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(tenant_id, module, step) DO NOTHING`,
		tenantID, moduleSlug, stepName, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("recording step %s/%s: %w", moduleSlug, stepName, err)
	}
	return nil
}

func (l *StepLedger) CompensateStep(ctx context.Context, tenantID, moduleSlug, stepName string) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM provisioned_steps WHERE tenant_id = ? AND module = ? AND step = ?`,
		tenantID, moduleSlug, stepName,
	)
	if err != nil {
		return fmt.Errorf("removing step %s/%s: %w", moduleSlug, stepName, err)
	}
	return nil
}

// Executed reports whether the step has a ledger row.
func (l *StepLedger) Executed(ctx context.Context, tenantID, moduleSlug, stepName string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM provisioned_steps WHERE tenant_id = ? AND module = ? AND step = ?`,
		tenantID, moduleSlug, stepName,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking step %s/%s: %w", moduleSlug, stepName, err)
	}
	return n > 0, nil
}
