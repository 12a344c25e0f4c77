package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avellaneda/modstack/internal/domain"
)

// StateRepository implements domain.StateRepository using SQLite.
type StateRepository struct {
	db *sql.DB
}

func (r *StateRepository) Get(ctx context.Context, tenantID, slug string) (domain.TenantModuleState, error) {
	return r.scanState(r.db.QueryRowContext(ctx,
		`SELECT tenant_id, slug, status, installed_version, last_job_id, failure_reason, created_at, updated_at
		 FROM tenant_module_states WHERE tenant_id = ? AND slug = ?`, tenantID, slug,
	))
}

// Save upserts the state keyed by (tenant_id, slug).
func (r *StateRepository) Save(ctx context.Context, st domain.TenantModuleState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenant_module_states
		   (tenant_id, slug, status, installed_version, last_job_id, failure_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, slug) DO UPDATE SET
		   status = excluded.status,
		   installed_version = excluded.installed_version,
		   last_job_id = excluded.last_job_id,
		   failure_reason = excluded.failure_reason,
		   updated_at = excluded.updated_at`,
		st.TenantID, st.Slug, string(st.Status), st.InstalledVersion, st.LastJobID, st.FailureReason,
		st.CreatedAt.Format(timeFormat),
		st.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving module state: %w", err)
	}
	return nil
}

func (r *StateRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.TenantModuleState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id, slug, status, installed_version, last_job_id, failure_reason, created_at, updated_at
		 FROM tenant_module_states WHERE tenant_id = ? ORDER BY slug`, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing module states: %w", err)
	}
	defer rows.Close()

	var states []domain.TenantModuleState
	for rows.Next() {
		st, err := r.scanStateFromRows(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}

	return states, rows.Err()
}

// scanState scans a single row from QueryRow into a domain.TenantModuleState.
func (r *StateRepository) scanState(row *sql.Row) (domain.TenantModuleState, error) {
	var st domain.TenantModuleState
	var status, createdAt, updatedAt string

	err := row.Scan(&st.TenantID, &st.Slug, &status, &st.InstalledVersion,
		&st.LastJobID, &st.FailureReason, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.TenantModuleState{}, domain.ErrStateNotFound
		}
		return domain.TenantModuleState{}, fmt.Errorf("scanning module state: %w", err)
	}

	st.Status = domain.Status(status)
	st.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	st.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return st, nil
}

// scanStateFromRows scans a single row from Rows (used in ListByTenant).
func (r *StateRepository) scanStateFromRows(rows *sql.Rows) (domain.TenantModuleState, error) {
	var st domain.TenantModuleState
	var status, createdAt, updatedAt string

	err := rows.Scan(&st.TenantID, &st.Slug, &status, &st.InstalledVersion,
		&st.LastJobID, &st.FailureReason, &createdAt, &updatedAt)
	if err != nil {
		return domain.TenantModuleState{}, fmt.Errorf("scanning module state row: %w", err)
	}

	st.Status = domain.Status(status)
	st.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	st.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return st, nil
}
