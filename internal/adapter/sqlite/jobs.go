package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avellaneda/modstack/internal/domain"
)

// JobRepository implements domain.JobRepository using SQLite. The resolved
// order and the step audit trail are stored as JSON columns: both are
// written and read whole, never queried into.
type JobRepository struct {
	db *sql.DB
}

func (r *JobRepository) Create(ctx context.Context, job domain.InstallationJob) error {
	order, steps, err := marshalJobLists(job)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO installation_jobs
		   (id, tenant_id, target_module, kind, plan, status, resolved_order, completed_steps, failure_reason, requested_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.TargetModule, string(job.Kind), job.Plan, string(job.Status),
		order, steps, job.FailureReason,
		job.RequestedAt.Format(timeFormat),
		job.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (domain.InstallationJob, error) {
	var job domain.InstallationJob
	var kind, status, order, steps, requestedAt, updatedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, target_module, kind, plan, status, resolved_order, completed_steps, failure_reason, requested_at, updated_at
		 FROM installation_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.TenantID, &job.TargetModule, &kind, &job.Plan, &status,
		&order, &steps, &job.FailureReason, &requestedAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.InstallationJob{}, domain.ErrJobNotFound
		}
		return domain.InstallationJob{}, fmt.Errorf("scanning job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.RequestedAt, _ = time.Parse(timeFormat, requestedAt)
	job.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	if err := json.Unmarshal([]byte(order), &job.ResolvedOrder); err != nil {
		return domain.InstallationJob{}, fmt.Errorf("decoding resolved order: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &job.CompletedSteps); err != nil {
		return domain.InstallationJob{}, fmt.Errorf("decoding completed steps: %w", err)
	}

	return job, nil
}

func (r *JobRepository) Update(ctx context.Context, job domain.InstallationJob) error {
	order, steps, err := marshalJobLists(job)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE installation_jobs
		 SET status = ?, resolved_order = ?, completed_steps = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ?`,
		string(job.Status), order, steps, job.FailureReason,
		time.Now().UTC().Format(timeFormat), job.ID,
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

// ListByTenant returns the tenant's jobs, most recent first.
func (r *JobRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.InstallationJob, error) {
	query := `SELECT id FROM installation_jobs WHERE tenant_id = ? ORDER BY requested_at DESC, id DESC`
	args := []any{tenantID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]domain.InstallationJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func marshalJobLists(job domain.InstallationJob) (order, steps string, err error) {
	o, err := json.Marshal(job.ResolvedOrder)
	if err != nil {
		return "", "", fmt.Errorf("encoding resolved order: %w", err)
	}
	s, err := json.Marshal(job.CompletedSteps)
	if err != nil {
		return "", "", fmt.Errorf("encoding completed steps: %w", err)
	}
	return string(o), string(s), nil
}
