package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/avellaneda/modstack/internal/domain"
)

// defaultStepTimeout bounds a single provisioner step. Schema work runs in
// the seconds-to-minutes range; anything longer is treated as a failure.
const defaultStepTimeout = 2 * time.Minute

// InstallerConfig holds the collaborators of an InstallerService.
type InstallerConfig struct {
	Catalog      *domain.Catalog
	States       domain.StateRepository
	Jobs         domain.JobRepository
	Provisioner  domain.Provisioner
	Entitlements domain.EntitlementSource
	Publisher    domain.EventPublisher
	Validator    domain.TransitionValidator
	StepTimeout  time.Duration
}

// InstallerService orchestrates module installation and uninstallation per
// tenant: it gates on entitlements, resolves dependency order, drives each
// module through its state machine, and rolls back on failure. One
// invocation runs on its own goroutine; tenants share nothing but the
// read-only catalog.
type InstallerService struct {
	catalog      *domain.Catalog
	states       domain.StateRepository
	jobs         domain.JobRepository
	provisioner  domain.Provisioner
	entitlements domain.EntitlementSource
	publisher    domain.EventPublisher
	validator    domain.TransitionValidator
	locks        *pairLocks
	stepTimeout  time.Duration
}

// NewInstallerService creates a service with the given collaborators.
func NewInstallerService(cfg InstallerConfig) *InstallerService {
	timeout := cfg.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	return &InstallerService{
		catalog:      cfg.Catalog,
		states:       cfg.States,
		jobs:         cfg.Jobs,
		provisioner:  cfg.Provisioner,
		entitlements: cfg.Entitlements,
		publisher:    cfg.Publisher,
		validator:    cfg.Validator,
		locks:        newPairLocks(),
		stepTimeout:  timeout,
	}
}

// Install brings moduleSlug and its missing dependencies to "installed" for
// the tenant. Pre-flight failures (entitlement, quota, resolution,
// conflict) return before any job is created and leave no observable side
// effects. Once a job runs, a failing step rolls back every module the job
// touched, in reverse; the returned result then carries the job's terminal
// status alongside the causing error.
func (s *InstallerService) Install(ctx context.Context, tenantID, moduleSlug, planID string) (domain.InstallationResult, error) {
	target, err := s.catalog.Latest(moduleSlug)
	if err != nil {
		return domain.InstallationResult{}, err
	}

	if err := s.checkEntitlement(ctx, tenantID, target); err != nil {
		return domain.InstallationResult{}, err
	}

	installed, err := s.installedVersions(ctx, tenantID)
	if err != nil {
		return domain.InstallationResult{}, err
	}

	order, err := domain.Resolve(s.catalog, moduleSlug, installed)
	if err != nil {
		return domain.InstallationResult{}, err
	}

	if len(order) == 0 {
		// Already installed at the current version: success, no new job.
		return domain.InstallationResult{
			Status:    domain.JobCompleted,
			Installed: []string{moduleSlug},
		}, nil
	}

	// Dependencies pulled in by resolution are gated too, before anything
	// is persisted.
	for _, def := range order {
		if def.Slug == moduleSlug {
			continue
		}
		if err := s.checkEntitlement(ctx, tenantID, def); err != nil {
			return domain.InstallationResult{}, err
		}
	}

	slugs := make([]string, len(order))
	for i, def := range order {
		slugs[i] = def.Slug
	}

	if !s.locks.tryAcquire(tenantID, slugs) {
		return domain.InstallationResult{}, &domain.ConflictError{TenantID: tenantID, Slug: moduleSlug}
	}
	defer s.locks.release(tenantID, slugs)

	jobID, err := generateJobID()
	if err != nil {
		return domain.InstallationResult{}, fmt.Errorf("generating job id: %w", err)
	}

	resolved := make([]domain.ResolvedModule, len(order))
	for i, def := range order {
		resolved[i] = domain.ResolvedModule{Slug: def.Slug, Version: def.Version}
	}

	// Persisting the pending job is the durability point: an interrupted
	// job can be found and rolled back after a crash.
	job := domain.NewInstallationJob(jobID, tenantID, moduleSlug, domain.KindInstall, planID, resolved)
	if err := s.jobs.Create(ctx, job); err != nil {
		return domain.InstallationResult{}, fmt.Errorf("creating job: %w", err)
	}

	job.Status = domain.JobRunning
	if err := s.jobs.Update(ctx, job); err != nil {
		return domain.InstallationResult{}, fmt.Errorf("starting job: %w", err)
	}

	installedSlugs := make([]string, 0, len(order))
	for i, def := range order {
		failedStep, stepErr := s.installModule(ctx, &job, def)
		if stepErr == nil {
			installedSlugs = append(installedSlugs, def.Slug)
			continue
		}

		// Record the failure durably before rollback begins, so it remains
		// auditable even if the process crashes mid-rollback.
		job.Status = domain.JobFailed
		job.FailureReason = stepErr.Error()
		if err := s.jobs.Update(ctx, job); err != nil {
			slog.ErrorContext(ctx, "recording job failure",
				"job_id", job.ID, "tenant_id", tenantID, "error", err)
		}

		rbErr := s.rollback(ctx, &job, order[:i+1])
		if rbErr != nil {
			job.Status = domain.JobRolledBackPartial
			slog.ErrorContext(ctx, "rollback incomplete, operator intervention required",
				"job_id", job.ID, "tenant_id", tenantID, "error", rbErr)
		} else {
			job.Status = domain.JobRolledBack
		}
		if err := s.jobs.Update(ctx, job); err != nil {
			slog.ErrorContext(ctx, "recording rollback outcome",
				"job_id", job.ID, "tenant_id", tenantID, "error", err)
		}

		result := domain.InstallationResult{
			JobID:        job.ID,
			Status:       job.Status,
			FailedModule: def.Slug,
			FailedStep:   failedStep,
		}
		if rbErr != nil {
			return result, rbErr
		}
		return result, stepErr
	}

	job.Status = domain.JobCompleted
	if err := s.jobs.Update(ctx, job); err != nil {
		return domain.InstallationResult{}, fmt.Errorf("completing job: %w", err)
	}

	slog.InfoContext(ctx, "installation completed",
		"job_id", job.ID, "tenant_id", tenantID, "module", moduleSlug, "modules", len(order))

	return domain.InstallationResult{
		JobID:     job.ID,
		Status:    domain.JobCompleted,
		Installed: installedSlugs,
	}, nil
}

// Uninstall removes an installed module. It is rejected while any other
// installed module still depends on it; dependents must be uninstalled
// first (cascading is deliberately not offered, to avoid silent data loss).
// preserveData skips compensation of data-bearing steps.
func (s *InstallerService) Uninstall(ctx context.Context, tenantID, moduleSlug string, preserveData bool) (domain.InstallationResult, error) {
	state, err := s.states.Get(ctx, tenantID, moduleSlug)
	if err != nil {
		return domain.InstallationResult{}, err
	}

	switch state.Status {
	case domain.StatusInstalled, domain.StatusFailed:
		// Uninstallable.
	case domain.StatusNotInstalled:
		return domain.InstallationResult{}, domain.ErrNotInstalled
	default:
		return domain.InstallationResult{}, &domain.ConflictError{TenantID: tenantID, Slug: moduleSlug}
	}

	dependents, err := s.installedDependents(ctx, tenantID, moduleSlug)
	if err != nil {
		return domain.InstallationResult{}, err
	}
	if len(dependents) > 0 {
		return domain.InstallationResult{}, &domain.UninstallBlockedError{Slug: moduleSlug, Dependents: dependents}
	}

	if !s.locks.tryAcquire(tenantID, []string{moduleSlug}) {
		return domain.InstallationResult{}, &domain.ConflictError{TenantID: tenantID, Slug: moduleSlug}
	}
	defer s.locks.release(tenantID, []string{moduleSlug})

	def, err := s.catalog.Get(moduleSlug, state.InstalledVersion)
	if err != nil {
		// Installed version no longer in the catalog; best remaining source
		// of the step list is the latest definition.
		if def, err = s.catalog.Latest(moduleSlug); err != nil {
			return domain.InstallationResult{}, err
		}
	}

	jobID, err := generateJobID()
	if err != nil {
		return domain.InstallationResult{}, fmt.Errorf("generating job id: %w", err)
	}

	job := domain.NewInstallationJob(jobID, tenantID, moduleSlug, domain.KindUninstall, "", []domain.ResolvedModule{
		{Slug: moduleSlug, Version: def.Version},
	})
	if err := s.jobs.Create(ctx, job); err != nil {
		return domain.InstallationResult{}, fmt.Errorf("creating job: %w", err)
	}
	job.Status = domain.JobRunning
	if err := s.jobs.Update(ctx, job); err != nil {
		return domain.InstallationResult{}, fmt.Errorf("starting job: %w", err)
	}

	state.LastJobID = job.ID
	if err := s.transition(ctx, &state, domain.EventBeginUninstall); err != nil {
		return domain.InstallationResult{}, err
	}

	for i := len(def.Steps) - 1; i >= 0; i-- {
		step := def.Steps[i]
		if preserveData && step.DataBearing {
			continue
		}
		if step.Compensation == "" {
			cerr := &domain.CompensationFailedError{Module: moduleSlug, Step: step.Name}
			s.failUninstall(ctx, &job, state, cerr)
			return domain.InstallationResult{
				JobID:        job.ID,
				Status:       job.Status,
				FailedModule: moduleSlug,
				FailedStep:   step.Name,
			}, cerr
		}
		if err := s.compensateStep(ctx, tenantID, moduleSlug, step.Name); err != nil {
			cerr := &domain.CompensationFailedError{Module: moduleSlug, Step: step.Name, Cause: err}
			s.failUninstall(ctx, &job, state, cerr)
			return domain.InstallationResult{
				JobID:        job.ID,
				Status:       job.Status,
				FailedModule: moduleSlug,
				FailedStep:   step.Name,
			}, cerr
		}
		job.RecordStep(moduleSlug, step.Name, domain.OutcomeCompensated)
		if err := s.jobs.Update(ctx, job); err != nil {
			slog.WarnContext(ctx, "persisting step record",
				"job_id", job.ID, "module", moduleSlug, "step", step.Name, "error", err)
		}
	}

	state.InstalledVersion = ""
	state.FailureReason = ""
	if err := s.transition(ctx, &state, domain.EventUninstallComplete); err != nil {
		return domain.InstallationResult{}, err
	}
	s.publish(ctx, domain.EventUninstallComplete, state)

	job.Status = domain.JobCompleted
	if err := s.jobs.Update(ctx, job); err != nil {
		return domain.InstallationResult{}, fmt.Errorf("completing job: %w", err)
	}

	return domain.InstallationResult{JobID: job.ID, Status: domain.JobCompleted}, nil
}

// GetJobStatus returns a job by its unique identifier.
func (s *InstallerService) GetJobStatus(ctx context.Context, jobID string) (domain.InstallationJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// ListJobs returns the tenant's jobs, most recent first.
func (s *InstallerService) ListJobs(ctx context.Context, tenantID string, limit int) ([]domain.InstallationJob, error) {
	return s.jobs.ListByTenant(ctx, tenantID, limit)
}

// ListInstalledModules returns the tenant's modules currently in the
// "installed" state, ordered by slug.
func (s *InstallerService) ListInstalledModules(ctx context.Context, tenantID string) ([]domain.TenantModuleState, error) {
	all, err := s.states.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	installed := make([]domain.TenantModuleState, 0, len(all))
	for _, st := range all {
		if st.Status == domain.StatusInstalled {
			installed = append(installed, st)
		}
	}
	sort.Slice(installed, func(i, j int) bool { return installed[i].Slug < installed[j].Slug })
	return installed, nil
}

// installModule drives one module through pending → installing → installed,
// executing its steps in order. On failure it returns the failing step name
// and the error after moving the module to "failed".
func (s *InstallerService) installModule(ctx context.Context, job *domain.InstallationJob, def domain.ModuleDefinition) (string, error) {
	state, err := s.stateFor(ctx, job.TenantID, def.Slug)
	if err != nil {
		return "", err
	}
	state.LastJobID = job.ID
	state.FailureReason = ""

	if err := s.transition(ctx, &state, domain.EventQueue); err != nil {
		return "", err
	}
	if err := s.transition(ctx, &state, domain.EventBeginInstall); err != nil {
		return "", err
	}

	for _, step := range def.Steps {
		if err := s.executeStep(ctx, job.TenantID, def.Slug, step.Name); err != nil {
			state.FailureReason = err.Error()
			if terr := s.transition(ctx, &state, domain.EventInstallFailed); terr != nil {
				slog.ErrorContext(ctx, "marking module failed",
					"tenant_id", job.TenantID, "module", def.Slug, "error", terr)
			}
			s.publish(ctx, domain.EventInstallFailed, state)
			return step.Name, err
		}

		job.RecordStep(def.Slug, step.Name, domain.OutcomeSucceeded)
		if err := s.jobs.Update(ctx, *job); err != nil {
			// The step ran but its record did not persist. Fail the module;
			// the in-memory record still lets rollback compensate it.
			wrapped := &domain.StepExecutionError{Module: def.Slug, Step: step.Name, Cause: err}
			state.FailureReason = wrapped.Error()
			if terr := s.transition(ctx, &state, domain.EventInstallFailed); terr != nil {
				slog.ErrorContext(ctx, "marking module failed",
					"tenant_id", job.TenantID, "module", def.Slug, "error", terr)
			}
			s.publish(ctx, domain.EventInstallFailed, state)
			return step.Name, wrapped
		}
	}

	state.InstalledVersion = def.Version
	if err := s.transition(ctx, &state, domain.EventInstallComplete); err != nil {
		return "", err
	}
	s.publish(ctx, domain.EventInstallComplete, state)
	return "", nil
}

// rollback replays the job's completed steps in reverse, compensating each
// one and returning every touched module to "not_installed". attempted
// lists the modules the job started in installation order; the last entry
// is the one that failed. A missing compensator or a compensator error
// stops rollback where it stands: the module keeps its current state with
// the reason recorded, and the job becomes rolled_back_partial.
func (s *InstallerService) rollback(ctx context.Context, job *domain.InstallationJob, attempted []domain.ModuleDefinition) error {
	// Rollback must run even when the triggering failure was a
	// cancellation.
	ctx = context.WithoutCancel(ctx)

	succeededByModule := make(map[string][]domain.StepRecord)
	for _, rec := range job.CompletedSteps {
		if rec.Outcome == domain.OutcomeSucceeded {
			succeededByModule[rec.Module] = append(succeededByModule[rec.Module], rec)
		}
	}

	for i := len(attempted) - 1; i >= 0; i-- {
		def := attempted[i]
		state, err := s.states.Get(ctx, job.TenantID, def.Slug)
		if err != nil {
			return fmt.Errorf("loading state of %q for rollback: %w", def.Slug, err)
		}

		// A module this job never started needs no unwinding. Its state
		// still carries the previous job's ID: installModule stamps ours
		// only when the queue transition succeeds, so anything without it
		// belongs to an earlier install and must be left alone.
		if state.LastJobID != job.ID {
			continue
		}

		if err := s.transition(ctx, &state, domain.EventBeginUninstall); err != nil {
			return err
		}

		recs := succeededByModule[def.Slug]
		for j := len(recs) - 1; j >= 0; j-- {
			rec := recs[j]
			step, ok := findStep(def, rec.Step)
			if !ok || step.Compensation == "" {
				// Hard stop: rollback never silently skips a step.
				cerr := &domain.CompensationFailedError{Module: def.Slug, Step: rec.Step}
				s.recordCompensationFailure(ctx, state, cerr)
				return cerr
			}
			if err := s.compensateStep(ctx, job.TenantID, def.Slug, rec.Step); err != nil {
				cerr := &domain.CompensationFailedError{Module: def.Slug, Step: rec.Step, Cause: err}
				s.recordCompensationFailure(ctx, state, cerr)
				return cerr
			}
			job.RecordStep(def.Slug, rec.Step, domain.OutcomeCompensated)
			if err := s.jobs.Update(ctx, *job); err != nil {
				slog.WarnContext(ctx, "persisting compensation record",
					"job_id", job.ID, "module", def.Slug, "step", rec.Step, "error", err)
			}
		}

		state.InstalledVersion = ""
		if err := s.transition(ctx, &state, domain.EventUninstallComplete); err != nil {
			return err
		}
		s.publish(ctx, domain.EventUninstallComplete, state)
	}

	return nil
}

// executeStep runs one provisioner step under the per-step timeout.
// Cancellation is honored between steps only; a step that has started runs
// to completion or to its own timeout.
func (s *InstallerService) executeStep(ctx context.Context, tenantID, slug, stepName string) error {
	if err := ctx.Err(); err != nil {
		return &domain.StepExecutionError{Module: slug, Step: stepName, Cause: err}
	}

	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stepTimeout)
	defer cancel()

	if err := s.provisioner.ExecuteStep(stepCtx, tenantID, slug, stepName); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &domain.StepTimeoutError{Module: slug, Step: stepName, Timeout: s.stepTimeout}
		}
		return &domain.StepExecutionError{Module: slug, Step: stepName, Cause: err}
	}
	return nil
}

func (s *InstallerService) compensateStep(ctx context.Context, tenantID, slug, stepName string) error {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stepTimeout)
	defer cancel()
	return s.provisioner.CompensateStep(stepCtx, tenantID, slug, stepName)
}

// checkEntitlement enforces the feature and quota gates for one module
// definition. Quota is an access check only; consumption happens on module
// use, outside installation.
func (s *InstallerService) checkEntitlement(ctx context.Context, tenantID string, def domain.ModuleDefinition) error {
	if def.RequiredFeature != "" {
		ok, err := s.entitlements.IsEntitled(ctx, tenantID, def.RequiredFeature)
		if err != nil {
			return fmt.Errorf("checking entitlement for %q: %w", def.Slug, err)
		}
		if !ok {
			return &domain.EntitlementDeniedError{TenantID: tenantID, Feature: def.RequiredFeature}
		}
	}
	if def.QuotaKey != "" {
		n, err := s.entitlements.QuotaRemaining(ctx, tenantID, def.QuotaKey)
		if err != nil {
			return fmt.Errorf("checking quota for %q: %w", def.Slug, err)
		}
		if n <= 0 {
			return &domain.QuotaExceededError{TenantID: tenantID, QuotaKey: def.QuotaKey}
		}
	}
	return nil
}

// installedVersions maps the tenant's installed slugs to their versions.
func (s *InstallerService) installedVersions(ctx context.Context, tenantID string) (map[string]string, error) {
	states, err := s.states.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing module states: %w", err)
	}

	installed := make(map[string]string)
	for _, st := range states {
		if st.Status == domain.StatusInstalled {
			installed[st.Slug] = st.InstalledVersion
		}
	}
	return installed, nil
}

// installedDependents returns the slugs of installed modules whose
// definitions depend on slug, sorted for stable error messages.
func (s *InstallerService) installedDependents(ctx context.Context, tenantID, slug string) ([]string, error) {
	all, err := s.states.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing module states: %w", err)
	}

	var dependents []string
	for _, other := range all {
		if other.Slug == slug || other.Status != domain.StatusInstalled {
			continue
		}
		def, err := s.catalog.Get(other.Slug, other.InstalledVersion)
		if err != nil {
			// Definition left the catalog; nothing to validate against.
			continue
		}
		for _, dep := range def.Dependencies {
			if dep.Slug == slug {
				dependents = append(dependents, other.Slug)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents, nil
}

// stateFor returns the (tenant, slug) state, creating it lazily in
// "not_installed" on the first install attempt.
func (s *InstallerService) stateFor(ctx context.Context, tenantID, slug string) (domain.TenantModuleState, error) {
	state, err := s.states.Get(ctx, tenantID, slug)
	if errors.Is(err, domain.ErrStateNotFound) {
		return domain.NewTenantModuleState(tenantID, slug), nil
	}
	return state, err
}

// transition applies a validated state change and persists it.
func (s *InstallerService) transition(ctx context.Context, state *domain.TenantModuleState, event domain.Event) error {
	next, err := s.validator.Apply(ctx, state.Status, event)
	if err != nil {
		return err
	}
	state.Status = next
	state.UpdatedAt = time.Now().UTC()
	return s.states.Save(ctx, *state)
}

// publish emits a lifecycle event. Event delivery is best effort: the
// installation outcome never depends on the event queue.
func (s *InstallerService) publish(ctx context.Context, event domain.Event, state domain.TenantModuleState) {
	if err := s.publisher.Publish(ctx, event, state); err != nil {
		slog.WarnContext(ctx, "publishing lifecycle event",
			"event", string(event), "tenant_id", state.TenantID, "module", state.Slug, "error", err)
	}
}

func (s *InstallerService) recordCompensationFailure(ctx context.Context, state domain.TenantModuleState, cerr error) {
	state.FailureReason = cerr.Error()
	state.UpdatedAt = time.Now().UTC()
	if err := s.states.Save(ctx, state); err != nil {
		slog.ErrorContext(ctx, "recording compensation failure",
			"tenant_id", state.TenantID, "module", state.Slug, "error", err)
	}
}

// failUninstall records a compensation failure on the job and the module
// state. Steps compensated before the failure stay compensated, so a job
// that already unwound some steps is rolled_back_partial rather than
// failed.
func (s *InstallerService) failUninstall(ctx context.Context, job *domain.InstallationJob, state domain.TenantModuleState, cerr error) {
	job.Status = domain.JobFailed
	if len(job.CompletedSteps) > 0 {
		job.Status = domain.JobRolledBackPartial
	}
	job.FailureReason = cerr.Error()
	if err := s.jobs.Update(ctx, *job); err != nil {
		slog.ErrorContext(ctx, "recording uninstall failure",
			"job_id", job.ID, "error", err)
	}
	s.recordCompensationFailure(ctx, state, cerr)
}

func findStep(def domain.ModuleDefinition, name string) (domain.Step, bool) {
	for _, step := range def.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return domain.Step{}, false
}
