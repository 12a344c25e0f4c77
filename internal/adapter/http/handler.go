package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/avellaneda/modstack/internal/app"
	"github.com/avellaneda/modstack/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// EntitlementInvalidator drops a tenant's cached entitlements. Satisfied by
// app.EntitlementCache.
type EntitlementInvalidator interface {
	Invalidate(tenantID string)
}

// PlanAssigner binds a tenant to a subscription plan. Satisfied by
// entitlement.InMemory.
type PlanAssigner interface {
	AssignPlan(tenantID, planName string)
}

// ModuleStateResponse is the API representation of one tenant module state.
type ModuleStateResponse struct {
	Slug             string `json:"slug" doc:"Module identifier"`
	Status           string `json:"status" doc:"Installation state"`
	InstalledVersion string `json:"installed_version,omitempty" doc:"Installed version (when installed)"`
	LastJobID        string `json:"last_job_id,omitempty" doc:"Most recent job that touched this module"`
	FailureReason    string `json:"failure_reason,omitempty" doc:"Why the last operation failed"`
	UpdatedAt        string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toModuleStateResponse(st domain.TenantModuleState) ModuleStateResponse {
	return ModuleStateResponse{
		Slug:             st.Slug,
		Status:           string(st.Status),
		InstalledVersion: st.InstalledVersion,
		LastJobID:        st.LastJobID,
		FailureReason:    st.FailureReason,
		UpdatedAt:        st.UpdatedAt.Format(timeFormat),
	}
}

// StepRecordResponse is one entry of a job's audit trail.
type StepRecordResponse struct {
	Module  string `json:"module" doc:"Module slug"`
	Step    string `json:"step" doc:"Step name"`
	Outcome string `json:"outcome" doc:"succeeded or compensated"`
	At      string `json:"at" doc:"Timestamp (ISO 8601)"`
}

// ResolvedModuleResponse is one entry of a job's installation order.
type ResolvedModuleResponse struct {
	Slug    string `json:"slug" doc:"Module slug"`
	Version string `json:"version" doc:"Version selected at resolution time"`
}

// JobResponse is the API representation of an installation job.
type JobResponse struct {
	ID             string                   `json:"id" doc:"Job identifier"`
	TenantID       string                   `json:"tenant_id" doc:"Owning tenant"`
	TargetModule   string                   `json:"target_module" doc:"Module the job was requested for"`
	Kind           string                   `json:"kind" doc:"install or uninstall"`
	Plan           string                   `json:"plan,omitempty" doc:"Plan recorded at request time"`
	Status         string                   `json:"status" doc:"Job lifecycle status"`
	ResolvedOrder  []ResolvedModuleResponse `json:"resolved_order" doc:"Installation order fixed at resolution time"`
	CompletedSteps []StepRecordResponse     `json:"completed_steps" doc:"Audit trail of executed and compensated steps"`
	FailureReason  string                   `json:"failure_reason,omitempty" doc:"Why the job failed"`
	RequestedAt    string                   `json:"requested_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt      string                   `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toJobResponse(job domain.InstallationJob) JobResponse {
	order := make([]ResolvedModuleResponse, len(job.ResolvedOrder))
	for i, m := range job.ResolvedOrder {
		order[i] = ResolvedModuleResponse{Slug: m.Slug, Version: m.Version}
	}
	steps := make([]StepRecordResponse, len(job.CompletedSteps))
	for i, rec := range job.CompletedSteps {
		steps[i] = StepRecordResponse{
			Module:  rec.Module,
			Step:    rec.Step,
			Outcome: string(rec.Outcome),
			At:      rec.At.Format(timeFormat),
		}
	}
	return JobResponse{
		ID:             job.ID,
		TenantID:       job.TenantID,
		TargetModule:   job.TargetModule,
		Kind:           string(job.Kind),
		Plan:           job.Plan,
		Status:         string(job.Status),
		ResolvedOrder:  order,
		CompletedSteps: steps,
		FailureReason:  job.FailureReason,
		RequestedAt:    job.RequestedAt.Format(timeFormat),
		UpdatedAt:      job.UpdatedAt.Format(timeFormat),
	}
}

// OperationResponse reports the outcome of an install or uninstall request.
// A request that ran a job returns this body even when the job failed: the
// job is the durable record, and Error carries the stable code clients
// branch on.
type OperationResponse struct {
	JobID        string   `json:"job_id,omitempty" doc:"Job that ran (empty when nothing needed to run)"`
	Status       string   `json:"status" doc:"Terminal job status"`
	Installed    []string `json:"installed,omitempty" doc:"Modules brought to installed, in order"`
	FailedModule string   `json:"failed_module,omitempty" doc:"Module whose step failed"`
	FailedStep   string   `json:"failed_step,omitempty" doc:"Step that failed"`
	Error        string   `json:"error,omitempty" doc:"Stable error code (step_failed, step_timeout, compensation_failed)"`
	Message      string   `json:"message,omitempty" doc:"Human-readable failure description"`
	Retryable    bool     `json:"retryable,omitempty" doc:"Whether retrying the request may succeed"`
}

func toOperationResponse(result domain.InstallationResult, err error) OperationResponse {
	resp := OperationResponse{
		JobID:        result.JobID,
		Status:       string(result.Status),
		Installed:    result.Installed,
		FailedModule: result.FailedModule,
		FailedStep:   result.FailedStep,
	}
	if err != nil {
		resp.Error = domain.ErrorCode(err)
		resp.Message = err.Error()
		resp.Retryable = domain.IsRetryable(err)
	}
	return resp
}

// --- Install ---

type InstallInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
	Slug     string `path:"slug" doc:"Module slug"`
	Body     struct {
		Plan string `json:"plan,omitempty" doc:"Subscription plan recorded on the job for audit"`
	}
}

type InstallOutput struct {
	Body OperationResponse
}

// --- Uninstall ---

type UninstallInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
	Slug     string `path:"slug" doc:"Module slug"`
	Body     struct {
		PreserveData bool `json:"preserve_data,omitempty" doc:"Keep tenant data: skip compensation of data-bearing steps"`
	}
}

type UninstallOutput struct {
	Body OperationResponse
}

// --- List modules ---

type ListModulesInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
}

type ListModulesOutput struct {
	Body []ModuleStateResponse
}

// --- Get job ---

type GetJobInput struct {
	JobID string `path:"jobId" doc:"Job ID"`
}

type GetJobOutput struct {
	Body JobResponse
}

// --- List jobs ---

type ListJobsInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
	Limit    int    `query:"limit" required:"false" default:"50" doc:"Max results"`
}

type ListJobsOutput struct {
	Body []JobResponse
}

// --- Invalidate entitlements ---

type InvalidateEntitlementsInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
}

type InvalidateEntitlementsOutput struct{}

// --- Assign plan ---

type AssignPlanInput struct {
	TenantID string `path:"tenantId" doc:"Tenant ID"`
	Body     struct {
		Plan string `json:"plan" minLength:"1" doc:"Plan name"`
	}
}

type AssignPlanOutput struct{}

// Register adds all module orchestration routes to the Huma API.
func Register(api huma.API, svc *app.InstallerService, invalidator EntitlementInvalidator, plans PlanAssigner) {
	huma.Register(api, huma.Operation{
		OperationID: "install-module",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantId}/modules/{slug}/install",
		Summary:     "Install a module and its dependencies",
		Tags:        []string{"Modules"},
	}, func(ctx context.Context, input *InstallInput) (*InstallOutput, error) {
		result, err := svc.Install(ctx, input.TenantID, input.Slug, input.Body.Plan)
		if err != nil && result.JobID == "" {
			// Rejected before a job ran: no side effects to report.
			return nil, toHumaError(err)
		}
		return &InstallOutput{Body: toOperationResponse(result, err)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "uninstall-module",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{tenantId}/modules/{slug}/uninstall",
		Summary:     "Uninstall a module",
		Tags:        []string{"Modules"},
	}, func(ctx context.Context, input *UninstallInput) (*UninstallOutput, error) {
		result, err := svc.Uninstall(ctx, input.TenantID, input.Slug, input.Body.PreserveData)
		if err != nil && result.JobID == "" {
			return nil, toHumaError(err)
		}
		return &UninstallOutput{Body: toOperationResponse(result, err)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenant-modules",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantId}/modules",
		Summary:     "List a tenant's installed modules",
		Tags:        []string{"Modules"},
	}, func(ctx context.Context, input *ListModulesInput) (*ListModulesOutput, error) {
		states, err := svc.ListInstalledModules(ctx, input.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]ModuleStateResponse, len(states))
		for i, st := range states {
			resp[i] = toModuleStateResponse(st)
		}
		return &ListModulesOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{jobId}",
		Summary:     "Get an installation job by ID",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
		job, err := svc.GetJobStatus(ctx, input.JobID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetJobOutput{Body: toJobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenant-jobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{tenantId}/jobs",
		Summary:     "List a tenant's installation jobs",
		Tags:        []string{"Jobs"},
	}, func(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
		jobs, err := svc.ListJobs(ctx, input.TenantID, input.Limit)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]JobResponse, len(jobs))
		for i, job := range jobs {
			resp[i] = toJobResponse(job)
		}
		return &ListJobsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "invalidate-entitlements",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{tenantId}/entitlements/invalidate",
		Summary:       "Drop cached entitlements after a subscription change",
		Tags:          []string{"Entitlements"},
		DefaultStatus: http.StatusNoContent,
	}, func(_ context.Context, input *InvalidateEntitlementsInput) (*InvalidateEntitlementsOutput, error) {
		invalidator.Invalidate(input.TenantID)
		return &InvalidateEntitlementsOutput{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-plan",
		Method:        http.MethodPut,
		Path:          "/api/v1/tenants/{tenantId}/plan",
		Summary:       "Assign a subscription plan to a tenant",
		Tags:          []string{"Entitlements"},
		DefaultStatus: http.StatusNoContent,
	}, func(_ context.Context, input *AssignPlanInput) (*AssignPlanOutput, error) {
		// A plan change makes cached entitlements stale immediately.
		plans.AssignPlan(input.TenantID, input.Body.Plan)
		invalidator.Invalidate(input.TenantID)
		return &AssignPlanOutput{}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors. The stable
// machine code rides along as an error detail so clients can branch on it
// without parsing messages.
func toHumaError(err error) error {
	code := domain.ErrorCode(err)
	detail := &huma.ErrorDetail{Message: code, Location: "code"}

	switch code {
	case "job_not_found", "state_not_found", "unknown_module":
		return huma.Error404NotFound(err.Error(), detail)
	case "entitlement_denied", "quota_exceeded":
		return huma.Error403Forbidden(err.Error(), detail)
	case "conflict", "uninstall_blocked", "not_installed":
		return huma.Error409Conflict(err.Error(), detail)
	case "circular_dependency", "version_conflict", "invalid_transition":
		return huma.Error422UnprocessableEntity(err.Error(), detail)
	default:
		return huma.Error500InternalServerError("internal server error")
	}
}
