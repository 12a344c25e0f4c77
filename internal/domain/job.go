package domain

import "time"

// JobStatus represents the lifecycle of an installation job.
type JobStatus string

const (
	JobPending           JobStatus = "pending"
	JobRunning           JobStatus = "running"
	JobCompleted         JobStatus = "completed"
	JobFailed            JobStatus = "failed"
	JobRolledBack        JobStatus = "rolled_back"
	JobRolledBackPartial JobStatus = "rolled_back_partial"
)

// JobKind distinguishes install jobs from uninstall jobs.
type JobKind string

const (
	KindInstall   JobKind = "install"
	KindUninstall JobKind = "uninstall"
)

// StepOutcome records how a step ended.
type StepOutcome string

const (
	OutcomeSucceeded   StepOutcome = "succeeded"
	OutcomeCompensated StepOutcome = "compensated"
)

// ResolvedModule is one entry of a job's fixed installation order.
type ResolvedModule struct {
	Slug    string `json:"slug"`
	Version string `json:"version"`
}

// StepRecord is one entry of a job's audit trail.
type StepRecord struct {
	Module  string      `json:"module"`
	Step    string      `json:"step"`
	Outcome StepOutcome `json:"outcome"`
	At      time.Time   `json:"at"`
}

// InstallationJob is the durable audit and rollback unit for one install or
// uninstall attempt. ResolvedOrder is fixed once computed; resolution never
// re-runs mid-job. CompletedSteps is append-only while the job is running
// and is replayed in reverse during rollback.
type InstallationJob struct {
	ID             string
	TenantID       string
	TargetModule   string
	Kind           JobKind
	Plan           string
	Status         JobStatus
	ResolvedOrder  []ResolvedModule
	CompletedSteps []StepRecord
	FailureReason  string
	RequestedAt    time.Time
	UpdatedAt      time.Time
}

// NewInstallationJob creates a job in the initial "pending" state.
func NewInstallationJob(id, tenantID, target string, kind JobKind, plan string, order []ResolvedModule) InstallationJob {
	now := time.Now().UTC()
	return InstallationJob{
		ID:            id,
		TenantID:      tenantID,
		TargetModule:  target,
		Kind:          kind,
		Plan:          plan,
		Status:        JobPending,
		ResolvedOrder: order,
		RequestedAt:   now,
		UpdatedAt:     now,
	}
}

// RecordStep appends a step outcome to the job's audit trail.
func (j *InstallationJob) RecordStep(module, step string, outcome StepOutcome) {
	now := time.Now().UTC()
	j.CompletedSteps = append(j.CompletedSteps, StepRecord{
		Module:  module,
		Step:    step,
		Outcome: outcome,
		At:      now,
	})
	j.UpdatedAt = now
}

// InstallationResult summarizes the outcome of one Install or Uninstall
// call. FailedModule and FailedStep are set only when Status is not
// "completed". Installed lists the slugs brought to "installed", in
// installation order.
type InstallationResult struct {
	JobID        string
	Status       JobStatus
	Installed    []string
	FailedModule string
	FailedStep   string
}
