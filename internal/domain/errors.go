package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrJobNotFound   = errors.New("installation job not found")
	ErrStateNotFound = errors.New("module state not found")
	ErrNotInstalled  = errors.New("module is not installed")
)

// UnknownModuleError is returned when a slug is not in the catalog.
type UnknownModuleError struct {
	Slug string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("module %q is not in the catalog", e.Slug)
}

// CircularDependencyError is returned when dependency resolution finds a
// cycle. Path holds the full cycle, first and last element being the same
// slug.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

// VersionConflictError is returned when no version of a module can satisfy
// a constraint, either because the installed version is incompatible or the
// catalog has no matching version.
type VersionConflictError struct {
	Slug     string
	Required string
	Found    string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("module %q requires version %q but found %q", e.Slug, e.Required, e.Found)
}

// EntitlementDeniedError is returned when a tenant's subscription does not
// grant a feature required by a module.
type EntitlementDeniedError struct {
	TenantID string
	Feature  string
}

func (e *EntitlementDeniedError) Error() string {
	return fmt.Sprintf("tenant %q is not entitled to feature %q", e.TenantID, e.Feature)
}

// QuotaExceededError is returned when a tenant's quota for a key is
// exhausted.
type QuotaExceededError struct {
	TenantID string
	QuotaKey string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tenant %q has no remaining quota for %q", e.TenantID, e.QuotaKey)
}

// ConflictError is returned when a (tenant, module) pair already has an
// active job. The request is rejected, never queued.
type ConflictError struct {
	TenantID string
	Slug     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("module %q already has an active job for tenant %q", e.Slug, e.TenantID)
}

// UninstallBlockedError is returned when other installed modules still
// depend on the module being uninstalled. Dependents must be uninstalled
// first; cascading is deliberately not offered.
type UninstallBlockedError struct {
	Slug       string
	Dependents []string
}

func (e *UninstallBlockedError) Error() string {
	return fmt.Sprintf("module %q is still required by: %s", e.Slug, strings.Join(e.Dependents, ", "))
}

// StepExecutionError is returned when a provisioner step fails
// mid-installation. It triggers rollback.
type StepExecutionError struct {
	Module string
	Step   string
	Cause  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q of module %q failed: %v", e.Step, e.Module, e.Cause)
}

func (e *StepExecutionError) Unwrap() error { return e.Cause }

// StepTimeoutError is returned when a provisioner step exceeds its allotted
// time. It triggers the same rollback path as a step failure.
type StepTimeoutError struct {
	Module  string
	Step    string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %q of module %q timed out after %s", e.Step, e.Module, e.Timeout)
}

// CompensationFailedError is returned when rollback itself fails, either
// because a compensator errored or because a completed step has none.
// Terminal: the job is left partially rolled back for operator
// intervention.
type CompensationFailedError struct {
	Module string
	Step   string
	Cause  error
}

func (e *CompensationFailedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("step %q of module %q has no compensation", e.Step, e.Module)
	}
	return fmt.Sprintf("compensating step %q of module %q failed: %v", e.Step, e.Module, e.Cause)
}

func (e *CompensationFailedError) Unwrap() error { return e.Cause }

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// ErrorCode maps an error to its stable machine-readable code for API
// consumers and logs.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return "job_not_found"
	case errors.Is(err, ErrStateNotFound):
		return "state_not_found"
	case errors.Is(err, ErrNotInstalled):
		return "not_installed"
	}

	var (
		unknown      *UnknownModuleError
		circular     *CircularDependencyError
		version      *VersionConflictError
		entitlement  *EntitlementDeniedError
		quota        *QuotaExceededError
		conflict     *ConflictError
		blocked      *UninstallBlockedError
		step         *StepExecutionError
		timeout      *StepTimeoutError
		compensation *CompensationFailedError
		transition   *TransitionError
	)
	switch {
	case errors.As(err, &unknown):
		return "unknown_module"
	case errors.As(err, &circular):
		return "circular_dependency"
	case errors.As(err, &version):
		return "version_conflict"
	case errors.As(err, &entitlement):
		return "entitlement_denied"
	case errors.As(err, &quota):
		return "quota_exceeded"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &blocked):
		return "uninstall_blocked"
	case errors.As(err, &timeout):
		return "step_timeout"
	case errors.As(err, &compensation):
		return "compensation_failed"
	case errors.As(err, &step):
		return "step_failed"
	case errors.As(err, &transition):
		return "invalid_transition"
	default:
		return "internal"
	}
}

// IsRetryable reports whether the caller may usefully retry the request.
// Conflicts clear when the active job finishes; timeouts and step failures
// may be transient. Resolution errors and failed compensations never
// succeed on retry without operator action.
func IsRetryable(err error) bool {
	var (
		conflict *ConflictError
		step     *StepExecutionError
		timeout  *StepTimeoutError
	)
	return errors.As(err, &conflict) || errors.As(err, &timeout) || errors.As(err, &step)
}
