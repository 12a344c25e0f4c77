package domain

import "time"

// Status represents the installation state of one module for one tenant.
type Status string

const (
	StatusNotInstalled Status = "not_installed"
	StatusPending      Status = "pending"
	StatusInstalling   Status = "installing"
	StatusInstalled    Status = "installed"
	StatusFailed       Status = "failed"
	StatusUninstalling Status = "uninstalling"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	EventQueue             Event = "queue"
	EventBeginInstall      Event = "begin_install"
	EventInstallComplete   Event = "install_complete"
	EventInstallFailed     Event = "install_failed"
	EventBeginUninstall    Event = "begin_uninstall"
	EventUninstallComplete Event = "uninstall_complete"
)

// Transition defines a valid state change: an event moves a module state
// from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the module installation
// lifecycle. This is domain knowledge consumed by the FSM adapter. Rollback
// has no transitions of its own: a rolled-back module travels the uninstall
// path back to "not_installed".
var Transitions = []Transition{
	{Event: EventQueue, Src: StatusNotInstalled, Dst: StatusPending},
	{Event: EventQueue, Src: StatusFailed, Dst: StatusPending},
	{Event: EventBeginInstall, Src: StatusPending, Dst: StatusInstalling},
	{Event: EventInstallComplete, Src: StatusInstalling, Dst: StatusInstalled},
	{Event: EventInstallFailed, Src: StatusInstalling, Dst: StatusFailed},
	{Event: EventBeginUninstall, Src: StatusInstalled, Dst: StatusUninstalling},
	{Event: EventBeginUninstall, Src: StatusFailed, Dst: StatusUninstalling},
	{Event: EventUninstallComplete, Src: StatusUninstalling, Dst: StatusNotInstalled},
}

// TenantModuleState tracks the installation of one module for one tenant.
// There is exactly one state per (tenant, slug) pair, created lazily on the
// first install attempt. Callers never write it directly; every change goes
// through a validated transition.
type TenantModuleState struct {
	TenantID         string
	Slug             string
	Status           Status
	InstalledVersion string
	LastJobID        string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewTenantModuleState creates a state in the initial "not_installed" state.
func NewTenantModuleState(tenantID, slug string) TenantModuleState {
	now := time.Now().UTC()
	return TenantModuleState{
		TenantID:  tenantID,
		Slug:      slug,
		Status:    StatusNotInstalled,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
