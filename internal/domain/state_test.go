package domain_test

import (
	"testing"

	"github.com/avellaneda/modstack/internal/domain"
)

func TestNewTenantModuleState(t *testing.T) {
	state := domain.NewTenantModuleState("t1", "forum")

	if state.TenantID != "t1" {
		t.Errorf("TenantID = %q, want %q", state.TenantID, "t1")
	}
	if state.Slug != "forum" {
		t.Errorf("Slug = %q, want %q", state.Slug, "forum")
	}
	if state.Status != domain.StatusNotInstalled {
		t.Errorf("Status = %q, want %q", state.Status, domain.StatusNotInstalled)
	}
	if state.InstalledVersion != "" {
		t.Errorf("InstalledVersion = %q, want empty", state.InstalledVersion)
	}
	if state.UpdatedAt != state.CreatedAt {
		t.Error("UpdatedAt should equal CreatedAt on new state")
	}
}

func TestTransitions_ValidPaths(t *testing.T) {
	// Walk the full install lifecycle plus the uninstall and retry paths.
	cases := []struct {
		event domain.Event
		src   domain.Status
		dst   domain.Status
	}{
		{domain.EventQueue, domain.StatusNotInstalled, domain.StatusPending},
		{domain.EventBeginInstall, domain.StatusPending, domain.StatusInstalling},
		{domain.EventInstallComplete, domain.StatusInstalling, domain.StatusInstalled},
		{domain.EventInstallFailed, domain.StatusInstalling, domain.StatusFailed},
		{domain.EventBeginUninstall, domain.StatusInstalled, domain.StatusUninstalling},
		{domain.EventBeginUninstall, domain.StatusFailed, domain.StatusUninstalling},
		{domain.EventUninstallComplete, domain.StatusUninstalling, domain.StatusNotInstalled},
		// A failed module may be queued again by a fresh job.
		{domain.EventQueue, domain.StatusFailed, domain.StatusPending},
	}

	for _, tc := range cases {
		found := false
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src && tr.Dst == tc.dst {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing transition: %q from %q → %q", tc.event, tc.src, tc.dst)
		}
	}
}

func TestTransitions_InvalidPaths(t *testing.T) {
	// These transitions must NOT exist. States are never skipped and the
	// install path is one-directional.
	invalid := []struct {
		event domain.Event
		src   domain.Status
	}{
		{domain.EventBeginInstall, domain.StatusNotInstalled},
		{domain.EventInstallComplete, domain.StatusPending},
		{domain.EventInstallComplete, domain.StatusNotInstalled},
		{domain.EventInstallFailed, domain.StatusInstalled},
		{domain.EventBeginUninstall, domain.StatusInstalling},
		{domain.EventBeginUninstall, domain.StatusNotInstalled},
		{domain.EventUninstallComplete, domain.StatusInstalled},
		{domain.EventQueue, domain.StatusInstalled},
	}

	for _, tc := range invalid {
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src {
				t.Errorf("unexpected transition: %q from %q should not exist", tc.event, tc.src)
			}
		}
	}
}

func TestRecordStep_AppendOnly(t *testing.T) {
	job := domain.NewInstallationJob("j1", "t1", "forum", domain.KindInstall, "pro", []domain.ResolvedModule{
		{Slug: "membership", Version: "1.2.0"},
		{Slug: "forum", Version: "2.0.0"},
	})

	if job.Status != domain.JobPending {
		t.Errorf("Status = %q, want %q", job.Status, domain.JobPending)
	}

	job.RecordStep("membership", "provision-schema", domain.OutcomeSucceeded)
	job.RecordStep("membership", "seed-defaults", domain.OutcomeSucceeded)

	if len(job.CompletedSteps) != 2 {
		t.Fatalf("CompletedSteps length = %d, want 2", len(job.CompletedSteps))
	}
	if job.CompletedSteps[0].Step != "provision-schema" {
		t.Errorf("first step = %q, want %q", job.CompletedSteps[0].Step, "provision-schema")
	}
	if job.CompletedSteps[1].Outcome != domain.OutcomeSucceeded {
		t.Errorf("outcome = %q, want %q", job.CompletedSteps[1].Outcome, domain.OutcomeSucceeded)
	}
}
