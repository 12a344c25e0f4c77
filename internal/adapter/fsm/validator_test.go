package fsm_test

import (
	"context"
	"errors"
	"testing"

	adapter "github.com/avellaneda/modstack/internal/adapter/fsm"
	"github.com/avellaneda/modstack/internal/domain"
)

func TestValidator_AllTransitions(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, tr := range domain.Transitions {
		dst, err := v.Apply(ctx, tr.Src, tr.Event)
		if err != nil {
			t.Errorf("Apply(%q, %q) unexpected error: %v", tr.Src, tr.Event, err)
			continue
		}
		if dst != tr.Dst {
			t.Errorf("Apply(%q, %q) = %q, want %q", tr.Src, tr.Event, dst, tr.Dst)
		}
	}
}

func TestValidator_InvalidTransition(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// Can't start installing before the module is queued.
	_, err := v.Apply(ctx, domain.StatusNotInstalled, domain.EventBeginInstall)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Event != domain.EventBeginInstall {
		t.Errorf("event = %q, want %q", trErr.Event, domain.EventBeginInstall)
	}
	if trErr.Current != domain.StatusNotInstalled {
		t.Errorf("current = %q, want %q", trErr.Current, domain.StatusNotInstalled)
	}
}

func TestValidator_InstallLifecycle(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	steps := []struct {
		from  domain.Status
		event domain.Event
		want  domain.Status
	}{
		{domain.StatusNotInstalled, domain.EventQueue, domain.StatusPending},
		{domain.StatusPending, domain.EventBeginInstall, domain.StatusInstalling},
		{domain.StatusInstalling, domain.EventInstallComplete, domain.StatusInstalled},
		{domain.StatusInstalled, domain.EventBeginUninstall, domain.StatusUninstalling},
		{domain.StatusUninstalling, domain.EventUninstallComplete, domain.StatusNotInstalled},
	}

	for _, step := range steps {
		got, err := v.Apply(ctx, step.from, step.event)
		if err != nil {
			t.Fatalf("Apply(%q, %q) error: %v", step.from, step.event, err)
		}
		if got != step.want {
			t.Errorf("Apply(%q, %q) = %q, want %q", step.from, step.event, got, step.want)
		}
	}
}

func TestValidator_FailureAndRollbackPath(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// A failed install travels the uninstall path back to not_installed.
	got, err := v.Apply(ctx, domain.StatusInstalling, domain.EventInstallFailed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != domain.StatusFailed {
		t.Errorf("got %q, want %q", got, domain.StatusFailed)
	}

	got, err = v.Apply(ctx, domain.StatusFailed, domain.EventBeginUninstall)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != domain.StatusUninstalling {
		t.Errorf("got %q, want %q", got, domain.StatusUninstalling)
	}
}

func TestValidator_RequeueAfterFailure(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	got, err := v.Apply(ctx, domain.StatusFailed, domain.EventQueue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != domain.StatusPending {
		t.Errorf("got %q, want %q", got, domain.StatusPending)
	}
}
