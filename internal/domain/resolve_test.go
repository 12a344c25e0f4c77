package domain_test

import (
	"errors"
	"testing"

	"github.com/avellaneda/modstack/internal/domain"
)

func mustCatalog(t *testing.T, defs ...domain.ModuleDefinition) *domain.Catalog {
	t.Helper()
	catalog, err := domain.NewCatalog(defs...)
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return catalog
}

func slugs(order []domain.ModuleDefinition) []string {
	out := make([]string, len(order))
	for i, d := range order {
		out[i] = d.Slug
	}
	return out
}

func TestResolve_DependencyBeforeDependent(t *testing.T) {
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "membership", Version: "1.2.0"},
		domain.ModuleDefinition{Slug: "forum", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "membership", Constraint: "^1.0"},
		}},
	)

	order, err := domain.Resolve(catalog, "forum", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := slugs(order)
	want := []string{"membership", "forum"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	// Ties between unordered siblings break lexicographically by slug, so
	// repeated calls never vary with map iteration order.
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "zeta", Version: "1.0.0"},
		domain.ModuleDefinition{Slug: "alpha", Version: "1.0.0"},
		domain.ModuleDefinition{Slug: "mid", Version: "1.0.0"},
		domain.ModuleDefinition{Slug: "top", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "zeta", Constraint: "^1.0"},
			{Slug: "alpha", Constraint: "^1.0"},
			{Slug: "mid", Constraint: "^1.0"},
		}},
	)

	first, err := domain.Resolve(catalog, "top", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"alpha", "mid", "zeta", "top"}
	got := slugs(first)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	for range 50 {
		again, err := domain.Resolve(catalog, "top", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, d := range again {
			if d.Slug != want[i] {
				t.Fatalf("order changed between calls: %v", slugs(again))
			}
		}
	}
}

func TestResolve_Cycle(t *testing.T) {
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "a", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "b", Constraint: "^1.0"},
		}},
		domain.ModuleDefinition{Slug: "b", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "a", Constraint: "^1.0"},
		}},
	)

	_, err := domain.Resolve(catalog, "a", nil)
	var circular *domain.CircularDependencyError
	if !errors.As(err, &circular) {
		t.Fatalf("expected CircularDependencyError, got %v", err)
	}

	want := []string{"a", "b", "a"}
	if len(circular.Path) != len(want) {
		t.Fatalf("cycle path = %v, want %v", circular.Path, want)
	}
	for i := range want {
		if circular.Path[i] != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, circular.Path[i], want[i])
		}
	}
}

func TestResolve_Diamond(t *testing.T) {
	// web and api both depend on core; core is ordered exactly once, before
	// both dependents.
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "core", Version: "1.0.0"},
		domain.ModuleDefinition{Slug: "api", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "core", Constraint: "^1.0"},
		}},
		domain.ModuleDefinition{Slug: "web", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "core", Constraint: "^1.0"},
		}},
		domain.ModuleDefinition{Slug: "suite", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "api", Constraint: "^1.0"},
			{Slug: "web", Constraint: "^1.0"},
		}},
	)

	order, err := domain.Resolve(catalog, "suite", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := slugs(order)
	want := []string{"core", "api", "web", "suite"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolve_UnknownDependency(t *testing.T) {
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "forum", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "ghost", Constraint: "^1.0"},
		}},
	)

	_, err := domain.Resolve(catalog, "forum", nil)
	var unknown *domain.UnknownModuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModuleError, got %v", err)
	}
	if unknown.Slug != "ghost" {
		t.Errorf("slug = %q, want %q", unknown.Slug, "ghost")
	}
}

func TestResolve_InstalledVersionTooOld(t *testing.T) {
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "membership", Version: "2.0.0"},
		domain.ModuleDefinition{Slug: "elections", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "membership", Constraint: "^2.0"},
		}},
	)

	// Installed 1.0.0 does not satisfy ^2.0; resolution must not silently
	// plan an upgrade.
	_, err := domain.Resolve(catalog, "elections", map[string]string{"membership": "1.0.0"})
	var conflict *domain.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected VersionConflictError, got %v", err)
	}
	if conflict.Found != "1.0.0" {
		t.Errorf("found = %q, want %q", conflict.Found, "1.0.0")
	}
}

func TestResolve_SatisfiedDependencySkipped(t *testing.T) {
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "membership", Version: "1.2.0"},
		domain.ModuleDefinition{Slug: "forum", Version: "1.0.0", Dependencies: []domain.Dependency{
			{Slug: "membership", Constraint: "^1.0"},
		}},
	)

	order, err := domain.Resolve(catalog, "forum", map[string]string{"membership": "1.1.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := slugs(order)
	if len(got) != 1 || got[0] != "forum" {
		t.Errorf("order = %v, want [forum]", got)
	}
}

func TestResolve_AlreadyInstalledTarget(t *testing.T) {
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "forum", Version: "1.0.0"},
	)

	order, err := domain.Resolve(catalog, "forum", map[string]string{"forum": "1.0.0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("order = %v, want empty", slugs(order))
	}
}

func TestResolve_TargetInstalledAtOlderVersion(t *testing.T) {
	catalog := mustCatalog(t,
		domain.ModuleDefinition{Slug: "membership", Version: "1.0.0"},
		domain.ModuleDefinition{Slug: "membership", Version: "1.2.0"},
	)

	// A target already installed behind the catalog is never re-planned:
	// reinstalling would tear down live state, so it surfaces as a
	// conflict instead of an order containing the installed module.
	_, err := domain.Resolve(catalog, "membership", map[string]string{"membership": "1.0.0"})
	var conflict *domain.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected VersionConflictError, got %v", err)
	}
	if conflict.Slug != "membership" {
		t.Errorf("slug = %q, want %q", conflict.Slug, "membership")
	}
	if conflict.Required != "1.2.0" {
		t.Errorf("required = %q, want %q", conflict.Required, "1.2.0")
	}
	if conflict.Found != "1.0.0" {
		t.Errorf("found = %q, want %q", conflict.Found, "1.0.0")
	}
}

func TestResolve_UnknownTarget(t *testing.T) {
	catalog := mustCatalog(t)

	_, err := domain.Resolve(catalog, "ghost", nil)
	var unknown *domain.UnknownModuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModuleError, got %v", err)
	}
}
