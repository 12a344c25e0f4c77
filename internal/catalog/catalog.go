// Package catalog holds the built-in module definitions served by the
// default binary. In larger deployments the catalog would be loaded from a
// registry service; the orchestration layer only ever sees
// domain.ModuleDefinition values and does not care where they come from.
package catalog

import "github.com/avellaneda/modstack/internal/domain"

// Default returns the platform's built-in module catalog.
func Default() (*domain.Catalog, error) {
	return domain.NewCatalog(
		domain.ModuleDefinition{
			Slug:    "membership",
			Version: "1.0.0",
			Steps:   membershipSteps,
		},
		domain.ModuleDefinition{
			Slug:    "membership",
			Version: "1.2.0",
			Steps:   membershipSteps,
		},
		domain.ModuleDefinition{
			Slug:    "forum",
			Version: "1.0.0",
			Dependencies: []domain.Dependency{
				{Slug: "membership", Constraint: "^1.0"},
			},
			RequiredFeature: "feature.forum",
			Steps: []domain.Step{
				{Name: "provision-schema", Compensation: "drop-schema", DataBearing: true},
				{Name: "run-migrations", Compensation: "rollback-migrations"},
				{Name: "seed-defaults", Compensation: "remove-defaults", DataBearing: true},
			},
		},
		domain.ModuleDefinition{
			Slug:    "digital_card",
			Version: "2.1.0",
			Dependencies: []domain.Dependency{
				{Slug: "membership", Constraint: "^1.0"},
			},
			RequiredFeature: "feature.digital_card",
			QuotaKey:        "digital_card.cards",
			Steps: []domain.Step{
				{Name: "provision-schema", Compensation: "drop-schema", DataBearing: true},
				{Name: "register-card-templates", Compensation: "remove-card-templates"},
			},
		},
		domain.ModuleDefinition{
			Slug:    "elections",
			Version: "1.0.0",
			Dependencies: []domain.Dependency{
				{Slug: "membership", Constraint: "^1.2"},
			},
			RequiredFeature: "feature.elections",
			QuotaKey:        "elections.active",
			Steps: []domain.Step{
				{Name: "provision-schema", Compensation: "drop-schema", DataBearing: true},
				{Name: "run-migrations", Compensation: "rollback-migrations"},
				{Name: "register-ballot-engine", Compensation: "deregister-ballot-engine"},
			},
		},
	)
}

var membershipSteps = []domain.Step{
	{Name: "provision-schema", Compensation: "drop-schema", DataBearing: true},
	{Name: "run-migrations", Compensation: "rollback-migrations"},
	{Name: "seed-defaults", Compensation: "remove-defaults", DataBearing: true},
	{Name: "register-member-directory", Compensation: "deregister-member-directory"},
}
