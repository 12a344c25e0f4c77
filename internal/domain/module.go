package domain

// Dependency declares a requirement on another module, constrained to a
// semver range (e.g. "^1.0", ">=2.1 <3.0").
type Dependency struct {
	Slug       string
	Constraint string
}

// Step is one named unit of installation work, executed by the tenant
// provisioner. Steps are idempotent by contract and run strictly in order.
// Compensation names the inverse action invoked during rollback and
// uninstallation; a step with an empty Compensation cannot be undone, which
// halts any rollback that reaches it. DataBearing marks steps whose
// compensation destroys tenant data, so a data-preserving uninstall skips
// them.
type Step struct {
	Name         string
	Compensation string
	DataBearing  bool
}

// ModuleDefinition is an immutable catalog entry describing one installable
// version of a module. Definitions are loaded once at process start and
// never mutated; multiple versions of the same slug may coexist.
type ModuleDefinition struct {
	Slug            string
	Version         string
	Dependencies    []Dependency
	Steps           []Step
	RequiredFeature string
	QuotaKey        string
}
