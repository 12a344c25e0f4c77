package domain

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Catalog is the process-wide registry of module definitions. It is built
// once at startup and read-only afterwards, so it needs no locking.
type Catalog struct {
	versions map[string][]ModuleDefinition // per slug, ascending by version
}

// NewCatalog builds a catalog from definitions, validating versions and
// rejecting duplicate (slug, version) entries.
func NewCatalog(defs ...ModuleDefinition) (*Catalog, error) {
	c := &Catalog{versions: make(map[string][]ModuleDefinition)}
	seen := make(map[string]bool)

	for _, d := range defs {
		if d.Slug == "" {
			return nil, fmt.Errorf("module definition without slug")
		}
		if _, err := semver.NewVersion(d.Version); err != nil {
			return nil, fmt.Errorf("module %q: invalid version %q: %w", d.Slug, d.Version, err)
		}
		key := d.Slug + "@" + d.Version
		if seen[key] {
			return nil, fmt.Errorf("duplicate module definition %s", key)
		}
		seen[key] = true
		c.versions[d.Slug] = append(c.versions[d.Slug], d)
	}

	for slug := range c.versions {
		vs := c.versions[slug]
		sort.Slice(vs, func(i, j int) bool {
			return semver.MustParse(vs[i].Version).LessThan(semver.MustParse(vs[j].Version))
		})
	}

	return c, nil
}

// Latest returns the highest version of slug.
func (c *Catalog) Latest(slug string) (ModuleDefinition, error) {
	vs := c.versions[slug]
	if len(vs) == 0 {
		return ModuleDefinition{}, &UnknownModuleError{Slug: slug}
	}
	return vs[len(vs)-1], nil
}

// Get returns the exact (slug, version) definition.
func (c *Catalog) Get(slug, version string) (ModuleDefinition, error) {
	for _, d := range c.versions[slug] {
		if d.Version == version {
			return d, nil
		}
	}
	return ModuleDefinition{}, &UnknownModuleError{Slug: slug}
}

// Match returns the highest version of slug that satisfies constraint.
func (c *Catalog) Match(slug, constraint string) (ModuleDefinition, error) {
	vs := c.versions[slug]
	if len(vs) == 0 {
		return ModuleDefinition{}, &UnknownModuleError{Slug: slug}
	}

	rng, err := semver.NewConstraint(constraint)
	if err != nil {
		return ModuleDefinition{}, fmt.Errorf("module %q: invalid constraint %q: %w", slug, constraint, err)
	}

	for i := len(vs) - 1; i >= 0; i-- {
		if rng.Check(semver.MustParse(vs[i].Version)) {
			return vs[i], nil
		}
	}

	return ModuleDefinition{}, &VersionConflictError{
		Slug:     slug,
		Required: constraint,
		Found:    vs[len(vs)-1].Version,
	}
}

// Satisfies reports whether version satisfies constraint. Malformed input
// never satisfies.
func Satisfies(version, constraint string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	rng, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return rng.Check(v)
}
