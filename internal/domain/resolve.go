package domain

import "sort"

// Resolve computes the ordered list of module definitions that must be
// installed to bring target and its transitive dependencies up for a
// tenant. installed maps each currently installed slug to its version; a
// dependency already satisfied by an installed version becomes a leaf
// requiring no action. Dependencies always appear before their dependents.
//
// The result is deterministic for a fixed catalog and installed set:
// dependency edges are walked in lexicographic slug order. Installing an
// already-installed target at its current catalog version resolves to an
// empty order; a target installed at any other version is a version
// conflict, since reinstalling would tear down live provisioned state.
// Upgrades require an explicit uninstall first.
//
// Resolve is a pure function over the catalog snapshot. It performs no I/O
// and has no side effects.
func Resolve(catalog *Catalog, target string, installed map[string]string) ([]ModuleDefinition, error) {
	def, err := catalog.Latest(target)
	if err != nil {
		return nil, err
	}

	if v, ok := installed[target]; ok {
		if v == def.Version {
			return nil, nil
		}
		return nil, &VersionConflictError{Slug: target, Required: def.Version, Found: v}
	}

	r := &resolution{
		catalog:   catalog,
		installed: installed,
		visited:   make(map[string]bool),
		onPath:    make(map[string]bool),
	}
	if err := r.visit(def); err != nil {
		return nil, err
	}
	return r.order, nil
}

// resolution carries the walk state of one Resolve call: the DFS stack for
// cycle detection and the post-order accumulation that yields the
// topological order.
type resolution struct {
	catalog   *Catalog
	installed map[string]string
	visited   map[string]bool
	onPath    map[string]bool
	path      []string
	order     []ModuleDefinition
}

func (r *resolution) visit(def ModuleDefinition) error {
	if r.onPath[def.Slug] {
		cycle := append(append([]string{}, r.path...), def.Slug)
		return &CircularDependencyError{Path: cycle}
	}
	if r.visited[def.Slug] {
		// Diamond: another path already ordered this module.
		return nil
	}

	r.onPath[def.Slug] = true
	r.path = append(r.path, def.Slug)

	deps := append([]Dependency{}, def.Dependencies...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Slug < deps[j].Slug })

	for _, dep := range deps {
		if v, ok := r.installed[dep.Slug]; ok {
			if !Satisfies(v, dep.Constraint) {
				return &VersionConflictError{Slug: dep.Slug, Required: dep.Constraint, Found: v}
			}
			continue
		}

		child, err := r.catalog.Match(dep.Slug, dep.Constraint)
		if err != nil {
			return err
		}
		if err := r.visit(child); err != nil {
			return err
		}
	}

	r.path = r.path[:len(r.path)-1]
	r.onPath[def.Slug] = false
	r.visited[def.Slug] = true
	r.order = append(r.order, def)
	return nil
}
