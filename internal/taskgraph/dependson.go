package taskgraph

import "strings"

// DependsOnKind tags which of the three dependsOn shapes a reference is.
type DependsOnKind int

const (
	// Upstream is the "^target" shape: for each project the current
	// project depends on, add that project's same-named target.
	Upstream DependsOnKind = iota
	// Qualified is the "project:target" (or "self:target") shape: an
	// exact cross-project reference.
	Qualified
	// Same is the bare "target" shape: another target on the same project.
	Same
)

// DependsOnRef is the dependsOn tagged variant. Target.DependsOn keeps the
// raw strings; Build parses each entry once, while it materializes the task
// that declares it.
type DependsOnRef struct {
	Kind    DependsOnKind
	Project string // only set for Qualified
	Target  string
}

// ParseDependsOnRef parses one raw dependsOn entry into its typed form.
func ParseDependsOnRef(raw string) DependsOnRef {
	if strings.HasPrefix(raw, "^") {
		return DependsOnRef{Kind: Upstream, Target: strings.TrimPrefix(raw, "^")}
	}
	if project, target, ok := strings.Cut(raw, ":"); ok {
		return DependsOnRef{Kind: Qualified, Project: project, Target: target}
	}
	return DependsOnRef{Kind: Same, Target: raw}
}

// SelectionMode chooses which projects from a ProjectGraph are candidates
// for task materialization.
type SelectionMode struct {
	kind    selectionKind
	list    []string
	changed []string
	tag     string
	ptype   string
}

type selectionKind int

const (
	selectAll selectionKind = iota
	selectSpecific
	selectAffected
	selectWithTag
	selectOfType
)

// All selects every project defining the requested target.
func All() SelectionMode { return SelectionMode{kind: selectAll} }

// Specific selects only the named projects.
func Specific(names []string) SelectionMode {
	return SelectionMode{kind: selectSpecific, list: append([]string(nil), names...)}
}

// Affected selects the union of changed projects with their transitive
// dependents.
func Affected(changed []string) SelectionMode {
	return SelectionMode{kind: selectAffected, changed: append([]string(nil), changed...)}
}

// WithTag selects every project carrying the given tag.
func WithTag(tag string) SelectionMode { return SelectionMode{kind: selectWithTag, tag: tag} }

// OfType selects every project of the given project type.
func OfType(projectType string) SelectionMode {
	return SelectionMode{kind: selectOfType, ptype: projectType}
}
