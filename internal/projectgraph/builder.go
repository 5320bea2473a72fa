package projectgraph

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jbadeau/forge-sub002/internal/manifest"
	"github.com/jbadeau/forge-sub002/internal/wsconfig"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// defaultExcludeDirs is the conventional set of directories skipped during
// workspace discovery; matchFiles uses it when Builder.ExcludeDirs is nil.
var defaultExcludeDirs = map[string]struct{}{
	"node_modules": {},
	"target":       {},
	"build":        {},
	".git":         {},
}

// Builder orchestrates discovery, merge, and validation for C2.
type Builder struct {
	Registry    *manifest.Registry
	ExcludeDirs map[string]struct{}
}

// NewBuilder constructs a Builder over the given plugin registry.
func NewBuilder(registry *manifest.Registry) *Builder {
	return &Builder{Registry: registry, ExcludeDirs: defaultExcludeDirs}
}

// Build walks workspaceRoot, invokes every registered plugin, merges their
// contributions, and overlays any explicit workspace-configured
// dependencies. Returns the resulting graph plus any recoverable warnings.
func (b *Builder) Build(workspaceRoot string, cfg *wsconfig.WorkspaceConfig) (*ProjectGraph, []manifest.Warning, error) {
	plugins := b.Registry.All()

	filesByPlugin := make(map[string][]string, len(plugins))
	for _, p := range plugins {
		files, err := b.matchFiles(workspaceRoot, p.FilePattern())
		if err != nil {
			return nil, nil, forgeerrors.NewConfigurationError("plugins", "failed walking workspace for plugin \""+p.ID()+"\"", err)
		}
		filesByPlugin[p.ID()] = files
	}

	projects := make(map[string]Project)
	owners := make(map[string]string) // project name -> root, to detect collisions
	var warnings []manifest.Warning

	var targetDefaults map[string]*wsconfig.TargetConfig
	if cfg != nil {
		targetDefaults = cfg.TargetDefaults
	}

	for _, p := range plugins {
		files := filesByPlugin[p.ID()]
		if len(files) == 0 {
			continue
		}

		// CreateNodes runs once per file so that two files of the same plugin
		// claiming one project name at different roots are caught here.
		contributed := make(map[string]manifest.ProjectConfiguration)
		for _, file := range files {
			perFile, pluginWarnings := p.CreateNodes([]string{file}, p.DefaultOptions(), &manifest.InferenceContext{
				WorkspaceRoot:  workspaceRoot,
				Projects:       toManifestProjects(projects),
				TargetDefaults: targetDefaults,
			})
			warnings = append(warnings, pluginWarnings...)
			for name, proj := range perFile {
				if prev, dup := contributed[name]; dup && prev.Root != proj.Root {
					return nil, warnings, forgeerrors.NewConfigurationError("projects."+name,
						"project \""+name+"\" claimed at two different roots: \""+prev.Root+"\" and \""+proj.Root+"\"", nil)
				}
				contributed[name] = proj
			}
		}

		for name, proj := range contributed {
			for targetName, target := range proj.Targets {
				proj.Targets[targetName] = applyTargetDefaults(target, targetName, targetDefaults)
			}
			contributed[name] = proj
		}

		names := make([]string, 0, len(contributed))
		for name := range contributed {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			cfgProj := contributed[name]
			existingRoot, seen := owners[name]

			if !seen {
				projects[name] = fromManifestConfig(cfgProj)
				owners[name] = cfgProj.Root
				continue
			}

			if existingRoot != cfgProj.Root {
				return nil, warnings, forgeerrors.NewConfigurationError(
					"projects."+name,
					"project \""+name+"\" claimed at two different roots: \""+existingRoot+"\" and \""+cfgProj.Root+"\"",
					nil,
				)
			}

			// Same root, second contribution: merge additional targets,
			// last-writer-wins on target-name collision, recorded as a warning.
			existing := projects[name]
			if existing.Targets == nil {
				existing.Targets = make(map[string]manifest.Target)
			}
			for targetName, target := range cfgProj.Targets {
				if _, collides := existing.Targets[targetName]; collides {
					warnings = append(warnings, manifest.Warning{
						Plugin: p.ID(),
						Path:   cfgProj.Root,
						Err:    forgeerrors.NewConfigurationError("targets."+targetName, "target name collision on project \""+name+"\"; last writer wins", nil),
					})
				}
				existing.Targets[targetName] = target
			}
			projects[name] = existing
		}
	}

	var allEdges []Edge
	snapshot := toManifestProjects(projects)
	for _, p := range plugins {
		if len(filesByPlugin[p.ID()]) == 0 {
			continue
		}
		edges, depWarnings := p.CreateDependencies(p.DefaultOptions(), &manifest.InferenceContext{
			WorkspaceRoot:  workspaceRoot,
			Projects:       snapshot,
			TargetDefaults: targetDefaults,
		})
		warnings = append(warnings, depWarnings...)
		allEdges = append(allEdges, edges...)
	}

	if cfg != nil {
		for _, dep := range cfg.Dependencies {
			allEdges = append(allEdges, Edge{Source: dep.Source, Target: dep.Target, Type: manifest.Implicit})
		}
	}

	deduped, droppedWarnings := dedupAndDropDangling(allEdges, projects)
	warnings = append(warnings, droppedWarnings...)

	return NewProjectGraph(projects, deduped), warnings, nil
}

func (b *Builder) matchFiles(root, pattern string) ([]string, error) {
	var matches []string
	exclude := b.ExcludeDirs
	if exclude == nil {
		exclude = defaultExcludeDirs
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if _, skip := exclude[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		ok, matchErr := doublestar.Match(pattern, filepath.ToSlash(rel))
		if matchErr != nil {
			return matchErr
		}
		if ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

// applyTargetDefaults layers cfg.TargetDefaults[targetName] beneath target,
// implementing the `targetDefaults < plugin-inferred < project-level
// override` precedence: only fields whose zero value unambiguously means
// "the plugin left this unset" are defaulted (a plugin never sets
// RemoteExecution itself, and empty Inputs/Outputs slices are otherwise
// meaningless); Executor/Cache/DependsOn stay entirely plugin-owned since
// every built-in plugin already sets them explicitly.
func applyTargetDefaults(target manifest.Target, targetName string, defaults map[string]*wsconfig.TargetConfig) manifest.Target {
	def, ok := defaults[targetName]
	if !ok || def == nil {
		return target
	}

	if len(target.Inputs) == 0 && len(def.Inputs) > 0 {
		target.Inputs = append([]string(nil), def.Inputs...)
	}
	if len(target.Outputs) == 0 && len(def.Outputs) > 0 {
		target.Outputs = append([]string(nil), def.Outputs...)
	}
	if target.RemoteExecution == nil && def.RemoteExecution != nil && def.RemoteExecution.Enabled != nil {
		enabled := *def.RemoteExecution.Enabled
		target.RemoteExecution = &enabled
	}
	if len(def.Options.Env) > 0 {
		target.Options = mergeEnvOption(target.Options, def.Options.Env)
	}

	return target
}

// mergeEnvOption layers defaultEnv beneath whatever options["env"] the
// plugin already set, override winning per key, and returns options with
// the merged map installed.
func mergeEnvOption(options map[string]any, defaultEnv map[string]string) map[string]any {
	merged := make(map[string]string, len(defaultEnv))
	for k, v := range defaultEnv {
		merged[k] = v
	}

	if options != nil {
		switch existing := options["env"].(type) {
		case map[string]string:
			for k, v := range existing {
				merged[k] = v
			}
		case map[string]interface{}:
			for k, v := range existing {
				if s, ok := v.(string); ok {
					merged[k] = s
				}
			}
		}
	}

	out := make(map[string]any, len(options)+1)
	for k, v := range options {
		out[k] = v
	}
	out["env"] = merged
	return out
}

func fromManifestConfig(c manifest.ProjectConfiguration) Project {
	return Project{
		Name:       c.Name,
		Root:       c.Root,
		SourceRoot: c.SourceRoot,
		Type:       c.Type,
		Tags:       c.Tags,
		Targets:    c.Targets,
	}
}

func toManifestProjects(projects map[string]Project) map[string]manifest.ProjectConfiguration {
	out := make(map[string]manifest.ProjectConfiguration, len(projects))
	for name, p := range projects {
		out[name] = manifest.ProjectConfiguration{
			Name:       p.Name,
			Root:       p.Root,
			SourceRoot: p.SourceRoot,
			Type:       p.Type,
			Tags:       p.Tags,
			Targets:    p.Targets,
		}
	}
	return out
}

func dedupAndDropDangling(edges []Edge, projects map[string]Project) ([]Edge, []manifest.Warning) {
	type key struct {
		source, target string
		edgeType        manifest.EdgeType
	}

	seen := make(map[key]struct{}, len(edges))
	var result []Edge
	var warnings []manifest.Warning

	for _, e := range edges {
		if _, ok := projects[e.Source]; !ok {
			warnings = append(warnings, manifest.Warning{Path: e.File, Err: forgeerrors.NewGraphError("dangling edge source \""+e.Source+"\"", nil, nil)})
			continue
		}
		if _, ok := projects[e.Target]; !ok {
			warnings = append(warnings, manifest.Warning{Path: e.File, Err: forgeerrors.NewGraphError("dangling edge target \""+e.Target+"\"", nil, nil)})
			continue
		}
		if e.Source == e.Target {
			continue
		}

		k := key{e.Source, e.Target, e.Type}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, e)
	}

	return result, warnings
}
