package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/jbadeau/forge-sub002/internal/wsconfig"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// npmOptions is the validated shape of NPMPlugin's options bag.
type npmOptions struct {
	InternalScopePrefix string `validate:"omitempty,printascii"`
}

// npmTargetNames maps package.json script names to target names. "dev"
// conventionally maps to "serve" rather than a target literally named "dev".
var npmTargetNames = map[string]string{
	"dev": "serve",
}

type npmPackageJSON struct {
	Name            string            `json:"name"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// NPMPlugin infers projects and targets from package.json files.
type NPMPlugin struct{}

// NewNPMPlugin constructs the built-in npm/JavaScript manifest plugin.
func NewNPMPlugin() *NPMPlugin { return &NPMPlugin{} }

func (p *NPMPlugin) ID() string          { return "npm" }
func (p *NPMPlugin) FilePattern() string { return "**/package.json" }

func (p *NPMPlugin) DefaultOptions() map[string]any {
	return map[string]any{
		"internalScopePrefix": "",
	}
}

func (p *NPMPlugin) ValidateOptions(options map[string]any) error {
	var opts npmOptions
	if v, ok := options["internalScopePrefix"]; ok {
		s, ok := v.(string)
		if !ok {
			return forgeerrors.NewConfigurationError("options.internalScopePrefix", "must be a string", nil)
		}
		opts.InternalScopePrefix = s
	}

	if err := wsconfig.GetValidator().Struct(&opts); err != nil {
		return forgeerrors.NewConfigurationError("options.internalScopePrefix", "must be printable ASCII", err)
	}
	return nil
}

// CreateNodes parses each package.json and produces one project per file,
// named after the manifest's declared name, falling back to the directory
// basename when the manifest has none.
func (p *NPMPlugin) CreateNodes(files []string, options map[string]any, ctx *InferenceContext) (map[string]ProjectConfiguration, []Warning) {
	projects := make(map[string]ProjectConfiguration, len(files))
	var warnings []Warning

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}

		var pkg npmPackageJSON
		if err := json.Unmarshal(raw, &pkg); err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}

		root := filepath.Dir(file)
		name := pkg.Name
		if name == "" {
			name = filepath.Base(root)
		}

		targets := make(map[string]Target, len(pkg.Scripts))
		scriptNames := make([]string, 0, len(pkg.Scripts))
		for script := range pkg.Scripts {
			scriptNames = append(scriptNames, script)
		}
		sort.Strings(scriptNames)

		for _, script := range scriptNames {
			targetName := script
			if mapped, ok := npmTargetNames[script]; ok {
				targetName = mapped
			}
			targets[targetName] = Target{
				Executor:  "run-commands",
				Options:   map[string]any{"commands": []string{"npm run " + script}},
				Inputs:    []string{"default"},
				Outputs:   []string{root + "/dist", root + "/build"},
				Cache:     true,
				DependsOn: npmDependsOn(targetName),
			}
		}

		tags := npmTags(pkg)

		projects[name] = ProjectConfiguration{
			Name:       name,
			Root:       root,
			SourceRoot: root,
			Type:       npmProjectType(pkg),
			Tags:       tags,
			Targets:    targets,
		}
	}

	return projects, warnings
}

func npmDependsOn(targetName string) []string {
	if targetName == "build" {
		return []string{"^build"}
	}
	return nil
}

func npmProjectType(pkg npmPackageJSON) ProjectType {
	if _, ok := pkg.Scripts["start"]; ok {
		return Application
	}
	return Library
}

func npmTags(pkg npmPackageJSON) []string {
	var tags []string
	if _, ok := pkg.Dependencies["react"]; ok {
		tags = append(tags, "framework:react")
	}
	if _, ok := pkg.Dependencies["vue"]; ok {
		tags = append(tags, "framework:vue")
	}
	sort.Strings(tags)
	return tags
}

// CreateDependencies resolves each project's declared dependencies against
// the workspace snapshot, optionally restricted to an internal scope prefix.
func (p *NPMPlugin) CreateDependencies(options map[string]any, ctx *InferenceContext) ([]Edge, []Warning) {
	prefix, _ := options["internalScopePrefix"].(string)

	names := make([]string, 0, len(ctx.Projects))
	for name := range ctx.Projects {
		names = append(names, name)
	}
	sort.Strings(names)

	var edges []Edge
	for _, name := range names {
		proj := ctx.Projects[name]
		manifestPath := filepath.Join(proj.Root, "package.json")
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		var pkg npmPackageJSON
		if err := json.Unmarshal(raw, &pkg); err != nil {
			continue
		}

		deps := make([]string, 0, len(pkg.Dependencies))
		for dep := range pkg.Dependencies {
			deps = append(deps, dep)
		}
		sort.Strings(deps)

		for _, dep := range deps {
			if prefix != "" && len(dep) < len(prefix) {
				continue
			}
			if prefix != "" && dep[:len(prefix)] != prefix {
				continue
			}
			if _, ok := ctx.Projects[dep]; !ok {
				continue
			}
			edges = append(edges, Edge{Source: name, Target: dep, Type: Static, File: manifestPath})
		}
	}

	return edges, nil
}
