package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/mod/modfile"

	"github.com/jbadeau/forge-sub002/internal/wsconfig"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// goOptions is the validated shape of GoPlugin's options bag.
type goOptions struct {
	InternalModulePrefix string `validate:"omitempty,printascii"`
}

// GoPlugin infers projects and targets from go.mod files.
type GoPlugin struct{}

// NewGoPlugin constructs the built-in Go manifest plugin.
func NewGoPlugin() *GoPlugin { return &GoPlugin{} }

func (p *GoPlugin) ID() string          { return "golang" }
func (p *GoPlugin) FilePattern() string { return "**/go.mod" }

func (p *GoPlugin) DefaultOptions() map[string]any {
	return map[string]any{
		"internalModulePrefix": "",
	}
}

func (p *GoPlugin) ValidateOptions(options map[string]any) error {
	var opts goOptions
	if v, ok := options["internalModulePrefix"]; ok {
		s, ok := v.(string)
		if !ok {
			return forgeerrors.NewConfigurationError("options.internalModulePrefix", "must be a string", nil)
		}
		opts.InternalModulePrefix = s
	}

	if err := wsconfig.GetValidator().Struct(&opts); err != nil {
		return forgeerrors.NewConfigurationError("options.internalModulePrefix", "must be printable ASCII", err)
	}
	return nil
}

func (p *GoPlugin) CreateNodes(files []string, options map[string]any, ctx *InferenceContext) (map[string]ProjectConfiguration, []Warning) {
	projects := make(map[string]ProjectConfiguration, len(files))
	var warnings []Warning

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}

		mf, err := modfile.Parse(file, raw, nil)
		if err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}
		if mf.Module == nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: forgeerrors.NewInferenceError(p.ID(), file, errNoModuleDirective)})
			continue
		}

		root := filepath.Dir(file)
		name := filepath.Base(mf.Module.Mod.Path)
		if name == "" || name == "." {
			name = filepath.Base(root)
		}

		targets := map[string]Target{
			"build": {
				Executor:  "run-commands",
				Options:   map[string]any{"commands": []string{"go build ./..."}},
				DependsOn: []string{"^build"},
				Inputs:    []string{"default"},
				Cache:     true,
			},
			"test": {
				Executor:  "run-commands",
				Options:   map[string]any{"commands": []string{"go test ./..."}},
				DependsOn: []string{"build"},
				Inputs:    []string{"default"},
				Cache:     true,
			},
		}

		requires := make([]string, 0, len(mf.Require))
		for _, req := range mf.Require {
			requires = append(requires, req.Mod.Path)
		}
		sort.Strings(requires)

		projects[name] = ProjectConfiguration{
			Name:       name,
			Root:       root,
			SourceRoot: root,
			Type:       goProjectType(root),
			Tags:       []string{"module:" + mf.Module.Mod.Path},
			Targets:    targets,
		}
	}

	return projects, warnings
}

func goProjectType(root string) ProjectType {
	entries, err := os.ReadDir(filepath.Join(root, "cmd"))
	if err == nil && len(entries) > 0 {
		return Application
	}
	return Library
}

func (p *GoPlugin) CreateDependencies(options map[string]any, ctx *InferenceContext) ([]Edge, []Warning) {
	prefix, _ := options["internalModulePrefix"].(string)

	names := make([]string, 0, len(ctx.Projects))
	for name := range ctx.Projects {
		names = append(names, name)
	}
	sort.Strings(names)

	var edges []Edge
	for _, name := range names {
		proj := ctx.Projects[name]
		manifestPath := filepath.Join(proj.Root, "go.mod")
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		mf, err := modfile.Parse(manifestPath, raw, nil)
		if err != nil || mf.Module == nil {
			continue
		}

		for _, req := range mf.Require {
			if prefix != "" && len(req.Mod.Path) < len(prefix) {
				continue
			}
			if prefix != "" && req.Mod.Path[:len(prefix)] != prefix {
				continue
			}
			depName := filepath.Base(req.Mod.Path)
			if _, ok := ctx.Projects[depName]; !ok {
				continue
			}
			edges = append(edges, Edge{Source: name, Target: depName, Type: Static, File: manifestPath})
		}
	}

	return edges, nil
}

var errNoModuleDirective = goModError("go.mod missing module directive")

type goModError string

func (e goModError) Error() string { return string(e) }
