package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type dockerComposeFile struct {
	Services map[string]dockerComposeService `yaml:"services"`
}

type dockerComposeService struct {
	Build     dockerComposeBuild `yaml:"build"`
	DependsOn []string           `yaml:"depends_on"`
}

// dockerComposeBuild accepts either `build: ./path` or `build: {context: ./path}`.
type dockerComposeBuild struct {
	Context string
}

func (b *dockerComposeBuild) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&b.Context)
	}
	var obj struct {
		Context string `yaml:"context"`
	}
	if err := value.Decode(&obj); err != nil {
		return err
	}
	b.Context = obj.Context
	return nil
}

// DockerPlugin infers projects and targets from Dockerfile and
// docker-compose.* manifests.
type DockerPlugin struct{}

// NewDockerPlugin constructs the built-in Docker manifest plugin.
func NewDockerPlugin() *DockerPlugin { return &DockerPlugin{} }

func (p *DockerPlugin) ID() string          { return "docker" }
func (p *DockerPlugin) FilePattern() string { return "**/{Dockerfile,docker-compose.*}" }

func (p *DockerPlugin) DefaultOptions() map[string]any {
	return map[string]any{}
}

func (p *DockerPlugin) ValidateOptions(options map[string]any) error {
	return nil
}

func (p *DockerPlugin) CreateNodes(files []string, options map[string]any, ctx *InferenceContext) (map[string]ProjectConfiguration, []Warning) {
	projects := make(map[string]ProjectConfiguration, len(files))
	var warnings []Warning

	for _, file := range files {
		base := filepath.Base(file)
		root := filepath.Dir(file)
		name := filepath.Base(root)

		if strings.HasPrefix(base, "docker-compose.") {
			raw, err := os.ReadFile(file)
			if err != nil {
				warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
				continue
			}
			var compose dockerComposeFile
			if err := yaml.Unmarshal(raw, &compose); err != nil {
				warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
				continue
			}

			serviceNames := make([]string, 0, len(compose.Services))
			for svc := range compose.Services {
				serviceNames = append(serviceNames, svc)
			}
			sort.Strings(serviceNames)

			for _, svc := range serviceNames {
				projects[svc] = ProjectConfiguration{
					Name:       svc,
					Root:       root,
					SourceRoot: root,
					Type:       Application,
					Tags:       []string{"docker:compose-service"},
					Targets:    dockerTargets(root),
				}
			}
			continue
		}

		// Plain Dockerfile: one project rooted at its containing directory.
		if _, exists := projects[name]; exists {
			continue
		}
		projects[name] = ProjectConfiguration{
			Name:       name,
			Root:       root,
			SourceRoot: root,
			Type:       Application,
			Tags:       []string{"docker:dockerfile"},
			Targets:    dockerTargets(root),
		}
	}

	return projects, warnings
}

func dockerTargets(root string) map[string]Target {
	return map[string]Target{
		"docker-build": {
			Executor: "run-commands",
			Options:  map[string]any{"commands": []string{"docker build -t " + filepath.Base(root) + " " + root}},
			Cache:    false,
		},
		"docker-push": {
			Executor:  "run-commands",
			Options:   map[string]any{"commands": []string{"docker push " + filepath.Base(root)}},
			DependsOn: []string{"docker-build"},
			Cache:     false,
		},
		"docker-run": {
			Executor:  "run-commands",
			Options:   map[string]any{"commands": []string{"docker run --rm " + filepath.Base(root)}},
			DependsOn: []string{"docker-build"},
			Cache:     false,
		},
	}
}

// CreateDependencies derives edges from docker-compose `depends_on` entries.
func (p *DockerPlugin) CreateDependencies(options map[string]any, ctx *InferenceContext) ([]Edge, []Warning) {
	composeFiles := make(map[string]struct{})
	for _, proj := range ctx.Projects {
		if proj.Root == "" {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(proj.Root, "docker-compose.*"))
		for _, m := range matches {
			composeFiles[m] = struct{}{}
		}
	}

	files := make([]string, 0, len(composeFiles))
	for f := range composeFiles {
		files = append(files, f)
	}
	sort.Strings(files)

	var edges []Edge
	var warnings []Warning
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}
		var compose dockerComposeFile
		if err := yaml.Unmarshal(raw, &compose); err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}

		serviceNames := make([]string, 0, len(compose.Services))
		for svc := range compose.Services {
			serviceNames = append(serviceNames, svc)
		}
		sort.Strings(serviceNames)

		for _, svc := range serviceNames {
			deps := append([]string(nil), compose.Services[svc].DependsOn...)
			sort.Strings(deps)
			for _, dep := range deps {
				if _, ok := ctx.Projects[dep]; !ok {
					continue
				}
				edges = append(edges, Edge{Source: svc, Target: dep, Type: Static, File: file})
			}
		}
	}

	return edges, warnings
}
