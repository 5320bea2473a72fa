package manifest

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jbadeau/forge-sub002/internal/wsconfig"
	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// mavenOptions is the validated shape of MavenPlugin's options bag.
type mavenOptions struct {
	InternalGroupPrefix string `validate:"omitempty,printascii"`
}

type mavenPOM struct {
	XMLName    xml.Name     `xml:"project"`
	GroupID    string       `xml:"groupId"`
	ArtifactID string       `xml:"artifactId"`
	Packaging  string       `xml:"packaging"`
	Parent     *mavenParent `xml:"parent"`
	Deps       []mavenDep   `xml:"dependencies>dependency"`
}

type mavenParent struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
}

type mavenDep struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
}

func (pom mavenPOM) effectiveGroupID() string {
	if pom.GroupID != "" {
		return pom.GroupID
	}
	if pom.Parent != nil {
		return pom.Parent.GroupID
	}
	return ""
}

// MavenPlugin infers projects and targets from pom.xml files.
type MavenPlugin struct{}

// NewMavenPlugin constructs the built-in Maven manifest plugin.
func NewMavenPlugin() *MavenPlugin { return &MavenPlugin{} }

func (p *MavenPlugin) ID() string          { return "maven" }
func (p *MavenPlugin) FilePattern() string { return "**/pom.xml" }

func (p *MavenPlugin) DefaultOptions() map[string]any {
	return map[string]any{
		"internalGroupPrefix": "",
	}
}

func (p *MavenPlugin) ValidateOptions(options map[string]any) error {
	var opts mavenOptions
	if v, ok := options["internalGroupPrefix"]; ok {
		s, ok := v.(string)
		if !ok {
			return forgeerrors.NewConfigurationError("options.internalGroupPrefix", "must be a string", nil)
		}
		opts.InternalGroupPrefix = s
	}

	if err := wsconfig.GetValidator().Struct(&opts); err != nil {
		return forgeerrors.NewConfigurationError("options.internalGroupPrefix", "must be printable ASCII", err)
	}
	return nil
}

func (p *MavenPlugin) CreateNodes(files []string, options map[string]any, ctx *InferenceContext) (map[string]ProjectConfiguration, []Warning) {
	projects := make(map[string]ProjectConfiguration, len(files))
	var warnings []Warning

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}

		var pom mavenPOM
		if err := xml.Unmarshal(raw, &pom); err != nil {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: err})
			continue
		}
		if pom.ArtifactID == "" {
			warnings = append(warnings, Warning{Plugin: p.ID(), Path: file, Err: forgeerrors.NewInferenceError(p.ID(), file, errEmptyArtifactID)})
			continue
		}

		root := filepath.Dir(file)
		name := pom.ArtifactID

		targets := map[string]Target{
			"compile": {
				Executor:  "run-commands",
				Options:   map[string]any{"commands": []string{"mvn compile"}},
				DependsOn: []string{"^compile"},
				Cache:     true,
			},
			"test": {
				Executor:  "run-commands",
				Options:   map[string]any{"commands": []string{"mvn test"}},
				DependsOn: []string{"^test", "compile"},
				Cache:     true,
			},
			"package": {
				Executor:  "run-commands",
				Options:   map[string]any{"commands": []string{"mvn package"}},
				DependsOn: []string{"compile", "test"},
				Outputs:   []string{root + "/target"},
				Cache:     true,
			},
		}

		projectType := Library
		if pom.Packaging == "jar" || pom.Packaging == "war" || pom.Packaging == "" {
			projectType = Application
		}

		projects[name] = ProjectConfiguration{
			Name:       name,
			Root:       root,
			SourceRoot: filepath.Join(root, "src", "main", "java"),
			Type:       projectType,
			Tags:       []string{"scope:" + pom.effectiveGroupID()},
			Targets:    targets,
		}
	}

	return projects, warnings
}

func (p *MavenPlugin) CreateDependencies(options map[string]any, ctx *InferenceContext) ([]Edge, []Warning) {
	prefix, _ := options["internalGroupPrefix"].(string)

	names := make([]string, 0, len(ctx.Projects))
	for name := range ctx.Projects {
		names = append(names, name)
	}
	sort.Strings(names)

	var edges []Edge
	for _, name := range names {
		proj := ctx.Projects[name]
		manifestPath := filepath.Join(proj.Root, "pom.xml")
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		var pom mavenPOM
		if err := xml.Unmarshal(raw, &pom); err != nil {
			continue
		}

		for _, dep := range pom.Deps {
			if prefix != "" && !strings.HasPrefix(dep.GroupID, prefix) {
				continue
			}
			if _, ok := ctx.Projects[dep.ArtifactID]; !ok {
				continue
			}
			edges = append(edges, Edge{Source: name, Target: dep.ArtifactID, Type: Static, File: manifestPath})
		}
	}

	return edges, nil
}

var errEmptyArtifactID = mavenError("pom.xml missing artifactId")

type mavenError string

func (e mavenError) Error() string { return string(e) }
