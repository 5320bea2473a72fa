package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoPluginCreateNodes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modPath := filepath.Join(dir, "utils", "go.mod")
	writeFile(t, modPath, "module github.com/acme/utils\n\ngo 1.22\n")

	plugin := NewGoPlugin()
	projects, warnings := plugin.CreateNodes([]string{modPath}, plugin.DefaultOptions(), &InferenceContext{})
	require.Empty(t, warnings)
	require.Contains(t, projects, "utils")

	proj := projects["utils"]
	require.Equal(t, Library, proj.Type)
	require.Contains(t, proj.Targets, "build")
	require.Contains(t, proj.Targets, "test")
	require.Equal(t, []string{"build"}, proj.Targets["test"].DependsOn)
}

func TestGoPluginCreateNodesDetectsApplication(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modPath := filepath.Join(dir, "cli", "go.mod")
	writeFile(t, modPath, "module github.com/acme/cli\n\ngo 1.22\n")
	writeFile(t, filepath.Join(dir, "cli", "cmd", "main.go"), "package main\nfunc main() {}\n")

	plugin := NewGoPlugin()
	projects, _ := plugin.CreateNodes([]string{modPath}, plugin.DefaultOptions(), &InferenceContext{})
	require.Equal(t, Application, projects["cli"].Type)
}

func TestGoPluginCreateNodesSkipsMalformedModfile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modPath := filepath.Join(dir, "broken", "go.mod")
	writeFile(t, modPath, "this is not a go.mod\n")

	plugin := NewGoPlugin()
	projects, warnings := plugin.CreateNodes([]string{modPath}, plugin.DefaultOptions(), &InferenceContext{})
	require.Empty(t, projects)
	require.Len(t, warnings, 1)
}

func TestGoPluginCreateDependencies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	apiPath := filepath.Join(dir, "api", "go.mod")
	writeFile(t, apiPath, "module github.com/acme/api\n\ngo 1.22\n\nrequire github.com/acme/utils v0.0.0\n")
	utilsPath := filepath.Join(dir, "utils", "go.mod")
	writeFile(t, utilsPath, "module github.com/acme/utils\n\ngo 1.22\n")

	ctx := &InferenceContext{
		Projects: map[string]ProjectConfiguration{
			"api":   {Name: "api", Root: filepath.Dir(apiPath)},
			"utils": {Name: "utils", Root: filepath.Dir(utilsPath)},
		},
	}

	plugin := NewGoPlugin()
	edges, warnings := plugin.CreateDependencies(plugin.DefaultOptions(), ctx)
	require.Empty(t, warnings)
	require.Len(t, edges, 1)
	require.Equal(t, "api", edges[0].Source)
	require.Equal(t, "utils", edges[0].Target)
}
