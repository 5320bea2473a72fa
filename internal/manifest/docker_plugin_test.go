package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDockerPluginCreateNodesFromDockerfile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dockerfilePath := filepath.Join(dir, "api", "Dockerfile")
	writeFile(t, dockerfilePath, "FROM golang:1.22\n")

	plugin := NewDockerPlugin()
	projects, warnings := plugin.CreateNodes([]string{dockerfilePath}, plugin.DefaultOptions(), &InferenceContext{})
	require.Empty(t, warnings)
	require.Contains(t, projects, "api")
	require.Contains(t, projects["api"].Targets, "docker-build")
	require.Equal(t, []string{"docker-build"}, projects["api"].Targets["docker-push"].DependsOn)
}

func TestDockerPluginCreateNodesFromCompose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	composePath := filepath.Join(dir, "stack", "docker-compose.yml")
	writeFile(t, composePath, `services:
  web:
    build: ./web
    depends_on: [api]
  api:
    build:
      context: ./api
`)

	plugin := NewDockerPlugin()
	projects, warnings := plugin.CreateNodes([]string{composePath}, plugin.DefaultOptions(), &InferenceContext{})
	require.Empty(t, warnings)
	require.Contains(t, projects, "web")
	require.Contains(t, projects, "api")
}

func TestDockerPluginCreateDependenciesFromComposeDependsOn(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	composePath := filepath.Join(dir, "stack", "docker-compose.yml")
	writeFile(t, composePath, `services:
  web:
    build: ./web
    depends_on: [api]
  api:
    build: ./api
`)

	ctx := &InferenceContext{
		Projects: map[string]ProjectConfiguration{
			"web": {Name: "web", Root: filepath.Dir(composePath)},
			"api": {Name: "api", Root: filepath.Dir(composePath)},
		},
	}

	plugin := NewDockerPlugin()
	edges, warnings := plugin.CreateDependencies(plugin.DefaultOptions(), ctx)
	require.Empty(t, warnings)
	require.Len(t, edges, 1)
	require.Equal(t, "web", edges[0].Source)
	require.Equal(t, "api", edges[0].Target)
}
