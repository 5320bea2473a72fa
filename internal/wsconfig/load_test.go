package wsconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMinimalWorkspace(t *testing.T) {
	t.Parallel()

	doc := `{"plugins": ["npm:@forge/js-plugin@1.2.0", "maven", "file:./plugins/go.so"]}`
	cfg, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cfg.Plugins, 3)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := Decode(strings.NewReader(`{"plugins": [}`))
	require.Error(t, err)
}

func TestDecodeValidatesRemoteExecutionEndpoint(t *testing.T) {
	t.Parallel()

	doc := `{"remoteExecution": {"enabled": true, "defaultEndpoint": "not a hostport"}}`
	_, err := Decode(strings.NewReader(doc))
	require.Error(t, err)
}

func TestDecodeAcceptsFullWorkspace(t *testing.T) {
	t.Parallel()

	doc := `{
		"plugins": ["npm", "maven", "golang", "docker"],
		"namedInputs": {"default": ["{projectRoot}/**/*"]},
		"targetDefaults": {"build": {"cache": true, "dependsOn": ["^build"]}},
		"affected": {"defaultBase": "main"},
		"remoteExecution": {
			"enabled": true,
			"defaultEndpoint": "cas.example.com:443",
			"defaultInstanceName": "default",
			"useTls": true,
			"maxConnections": 8,
			"defaultTimeoutSeconds": 60,
			"endpoints": {
				"staging": {"endpoint": "cas-staging.example.com:443", "useTls": true}
			}
		},
		"dependencies": [{"source": "web", "target": "ui"}]
	}`

	cfg, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, "main", cfg.Affected.DefaultBase)
	require.True(t, cfg.RemoteExecution.Enabled)
	require.True(t, cfg.TargetDefaults["build"].CacheEnabled())
	require.Len(t, cfg.Dependencies, 1)
}

func TestParsePluginSpecForms(t *testing.T) {
	t.Parallel()

	cases := map[string]PluginSourceKind{
		"maven":                  PluginSourceRegistry,
		"maven@3.9.0":            PluginSourceRegistry,
		"file:./plugins/go.so":   PluginSourceFile,
		"github:acme/forge-go":   PluginSourceGitHub,
		"npm:@forge/js-plugin@1": PluginSourceNPM,
	}

	for raw, wantKind := range cases {
		spec, err := ParsePluginSpec(raw)
		require.NoErrorf(t, err, "spec %q", raw)
		require.Equalf(t, wantKind, spec.Kind, "spec %q", raw)
	}
}

func TestParsePluginSpecRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := ParsePluginSpec("   ")
	require.Error(t, err)
}
