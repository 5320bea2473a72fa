package wsconfig

import (
	"strings"

	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// PluginSourceKind distinguishes the recognized plugin spec forms.
type PluginSourceKind int

const (
	// PluginSourceRegistry covers "<id>" and "<id>@<version>" forms.
	PluginSourceRegistry PluginSourceKind = iota
	// PluginSourceFile covers "file:<path>".
	PluginSourceFile
	// PluginSourceGitHub covers "github:<owner/repo>".
	PluginSourceGitHub
	// PluginSourceNPM covers "npm:<name>@<version>".
	PluginSourceNPM
)

// PluginSpec is a parsed entry of the workspace config's "plugins" list.
type PluginSpec struct {
	Kind    PluginSourceKind
	ID      string
	Version string
}

// ParsePluginSpec parses one raw plugin spec string into its typed form.
func ParsePluginSpec(raw string) (PluginSpec, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PluginSpec{}, forgeerrors.NewConfigurationError("plugins", "empty plugin spec", nil)
	}

	switch {
	case strings.HasPrefix(trimmed, "file:"):
		path := strings.TrimPrefix(trimmed, "file:")
		if path == "" {
			return PluginSpec{}, forgeerrors.NewConfigurationError("plugins", "file plugin spec missing path", nil)
		}
		return PluginSpec{Kind: PluginSourceFile, ID: path}, nil

	case strings.HasPrefix(trimmed, "github:"):
		ref := strings.TrimPrefix(trimmed, "github:")
		if !strings.Contains(ref, "/") {
			return PluginSpec{}, forgeerrors.NewConfigurationError("plugins", "github plugin spec must be owner/repo", nil)
		}
		return PluginSpec{Kind: PluginSourceGitHub, ID: ref}, nil

	case strings.HasPrefix(trimmed, "npm:"):
		ref := strings.TrimPrefix(trimmed, "npm:")
		// The version follows the last "@"; a leading "@" belongs to a
		// scoped package name such as "@forge/js-plugin".
		id, version := ref, ""
		if idx := strings.LastIndex(ref, "@"); idx > 0 {
			id, version = ref[:idx], ref[idx+1:]
		}
		if id == "" {
			return PluginSpec{}, forgeerrors.NewConfigurationError("plugins", "npm plugin spec missing name", nil)
		}
		return PluginSpec{Kind: PluginSourceNPM, ID: id, Version: version}, nil

	default:
		id, version, _ := strings.Cut(trimmed, "@")
		return PluginSpec{Kind: PluginSourceRegistry, ID: id, Version: version}, nil
	}
}
