// Package wsconfig decodes and validates the workspace configuration file
// (§6 of the workspace schema): enabled inference plugins, named input
// sets, per-target-name defaults, affected-detection settings, and remote
// execution endpoints.
package wsconfig

// WorkspaceConfig is the root of the workspace configuration document.
type WorkspaceConfig struct {
	Plugins         []string                 `json:"plugins,omitempty" validate:"omitempty,dive,required"`
	NamedInputs     map[string][]string      `json:"namedInputs,omitempty"`
	TargetDefaults  map[string]*TargetConfig `json:"targetDefaults,omitempty" validate:"omitempty,dive"`
	Affected        AffectedConfig           `json:"affected,omitempty"`
	RemoteExecution *RemoteExecutionConfig   `json:"remoteExecution,omitempty"`

	// Dependencies overlays explicit, workspace-declared project edges
	// (type IMPLICIT) on top of whatever C1 plugins infer.
	Dependencies []DependencySpec `json:"dependencies,omitempty" validate:"omitempty,dive"`
}

// GetRemoteExecution nil-safely returns cfg's RemoteExecution block, so
// callers holding a possibly-nil *WorkspaceConfig don't need a separate nil
// check before consulting it.
func (cfg *WorkspaceConfig) GetRemoteExecution() *RemoteExecutionConfig {
	if cfg == nil {
		return nil
	}
	return cfg.RemoteExecution
}

// DependencySpec is one explicit, workspace-declared project dependency.
type DependencySpec struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// AffectedConfig configures the external "affected" producer's default base.
type AffectedConfig struct {
	DefaultBase string `json:"defaultBase,omitempty"`
}

// RemoteExecutionConfig is the top-level remote execution switch plus the
// default endpoint settings, with optional named endpoint overrides.
type RemoteExecutionConfig struct {
	Enabled               bool                       `json:"enabled"`
	DefaultEndpoint       string                     `json:"defaultEndpoint,omitempty" validate:"omitempty,hostname_port"`
	DefaultInstanceName   string                     `json:"defaultInstanceName,omitempty"`
	UseTLS                bool                       `json:"useTls,omitempty"`
	MaxConnections        int                        `json:"maxConnections,omitempty" validate:"omitempty,min=1,max=256"`
	DefaultTimeoutSeconds int                        `json:"defaultTimeoutSeconds,omitempty" validate:"omitempty,min=1"`
	DefaultPlatform       map[string]string          `json:"defaultPlatform,omitempty"`
	Endpoints             map[string]*EndpointConfig `json:"endpoints,omitempty" validate:"omitempty,dive"`
}

// EndpointConfig is a named override of the default remote execution endpoint.
type EndpointConfig struct {
	Endpoint       string            `json:"endpoint" validate:"required,hostname_port"`
	InstanceName   string            `json:"instanceName,omitempty"`
	UseTLS         bool              `json:"useTls,omitempty"`
	MaxConnections int               `json:"maxConnections,omitempty" validate:"omitempty,min=1,max=256"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty" validate:"omitempty,min=1"`
	Platform       map[string]string `json:"platform,omitempty"`
}

// TargetConfig is the recognized shape of a target definition in workspace
// configuration; targetDefaults entries are decoded into it.
type TargetConfig struct {
	Executor        string                     `json:"executor,omitempty" validate:"omitempty,min=1"`
	Options         TargetOptions              `json:"options,omitempty"`
	Inputs          []string                   `json:"inputs,omitempty"`
	Outputs         []string                   `json:"outputs,omitempty"`
	Cache           *bool                      `json:"cache,omitempty"`
	DependsOn       []string                   `json:"dependsOn,omitempty"`
	RemoteExecution *TargetRemoteExecutionSpec `json:"remoteExecution,omitempty"`
}

// TargetOptions is the recognized options bag for a target's executor.
type TargetOptions struct {
	Commands []string          `json:"commands,omitempty"`
	Cwd      string            `json:"cwd,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Parallel bool              `json:"parallel,omitempty"`
}

// TargetRemoteExecutionSpec lets a single target opt in or out of remote
// execution independent of the workspace-wide default.
type TargetRemoteExecutionSpec struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// CacheEnabled reports the effective cache flag, defaulting to true when unset.
func (t *TargetConfig) CacheEnabled() bool {
	if t == nil || t.Cache == nil {
		return true
	}
	return *t.Cache
}

// RemoteEnabled reports whether this target permits remote execution when
// the workspace default is itself enabled.
func (t *TargetConfig) RemoteEnabled() bool {
	if t == nil || t.RemoteExecution == nil || t.RemoteExecution.Enabled == nil {
		return true
	}
	return *t.RemoteExecution.Enabled
}
