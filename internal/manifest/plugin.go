package manifest

import "github.com/jbadeau/forge-sub002/internal/wsconfig"

// InferenceContext is handed to a plugin's CreateNodes/CreateDependencies.
// It carries only read-only workspace state: CreateNodes must not perform
// network I/O, and CreateDependencies resolves cross-project references
// against the already-merged project snapshot.
type InferenceContext struct {
	// WorkspaceRoot is the absolute path to the workspace being scanned.
	WorkspaceRoot string
	// Projects is the project map as merged so far by the project graph
	// builder; CreateDependencies uses it to resolve groupId:artifactId,
	// package-name, or directory-basename references against known peers.
	Projects map[string]ProjectConfiguration
	// TargetDefaults is the workspace's per-target-name default
	// configuration (targetDefaults in workspace.json), keyed by target
	// name ("build", "test", ...). The project graph builder applies these
	// as the base layer beneath whatever a plugin infers; a plugin itself
	// only needs to read it when deciding what to leave unset.
	TargetDefaults map[string]*wsconfig.TargetConfig
}

// Plugin is a manifest inference plugin: a pure function from a class of
// manifest files it claims (by glob FilePattern) to project definitions
// and dependency edges.
type Plugin interface {
	// ID is the plugin's stable identifier, e.g. "npm", "maven", "golang",
	// "docker". Matches the registry key and the workspace config's
	// plugin spec id.
	ID() string

	// FilePattern is the doublestar glob this plugin claims, e.g.
	// "**/pom.xml".
	FilePattern() string

	// DefaultOptions returns the plugin's zero-value options record.
	DefaultOptions() map[string]any

	// ValidateOptions checks an options map against the plugin's schema and
	// returns a non-nil error when it is invalid. The project graph builder
	// passes each plugin its DefaultOptions and does not call it.
	ValidateOptions(options map[string]any) error

	// CreateNodes is a pure function of manifest content plus an options
	// bag: file path -> ProjectConfiguration. On any per-file failure the
	// file is skipped and a Warning is returned alongside; CreateNodes
	// never aborts discovery of other files.
	CreateNodes(files []string, options map[string]any, ctx *InferenceContext) (map[string]ProjectConfiguration, []Warning)

	// CreateDependencies resolves cross-project edges using the merged
	// project snapshot carried by ctx.
	CreateDependencies(options map[string]any, ctx *InferenceContext) ([]Edge, []Warning)
}
