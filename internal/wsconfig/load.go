package wsconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// Load reads and validates a workspace configuration document from path.
func Load(path string) (*WorkspaceConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, forgeerrors.NewConfigurationError(path, "cannot open workspace configuration", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads and validates a workspace configuration document from r.
func Decode(r io.Reader) (*WorkspaceConfig, error) {
	var cfg WorkspaceConfig
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return nil, forgeerrors.NewConfigurationError("", "malformed workspace configuration", err)
	}

	for _, raw := range cfg.Plugins {
		if _, err := ParsePluginSpec(raw); err != nil {
			return nil, err
		}
	}

	if err := validatorInstance().Struct(&cfg); err != nil {
		return nil, forgeerrors.NewConfigurationError("", fmt.Sprintf("workspace configuration validation failed: %v", err), err)
	}

	return &cfg, nil
}
