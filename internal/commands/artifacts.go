package commands

import (
	"context"
	"path/filepath"

	"github.com/tkintscher/exonum/internal/config"
	"github.com/tkintscher/exonum/internal/runtime"
	"github.com/tkintscher/exonum/internal/wasm"
)

// ListArtifacts compiles the WASM services found in the services directory
// of a node config and returns their artifact specs. A relative services_dir
// is resolved against the config file's directory.
func (c *Controller) ListArtifacts(ctx context.Context, nodeConfigFile string) ([]runtime.ArtifactSpec, error) {
	if nodeConfigFile == "" {
		found, err := config.FindNodeConfig()
		if err != nil {
			return nil, err
		}
		nodeConfigFile = found
	}

	cfg, err := config.LoadNodeConfig(nodeConfigFile)
	if err != nil {
		return nil, err
	}

	dir := cfg.PrivateConfig.ServicesDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(nodeConfigFile), dir)
	}

	rt := runtime.New(runtime.RuntimeWASM, c.Logger)
	loaded, err := wasm.LoadArtifacts(ctx, rt, dir, c.Logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := loaded.Close(ctx); err != nil {
			c.Logger.Warn().Err(err).Msg("failed to release compiled modules")
		}
	}()

	return loaded.Specs, nil
}
