package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tkintscher/exonum/internal/config"
	"github.com/tkintscher/exonum/internal/storage"
)

// Values applied by OptimizeConfig when an option is not given explicitly.
const (
	DefaultMaxOpenFiles    int32  = 256
	DefaultMaxTotalWalSize uint64 = 1 << 20
	DefaultLogLevel               = storage.LogWarn
	DefaultMaxLogFileSize  uint64 = 10 << 20
	DefaultKeepLogFileNum  uint64 = 10
)

// OptimizeConfigOptions selects the database options written by OptimizeConfig.
// Nil fields fall back to the defaults above unless SkipDefaults is set, in
// which case the value already in the file is kept.
type OptimizeConfigOptions struct {
	// NodeConfigFile is the config to read. Empty means search for node.toml
	// from the working directory upwards.
	NodeConfigFile string

	// OutputFile is where the result is written. Empty means NodeConfigFile.
	OutputFile string

	MaxOpenFiles    *int32
	MaxTotalWalSize *uint64
	LogLevel        *storage.LogVerbosity
	MaxLogFileSize  *uint64
	KeepLogFileNum  *uint64

	// RecycleLogFiles sets recycle_log_file_num to 1 or 0. Nil clears it,
	// or keeps the file value when SkipDefaults is set.
	RecycleLogFiles *bool

	SkipDefaults bool
}

// OptimizeConfig rewrites the database section of a node config and returns
// the path written. The output is replaced atomically through a sibling
// ".tmp" file; if that file already exists nothing is touched.
func (c *Controller) OptimizeConfig(ctx context.Context, opts OptimizeConfigOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	input := opts.NodeConfigFile
	if input == "" {
		found, err := config.FindNodeConfig()
		if err != nil {
			return "", err
		}
		input = found
	}

	cfg, err := config.LoadNodeConfig(input)
	if err != nil {
		return "", err
	}

	logger := c.Logger.With().Str("component", "optimize-config").Str("input", input).Logger()
	for _, key := range cfg.UndecodedKeys() {
		logger.Warn().Str("key", key).Msg("unknown config key will not be written back")
	}

	applyDbOptions(&cfg.PrivateConfig.Database, opts)

	output := opts.OutputFile
	if output == "" {
		output = input
	}

	if err := c.writeConfigAtomic(cfg, output); err != nil {
		return "", err
	}

	logger.Info().Str("output", output).Msg("database options updated")
	return output, nil
}

func applyDbOptions(db *storage.DbOptions, opts OptimizeConfigOptions) {
	db.MaxOpenFiles = override(db.MaxOpenFiles, opts.MaxOpenFiles, DefaultMaxOpenFiles, opts.SkipDefaults)
	db.MaxTotalWalSize = override(db.MaxTotalWalSize, opts.MaxTotalWalSize, DefaultMaxTotalWalSize, opts.SkipDefaults)
	db.LogVerbosity = override(db.LogVerbosity, opts.LogLevel, DefaultLogLevel, opts.SkipDefaults)
	db.MaxLogFileSize = override(db.MaxLogFileSize, opts.MaxLogFileSize, DefaultMaxLogFileSize, opts.SkipDefaults)
	db.KeepLogFileNum = override(db.KeepLogFileNum, opts.KeepLogFileNum, DefaultKeepLogFileNum, opts.SkipDefaults)

	switch {
	case opts.RecycleLogFiles != nil:
		var n uint64
		if *opts.RecycleLogFiles {
			n = 1
		}
		db.RecycleLogFileNum = &n
	case !opts.SkipDefaults:
		// No default exists; the engine decides.
		db.RecycleLogFileNum = nil
	}
}

// override picks the explicit value, then the default, then the current one.
func override[T any](current, explicit *T, def T, skipDefaults bool) *T {
	switch {
	case explicit != nil:
		v := *explicit
		return &v
	case !skipDefaults:
		return &def
	default:
		return current
	}
}

// tempPath replaces the extension of path with ".tmp".
func tempPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".tmp"
}

func (c *Controller) writeConfigAtomic(cfg *config.NodeConfig, output string) (err error) {
	fs := c.fs()
	tmp := tempPath(output)

	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		_ = fs.Remove(tmp)
	}()

	if err := cfg.Encode(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, output); err != nil {
		return fmt.Errorf("failed to replace %s: %w", output, err)
	}
	return nil
}
