package storage

import (
	"fmt"
	"strings"
)

// CompressionType is the block compression algorithm used by the database engine.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionLz4
	CompressionLz4hc
	CompressionZstd
	CompressionZlib
	CompressionSnappy
	CompressionBz2
)

var compressionNames = map[CompressionType]string{
	CompressionNone:   "none",
	CompressionLz4:    "lz4",
	CompressionLz4hc:  "lz4hc",
	CompressionZstd:   "zstd",
	CompressionZlib:   "zlib",
	CompressionSnappy: "snappy",
	CompressionBz2:    "bz2",
}

func (c CompressionType) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CompressionType(%d)", uint8(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c CompressionType) MarshalText() ([]byte, error) {
	name, ok := compressionNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown compression type %d", uint8(c))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CompressionType) UnmarshalText(text []byte) error {
	parsed, err := ParseCompressionType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCompressionType parses a compression name, ignoring case.
func ParseCompressionType(s string) (CompressionType, error) {
	lower := strings.ToLower(s)
	for c, name := range compressionNames {
		if name == lower {
			return c, nil
		}
	}
	return CompressionNone, fmt.Errorf("unknown compression type: %s", s)
}

// LogVerbosity is the verbosity of the database engine's own info log.
type LogVerbosity uint8

const (
	LogDebug LogVerbosity = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
	LogHeader
)

var verbosityNames = [...]string{
	LogDebug:  "debug",
	LogInfo:   "info",
	LogWarn:   "warn",
	LogError:  "error",
	LogFatal:  "fatal",
	LogHeader: "header",
}

func (v LogVerbosity) String() string {
	if int(v) < len(verbosityNames) {
		return verbosityNames[v]
	}
	return fmt.Sprintf("LogVerbosity(%d)", uint8(v))
}

// MarshalText implements encoding.TextMarshaler.
func (v LogVerbosity) MarshalText() ([]byte, error) {
	if int(v) >= len(verbosityNames) {
		return nil, fmt.Errorf("unknown log verbosity %d", uint8(v))
	}
	return []byte(verbosityNames[v]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *LogVerbosity) UnmarshalText(text []byte) error {
	parsed, err := ParseLogVerbosity(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseLogVerbosity parses a log level name, ignoring case.
func ParseLogVerbosity(s string) (LogVerbosity, error) {
	lower := strings.ToLower(s)
	for i, name := range verbosityNames {
		if name == lower {
			return LogVerbosity(i), nil
		}
	}
	return LogInfo, fmt.Errorf("unknown log level: %s", s)
}

// DbOptions are the tuning knobs handed to the database engine.
// Nil pointers leave the choice to the engine.
type DbOptions struct {
	// Number of files the engine may keep open. Nil means unlimited.
	MaxOpenFiles *int32 `toml:"max_open_files,omitempty"`

	// Create the database on start-up when it is missing.
	CreateIfMissing bool `toml:"create_if_missing"`

	CompressionType CompressionType `toml:"compression_type"`

	// Max total size of the write-ahead log in bytes.
	MaxTotalWalSize *uint64 `toml:"max_total_wal_size,omitempty"`

	// Verbosity of the engine log. Nil means info.
	LogVerbosity *LogVerbosity `toml:"log_verbosity,omitempty"`

	// Size at which the engine log file is rotated. Nil or 0 keeps a single file.
	MaxLogFileSize *uint64 `toml:"max_log_file_size,omitempty"`

	// Number of rotated log files to keep.
	KeepLogFileNum *uint64 `toml:"keep_log_file_num,omitempty"`

	// Non-zero lets the engine reuse old log files.
	RecycleLogFileNum *uint64 `toml:"recycle_log_file_num,omitempty"`
}

// DefaultDbOptions returns options with every knob left at its default.
func DefaultDbOptions() DbOptions {
	return DbOptions{
		CreateIfMissing: true,
		CompressionType: CompressionNone,
	}
}

// EffectiveLogVerbosity resolves a nil LogVerbosity to LogInfo.
func (o DbOptions) EffectiveLogVerbosity() LogVerbosity {
	if o.LogVerbosity == nil {
		return LogInfo
	}
	return *o.LogVerbosity
}
