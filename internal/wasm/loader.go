package wasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tkintscher/exonum/internal/runtime"
)

const artifactExt = ".wasm"

// Artifacts holds the modules registered by LoadArtifacts.
type Artifacts struct {
	// Specs lists the registered artifacts in directory order.
	Specs []runtime.ArtifactSpec

	services []*Service
}

// Close releases every loaded module.
func (a *Artifacts) Close(ctx context.Context) error {
	var errs []error
	for _, s := range a.services {
		errs = append(errs, s.Close(ctx))
	}
	return errors.Join(errs...)
}

// ParseArtifactFileName splits "<name>@<version>.wasm" into a WASM artifact spec.
func ParseArtifactFileName(fileName string) (runtime.ArtifactSpec, error) {
	base, ok := strings.CutSuffix(fileName, artifactExt)
	if !ok {
		return runtime.ArtifactSpec{}, fmt.Errorf("%w: %q does not end in %s", runtime.ErrInvalidArtifactSpec, fileName, artifactExt)
	}
	name, version, ok := strings.Cut(base, "@")
	if !ok {
		return runtime.ArtifactSpec{}, fmt.Errorf("%w: %q is not name@version%s", runtime.ErrInvalidArtifactSpec, fileName, artifactExt)
	}
	return runtime.NewArtifactSpec(runtime.RuntimeWASM, name, version)
}

// LoadArtifacts compiles every "<name>@<version>.wasm" file in dir and
// registers it with rt. Other files are ignored. Nothing is registered
// unless every module compiles and every artifact can be registered.
func LoadArtifacts(ctx context.Context, rt *runtime.Runtime, dir string, logger zerolog.Logger) (*Artifacts, error) {
	log := logger.With().Str("component", "wasm-loader").Str("dir", dir).Logger()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read artifacts dir: %w", err)
	}

	loaded := &Artifacts{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != artifactExt {
			continue
		}

		spec, err := ParseArtifactFileName(entry.Name())
		if err != nil {
			loaded.Close(ctx)
			return nil, err
		}

		wasmBytes, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			loaded.Close(ctx)
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		module, err := NewCompiledModule(ctx, wasmBytes)
		if err != nil {
			loaded.Close(ctx)
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}

		loaded.Specs = append(loaded.Specs, spec)
		loaded.services = append(loaded.services, NewService(module, logger))
	}

	regs := make([]runtime.ServiceRegistration, len(loaded.Specs))
	for i, spec := range loaded.Specs {
		regs[i] = runtime.ServiceRegistration{Artifact: spec, Service: loaded.services[i]}
	}
	if err := rt.AddServices(regs...); err != nil {
		loaded.Close(ctx)
		return nil, err
	}
	for _, spec := range loaded.Specs {
		log.Info().Stringer("artifact", spec).Msg("artifact loaded")
	}

	return loaded, nil
}
