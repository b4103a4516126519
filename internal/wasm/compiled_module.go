package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Guest exports every service module must provide.
const (
	exportMemory     = "memory"
	exportAlloc      = "alloc"
	exportInitialize = "initialize"
	exportCall       = "call"
)

// CompiledModule is a guest service module compiled once. Every call to
// Instantiate returns a fresh, isolated instance.
type CompiledModule interface {
	// Instantiate creates a new module instance with its own linear memory.
	Instantiate(ctx context.Context) (Instance, error)

	// Close releases the compiled code and the underlying wazero runtime.
	Close(ctx context.Context) error
}

// NewCompiledModule compiles guest bytes and checks that the service exports are present.
func NewCompiledModule(ctx context.Context, wasmBytes []byte) (CompiledModule, error) {
	if len(wasmBytes) == 0 {
		return nil, fmt.Errorf("wasm bytes cannot be empty")
	}

	runtime := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	if err := instantiateHostModule(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	if err := checkExports(compiled); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	return &compiledModule{
		runtime:  runtime,
		compiled: compiled,
	}, nil
}

func checkExports(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()[exportMemory]; !ok {
		return fmt.Errorf("%s export not found", exportMemory)
	}
	functions := compiled.ExportedFunctions()
	for _, name := range []string{exportAlloc, exportInitialize, exportCall} {
		if _, ok := functions[name]; !ok {
			return fmt.Errorf("%s function not found", name)
		}
	}
	return nil
}

type compiledModule struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

func (m *compiledModule) Instantiate(ctx context.Context) (Instance, error) {
	// Reactor module: _start is never run. An empty name lets several
	// instances of the same module live side by side during nested calls.
	config := wazero.NewModuleConfig().
		WithStdout(nil).
		WithStderr(nil).
		WithName("").
		WithStartFunctions()

	module, err := m.runtime.InstantiateModule(ctx, m.compiled, config)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	// Call _initialize if it exists
	if initialize := module.ExportedFunction("_initialize"); initialize != nil {
		if _, err := initialize.Call(ctx); err != nil {
			module.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	return &instance{
		module:     module,
		alloc:      module.ExportedFunction(exportAlloc),
		initialize: module.ExportedFunction(exportInitialize),
		call:       module.ExportedFunction(exportCall),
	}, nil
}

func (m *compiledModule) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}
