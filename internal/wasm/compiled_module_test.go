package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiledModule(t *testing.T) {
	// Test plan:
	// - Compile a guest module
	// - Instantiate multiple instances
	// - Verify instances are independent

	ctx := context.Background()

	// Test: Create compiled module
	module, err := NewCompiledModule(ctx, writerGuest.build())
	require.NoError(t, err, "failed to create compiled module")
	require.NotNil(t, module, "module should not be nil")
	defer module.Close(ctx)

	// Test: Instantiate first instance
	inst1, err := module.Instantiate(ctx)
	require.NoError(t, err, "failed to instantiate first instance")
	defer inst1.Close(ctx)

	// Test: Instantiate second instance
	inst2, err := module.Instantiate(ctx)
	require.NoError(t, err, "failed to instantiate second instance")
	defer inst2.Close(ctx)

	// Test: Verify instances are independent
	assert.NotSame(t, inst1, inst2, "instances should be different")
}

func TestCompiledModule_InvalidWASM(t *testing.T) {
	// Test plan:
	// - Try to create module with empty bytes
	// - Try to create module with invalid WASM
	// - Try to create modules missing a required export

	ctx := context.Background()

	// Test: Empty bytes
	module, err := NewCompiledModule(ctx, []byte{})
	assert.Error(t, err, "should error on empty bytes")
	assert.Nil(t, module, "module should be nil on error")

	// Test: Invalid WASM
	module, err = NewCompiledModule(ctx, []byte("not wasm"))
	assert.Error(t, err, "should error on invalid WASM")
	assert.Nil(t, module, "module should be nil on error")

	// Test: Missing exports
	for _, export := range []string{exportMemory, exportAlloc, exportInitialize, exportCall} {
		g := writerGuest
		g.skipExport = export

		module, err = NewCompiledModule(ctx, g.build())
		assert.ErrorContains(t, err, export, "should report missing %s", export)
		assert.Nil(t, module)
	}
}

func TestInstance_Initialize(t *testing.T) {
	// Test plan:
	// - The writer guest accepts empty params and rejects others with status 7
	// - Each instance starts from a clean memory

	ctx := context.Background()
	module, err := NewCompiledModule(ctx, writerGuest.build())
	require.NoError(t, err)
	defer module.Close(ctx)

	inst, err := module.Instantiate(ctx)
	require.NoError(t, err)
	defer inst.Close(ctx)

	// Test: Empty params
	code, err := inst.Initialize(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), code)

	// Test: Non-empty params
	code, err = inst.Initialize(ctx, []byte("params"))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), code)
}

func TestInstance_HostCallOutsideTransaction(t *testing.T) {
	// Test plan:
	// - A host function called without a transaction in the context fails the call

	ctx := context.Background()
	module, err := NewCompiledModule(ctx, writerGuest.build())
	require.NoError(t, err)
	defer module.Close(ctx)

	inst, err := module.Instantiate(ctx)
	require.NoError(t, err)
	defer inst.Close(ctx)

	_, err = inst.Call(ctx, 0, []byte("key"))
	assert.ErrorContains(t, err, errNoTransaction.Error())
}
