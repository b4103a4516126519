package wasm

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkintscher/exonum/internal/crypto"
	"github.com/tkintscher/exonum/internal/runtime"
	"github.com/tkintscher/exonum/internal/storage"
)

// Test Plan:
// 1. Guest status codes become execution errors with the same code
// 2. Storage host functions read and write the transaction fork
// 3. Transaction metadata is visible to guests
// 4. Guests dispatch calls to other instances through the runtime
// 5. Traps are reported as dispatch errors
// 6. A failed guest initializer can be retried

var testLogger = zerolog.New(os.Stderr).Level(zerolog.ErrorLevel)

type guestFixture struct {
	rt   *runtime.Runtime
	rc   *runtime.RuntimeContext
	fork *storage.Fork
}

// startGuests deploys each guest as its own artifact and binds it to the
// instance id given by its position, starting at 1.
func startGuests(t *testing.T, guests ...guest) *guestFixture {
	t.Helper()
	ctx := context.Background()

	fork := storage.NewDatabase(storage.DefaultDbOptions()).Fork()
	f := &guestFixture{
		rt: runtime.New(runtime.RuntimeWASM, testLogger),
		rc: &runtime.RuntimeContext{
			Fork:   fork,
			TxHash: crypto.HashOf([]byte("tx")),
			Author: crypto.PublicKey{9, 8, 7},
		},
		fork: fork,
	}

	for i, g := range guests {
		module, err := NewCompiledModule(ctx, g.build())
		require.NoError(t, err)
		service := NewService(module, testLogger)
		t.Cleanup(func() { service.Close(ctx) })

		artifact, err := runtime.NewArtifactSpec(runtime.RuntimeWASM, "guest"+string(rune('a'+i)), "1.0.0")
		require.NoError(t, err)
		require.NoError(t, f.rt.AddService(artifact, service))
		require.NoError(t, f.rt.StartDeploy(artifact))
		require.NoError(t, f.rt.InitService(ctx, f.rc, artifact, runtime.InstanceInitData{
			InstanceID: runtime.ServiceInstanceID(i + 1),
		}))
	}
	return f
}

func (f *guestFixture) execute(instance, method uint32, payload string) error {
	return f.rt.Execute(context.Background(), f.rc, runtime.CallInfo{
		InstanceID: runtime.ServiceInstanceID(instance),
		MethodID:   runtime.MethodID(method),
	}, []byte(payload))
}

func requireExecutionError(t *testing.T, err error) *runtime.ExecutionError {
	t.Helper()
	var execErr *runtime.ExecutionError
	require.ErrorAs(t, err, &execErr)
	return execErr
}

func TestService_StoragePut(t *testing.T) {
	f := startGuests(t, writerGuest)

	// Test: Status 0 succeeds and writes through the fork
	require.NoError(t, f.execute(1, 0, "key"))
	value, ok := f.fork.Get([]byte("key"))
	require.True(t, ok)
	assert.Equal(t, []byte("key"), value)

	// Test: Non-zero status becomes an execution error with the same code
	err := f.execute(1, 3, "other")
	execErr := requireExecutionError(t, err)
	assert.Equal(t, uint8(3), execErr.Code)
	assert.Equal(t, "guest returned status 3", execErr.Description)

	// Test: Oversized status is reported with the dispatch code
	err = f.execute(1, 300, "big")
	execErr = requireExecutionError(t, err)
	assert.Equal(t, runtime.DispatchErrorCode, execErr.Code)
}

func TestService_StorageGet(t *testing.T) {
	f := startGuests(t, readerGuest)
	f.fork.Put([]byte("a"), []byte("b"))

	// Test: Present key
	require.NoError(t, f.execute(1, 0, "a"))
	value, ok := f.fork.Get([]byte("b"))
	require.True(t, ok)
	assert.Equal(t, []byte("a"), value)

	// Test: Missing key
	execErr := requireExecutionError(t, f.execute(1, 0, "missing"))
	assert.Equal(t, uint8(1), execErr.Code)
}

func TestService_StorageRemove(t *testing.T) {
	f := startGuests(t, eraserGuest)
	f.fork.Put([]byte("gone"), []byte("soon"))

	require.NoError(t, f.execute(1, 0, "gone"))
	assert.False(t, f.fork.Contains([]byte("gone")))
}

func TestService_TransactionMetadata(t *testing.T) {
	f := startGuests(t, metaGuest)

	require.NoError(t, f.execute(1, 0, ""))

	hash := f.rc.TxHash
	value, ok := f.fork.Get(hash[:])
	require.True(t, ok)
	assert.Equal(t, f.rc.Author[:], value)
}

func TestService_DispatchCall(t *testing.T) {
	// Instance 1 is the writer, instance 2 relays to the instance named by the method id.
	f := startGuests(t, writerGuest, relayGuest)

	// Test: Nested call writes to the shared fork
	require.NoError(t, f.execute(2, 1, "relayed"))
	value, ok := f.fork.Get([]byte("relayed"))
	require.True(t, ok)
	assert.Equal(t, []byte("relayed"), value)

	// Test: Callee failure surfaces as the relay's status
	execErr := requireExecutionError(t, f.execute(2, 99, "nowhere"))
	assert.Equal(t, runtime.DispatchErrorCode, execErr.Code)
	assert.Equal(t, "guest returned status 255", execErr.Description)
}

func TestService_Trap(t *testing.T) {
	f := startGuests(t, trapGuest)

	execErr := requireExecutionError(t, f.execute(1, 0, ""))
	assert.Equal(t, runtime.DispatchErrorCode, execErr.Code)
	assert.Contains(t, execErr.Description, "Dispatch error:")
}

func TestService_InitializeRetry(t *testing.T) {
	ctx := context.Background()
	rt := runtime.New(runtime.RuntimeWASM, testLogger)
	rc := &runtime.RuntimeContext{Fork: storage.NewDatabase(storage.DefaultDbOptions()).Fork()}

	module, err := NewCompiledModule(ctx, writerGuest.build())
	require.NoError(t, err)
	service := NewService(module, testLogger)
	defer service.Close(ctx)

	artifact, err := runtime.NewArtifactSpec(runtime.RuntimeWASM, "writer", "1.0.0")
	require.NoError(t, err)
	require.NoError(t, rt.AddService(artifact, service))
	require.NoError(t, rt.StartDeploy(artifact))

	// Test: Rejected constructor data
	err = rt.InitService(ctx, rc, artifact, runtime.InstanceInitData{InstanceID: 5, ConstructorData: []byte("x")})
	var initErr *runtime.InitError
	require.ErrorAs(t, err, &initErr)
	execErr := requireExecutionError(t, err)
	assert.Equal(t, uint8(7), execErr.Code)
	assert.Empty(t, rt.Instances())

	// Test: Retry succeeds
	require.NoError(t, rt.InitService(ctx, rc, artifact, runtime.InstanceInitData{InstanceID: 5}))
	assert.Equal(t, []runtime.InstanceInfo{{ID: 5, Artifact: artifact}}, rt.Instances())
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, uint8(0), statusCode(0))
	assert.Equal(t, uint8(254), statusCode(254))
	assert.Equal(t, uint8(255), statusCode(255))
	assert.Equal(t, runtime.DispatchErrorCode, statusCode(256))
}
