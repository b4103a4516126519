package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/tkintscher/exonum/internal/runtime"
)

// hostModuleName is the import module guests use for host functions.
const hostModuleName = "exonum"

// storageMissing is returned by storage_get for absent keys.
const storageMissing int32 = -1

var errNoTransaction = errors.New("host function called outside a transaction")

type txContextKey struct{}

func withTransaction(ctx context.Context, tx *runtime.TransactionContext) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// transactionFrom returns the transaction a host function runs under. Host
// functions panic without one; wazero reports the panic as a call error.
func transactionFrom(ctx context.Context) *runtime.TransactionContext {
	tx, ok := ctx.Value(txContextKey{}).(*runtime.TransactionContext)
	if !ok || tx == nil {
		panic(errNoTransaction)
	}
	return tx
}

// forkFrom returns the storage view of the current transaction, trapping the
// guest when the transaction is gone.
func forkFrom(ctx context.Context) runtime.Fork {
	fork, err := transactionFrom(ctx).Fork()
	if err != nil {
		panic(err)
	}
	return fork
}

func instantiateHostModule(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().WithFunc(storageGet).Export("storage_get").
		NewFunctionBuilder().WithFunc(storagePut).Export("storage_put").
		NewFunctionBuilder().WithFunc(storageRemove).Export("storage_remove").
		NewFunctionBuilder().WithFunc(txHash).Export("tx_hash").
		NewFunctionBuilder().WithFunc(author).Export("author").
		NewFunctionBuilder().WithFunc(dispatchCall).Export("dispatch_call").
		Instantiate(ctx)
	return err
}

func readMemory(m api.Module, ptr, length uint32) []byte {
	data, ok := m.Memory().Read(ptr, length)
	if !ok {
		panic(fmt.Errorf("memory read out of range: offset %d, length %d", ptr, length))
	}
	return data
}

func writeMemory(m api.Module, ptr uint32, data []byte) {
	if !m.Memory().Write(ptr, data) {
		panic(fmt.Errorf("memory write out of range: offset %d, length %d", ptr, len(data)))
	}
}

// storageGet copies the value into the guest buffer when it fits and returns
// its length, or -1 when the key is absent.
func storageGet(ctx context.Context, m api.Module, keyPtr, keyLen, valPtr, valCap uint32) int32 {
	value, ok := forkFrom(ctx).Get(readMemory(m, keyPtr, keyLen))
	if !ok {
		return storageMissing
	}
	if uint32(len(value)) <= valCap {
		writeMemory(m, valPtr, value)
	}
	return int32(len(value))
}

func storagePut(ctx context.Context, m api.Module, keyPtr, keyLen, valPtr, valLen uint32) {
	forkFrom(ctx).Put(readMemory(m, keyPtr, keyLen), readMemory(m, valPtr, valLen))
}

func storageRemove(ctx context.Context, m api.Module, keyPtr, keyLen uint32) {
	forkFrom(ctx).Remove(readMemory(m, keyPtr, keyLen))
}

func txHash(ctx context.Context, m api.Module, ptr uint32) {
	hash := transactionFrom(ctx).TxHash()
	writeMemory(m, ptr, hash[:])
}

func author(ctx context.Context, m api.Module, ptr uint32) {
	key := transactionFrom(ctx).Author()
	writeMemory(m, ptr, key[:])
}

// dispatchCall returns 0 on success or the execution error code of the callee.
func dispatchCall(ctx context.Context, m api.Module, instanceID, methodID, ptr, length uint32) int32 {
	tx := transactionFrom(ctx)
	// The callee may outlive this view of guest memory.
	payload := bytes.Clone(readMemory(m, ptr, length))

	err := tx.DispatchCall(runtime.CallInfo{
		InstanceID: runtime.ServiceInstanceID(instanceID),
		MethodID:   runtime.MethodID(methodID),
	}, payload)
	if err == nil {
		return 0
	}

	var execErr *runtime.ExecutionError
	if errors.As(err, &execErr) && execErr.Code != 0 {
		return int32(execErr.Code)
	}
	return int32(runtime.DispatchErrorCode)
}
