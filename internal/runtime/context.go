package runtime

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tkintscher/exonum/internal/crypto"
)

// TransactionContext is the scoped handle a service receives for one call.
// It exposes the transaction's storage view and metadata and lets the service
// call other services within the same transaction.
//
// A TransactionContext is released when the call that created it returns and
// must not be retained past that point.
type TransactionContext struct {
	ctx        context.Context
	env        *RuntimeContext
	runtime    *Runtime
	instanceID ServiceInstanceID
	released   atomic.Bool
}

func newTransactionContext(ctx context.Context, env *RuntimeContext, runtime *Runtime, instanceID ServiceInstanceID) *TransactionContext {
	return &TransactionContext{
		ctx:        ctx,
		env:        env,
		runtime:    runtime,
		instanceID: instanceID,
	}
}

// Context returns the context.Context of the enclosing call.
func (tx *TransactionContext) Context() context.Context {
	return tx.ctx
}

// Fork returns the transaction's storage view. Nested calls share the same view.
// It fails with ErrContextReleased once the enclosing call has returned.
func (tx *TransactionContext) Fork() (Fork, error) {
	if tx.released.Load() {
		return nil, ErrContextReleased
	}
	return tx.env.Fork, nil
}

// TxHash returns the hash of the transaction being executed.
func (tx *TransactionContext) TxHash() crypto.Hash {
	return tx.env.TxHash
}

// Author returns the public key of the transaction author.
func (tx *TransactionContext) Author() crypto.PublicKey {
	return tx.env.Author
}

// InstanceID returns the id of the instance this context was created for.
func (tx *TransactionContext) InstanceID() ServiceInstanceID {
	return tx.instanceID
}

// Logger returns the runtime logger annotated with the transaction and instance.
func (tx *TransactionContext) Logger() zerolog.Logger {
	return tx.runtime.logger.With().
		Stringer("tx_hash", tx.env.TxHash).
		Uint32("instance_id", uint32(tx.instanceID)).
		Logger()
}

// DispatchCall synchronously calls another service method within the same
// transaction and storage view.
func (tx *TransactionContext) DispatchCall(call CallInfo, payload []byte) error {
	if tx.released.Load() {
		return ErrContextReleased
	}
	return tx.runtime.Execute(tx.ctx, tx.env, call, payload)
}

func (tx *TransactionContext) release() {
	tx.released.Store(true)
}
