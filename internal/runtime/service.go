package runtime

import "fmt"

// Service is the business logic behind a deployable artifact.
//
// The runtime calls Initialize once, when an instance is created, and Call for
// every transaction addressed to the instance. Both receive a TransactionContext
// that is only valid until the method returns.
//
// An *ExecutionError returned from either method is passed to the caller as is;
// any other error is wrapped with DispatchErrorCode.
type Service interface {
	// Initialize configures a new instance from its constructor payload.
	Initialize(tx *TransactionContext, params []byte) error

	// Call executes method with the transaction payload.
	Call(method MethodID, tx *TransactionContext, payload []byte) error
}

// MethodFunc handles one method of a MethodTable service.
type MethodFunc func(tx *TransactionContext, payload []byte) error

// MethodTable is a Service built from per-method handlers. Calls to a method
// without a handler fail with a dispatch error.
type MethodTable struct {
	Init    MethodFunc
	Methods map[MethodID]MethodFunc
}

// Initialize runs Init, if set.
func (t *MethodTable) Initialize(tx *TransactionContext, params []byte) error {
	if t.Init == nil {
		return nil
	}
	return t.Init(tx, params)
}

// Call runs the handler registered for method.
func (t *MethodTable) Call(method MethodID, tx *TransactionContext, payload []byte) error {
	handler, ok := t.Methods[method]
	if !ok {
		return &unknownMethodError{method: method}
	}
	return handler(tx, payload)
}

type unknownMethodError struct {
	method MethodID
}

func (e *unknownMethodError) Error() string {
	return fmt.Sprintf("method %d not found", e.method)
}

var _ Service = (*MethodTable)(nil)
