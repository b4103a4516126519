package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Instance is a single instantiated guest module. It is used for one service
// call and then closed.
type Instance interface {
	// Initialize runs the guest constructor with params and returns its status code.
	Initialize(ctx context.Context, params []byte) (uint32, error)

	// Call runs a guest method with payload and returns its status code.
	Call(ctx context.Context, method uint32, payload []byte) (uint32, error)

	Close(ctx context.Context) error
}

type instance struct {
	module     api.Module
	alloc      api.Function
	initialize api.Function
	call       api.Function
}

func (i *instance) Initialize(ctx context.Context, params []byte) (uint32, error) {
	ptr, err := i.write(ctx, params)
	if err != nil {
		return 0, err
	}

	result, err := i.initialize.Call(ctx, uint64(ptr), uint64(len(params)))
	if err != nil {
		return 0, fmt.Errorf("failed to call %s: %w", exportInitialize, err)
	}
	return uint32(result[0]), nil
}

func (i *instance) Call(ctx context.Context, method uint32, payload []byte) (uint32, error) {
	ptr, err := i.write(ctx, payload)
	if err != nil {
		return 0, err
	}

	result, err := i.call.Call(ctx, uint64(method), uint64(ptr), uint64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("failed to call %s: %w", exportCall, err)
	}
	return uint32(result[0]), nil
}

// write copies data into guest memory allocated by the guest's alloc export.
func (i *instance) write(ctx context.Context, data []byte) (uint32, error) {
	result, err := i.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %d bytes: %w", len(data), err)
	}
	ptr := uint32(result[0])

	if !i.module.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("failed to write %d bytes at offset %d", len(data), ptr)
	}
	return ptr, nil
}

func (i *instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}
