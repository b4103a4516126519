package wasm

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tkintscher/exonum/internal/runtime"
)

// Service runs a compiled guest module as a runtime.Service. Every
// Initialize and Call gets a fresh instance, so no guest state survives
// between calls; persistent state lives in the transaction's fork.
type Service struct {
	module CompiledModule
	logger zerolog.Logger
}

// NewService wraps module as a service.
func NewService(module CompiledModule, logger zerolog.Logger) *Service {
	return &Service{
		module: module,
		logger: logger.With().Str("component", "wasm-service").Logger(),
	}
}

func (s *Service) Initialize(tx *runtime.TransactionContext, params []byte) error {
	return s.run(tx, func(ctx context.Context, inst Instance) (uint32, error) {
		return inst.Initialize(ctx, params)
	})
}

func (s *Service) Call(method runtime.MethodID, tx *runtime.TransactionContext, payload []byte) error {
	return s.run(tx, func(ctx context.Context, inst Instance) (uint32, error) {
		return inst.Call(ctx, uint32(method), payload)
	})
}

func (s *Service) run(tx *runtime.TransactionContext, fn func(context.Context, Instance) (uint32, error)) error {
	ctx := tx.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = withTransaction(ctx, tx)

	inst, err := s.module.Instantiate(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := inst.Close(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close module instance")
		}
	}()

	code, err := fn(ctx, inst)
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	return runtime.NewExecutionError(statusCode(code), fmt.Sprintf("guest returned status %d", code))
}

// statusCode narrows a guest status to an execution error code. Statuses that
// do not fit are reported with the dispatch code.
func statusCode(code uint32) uint8 {
	if code > math.MaxUint8 {
		return runtime.DispatchErrorCode
	}
	return uint8(code)
}

// Close releases the compiled module.
func (s *Service) Close(ctx context.Context) error {
	return s.module.Close(ctx)
}

// Ensure Service implements runtime.Service interface
var _ runtime.Service = (*Service)(nil)
