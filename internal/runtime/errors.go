package runtime

import (
	"errors"
	"fmt"
)

var (
	// Deployment errors
	ErrWrongArtifact   = errors.New("artifact belongs to a different runtime")
	ErrFailedToDeploy  = errors.New("failed to deploy artifact")
	ErrAlreadyDeployed = errors.New("artifact is already deployed")

	// Initialization errors
	ErrNotDeployed     = errors.New("artifact is not deployed")
	ErrServiceIDExists = errors.New("service instance id is already in use")
	ErrServiceConsumed = errors.New("artifact service is already bound to an instance")

	// Dispatch errors
	ErrServiceNotFound   = errors.New("service instance not found")
	ErrContextReleased   = errors.New("transaction context used after its call returned")
	ErrNilRuntimeContext = errors.New("runtime context cannot be nil")

	// Registration errors
	ErrNilService          = errors.New("service cannot be nil")
	ErrServiceRegistered   = errors.New("artifact already has a registered service")
	ErrInvalidArtifactSpec = errors.New("invalid artifact spec")
)

// DispatchErrorCode marks execution errors produced by the runtime itself
// rather than returned by a service.
const DispatchErrorCode uint8 = 255

// DeployError is returned by StartDeploy and CheckDeployStatus.
type DeployError struct {
	Artifact ArtifactSpec
	Err      error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy %s: %v", e.Artifact, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// InitError is returned by InitService. Err is one of the sentinel errors
// above, or an *ExecutionError raised by the service initializer.
type InitError struct {
	Artifact   ArtifactSpec
	InstanceID ServiceInstanceID
	Err        error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init instance %d of %s: %v", e.InstanceID, e.Artifact, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ExecutionError is a failed service call. Code is chosen by the service, or
// is DispatchErrorCode when the runtime wrapped the failure.
type ExecutionError struct {
	Code        uint8
	Description string

	cause error
}

// NewExecutionError creates an execution error with a service-defined code.
func NewExecutionError(code uint8, description string) *ExecutionError {
	return &ExecutionError{Code: code, Description: description}
}

func (e *ExecutionError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("execution error %d", e.Code)
	}
	return fmt.Sprintf("execution error %d: %s", e.Code, e.Description)
}

func (e *ExecutionError) Unwrap() error {
	return e.cause
}

func dispatchError(cause error) *ExecutionError {
	return &ExecutionError{
		Code:        DispatchErrorCode,
		Description: "Dispatch error: " + cause.Error(),
		cause:       cause,
	}
}

// asExecutionError keeps service-level execution errors as they are and
// wraps anything else with the dispatch code.
func asExecutionError(err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	return dispatchError(err)
}
