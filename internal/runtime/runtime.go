package runtime

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// Environment deploys artifacts, creates service instances and dispatches
// transaction calls to them. It is what the embedding node calls into.
type Environment interface {
	// StartDeploy marks a registered artifact as deployed
	StartDeploy(artifact ArtifactSpec) error

	// CheckDeployStatus reports whether the artifact has been deployed
	CheckDeployStatus(artifact ArtifactSpec) (DeployStatus, error)

	// InitService creates a service instance from a deployed artifact
	InitService(ctx context.Context, rc *RuntimeContext, artifact ArtifactSpec, init InstanceInitData) error

	// Execute dispatches a call to a running instance
	Execute(ctx context.Context, rc *RuntimeContext, call CallInfo, payload []byte) error
}

// InstanceInfo describes a running service instance.
type InstanceInfo struct {
	ID       ServiceInstanceID
	Artifact ArtifactSpec
}

// Runtime is the Environment for one runtime kind. Services are registered
// with AddService at start-up, then move through
// registered -> deployed -> bound to an instance.
type Runtime struct {
	kind RuntimeKind

	// artifacts holds every registered artifact; the service value is moved
	// out when an instance is bound to it.
	artifacts map[ArtifactSpec]*artifactEntry

	// reserved holds instance ids whose initializer is still running.
	reserved map[ServiceInstanceID]struct{}

	instances map[ServiceInstanceID]*serviceInstance
	mu        sync.RWMutex

	logger zerolog.Logger
}

type artifactEntry struct {
	service  Service
	deployed bool
}

type serviceInstance struct {
	artifact ArtifactSpec
	service  Service
}

// New creates a runtime that accepts artifacts of the given kind.
func New(kind RuntimeKind, logger zerolog.Logger) *Runtime {
	return &Runtime{
		kind:      kind,
		artifacts: make(map[ArtifactSpec]*artifactEntry),
		reserved:  make(map[ServiceInstanceID]struct{}),
		instances: make(map[ServiceInstanceID]*serviceInstance),
		logger: logger.With().
			Str("component", "runtime").
			Stringer("runtime", kind).
			Logger(),
	}
}

// Kind returns the runtime kind this runtime accepts.
func (r *Runtime) Kind() RuntimeKind {
	return r.kind
}

// ServiceRegistration pairs an artifact with the service implementing it.
type ServiceRegistration struct {
	Artifact ArtifactSpec
	Service  Service
}

// AddService registers the service implementing an artifact.
func (r *Runtime) AddService(artifact ArtifactSpec, service Service) error {
	return r.AddServices(ServiceRegistration{Artifact: artifact, Service: service})
}

// AddServices registers a batch of services. Either every registration
// succeeds or none is applied.
func (r *Runtime) AddServices(regs ...ServiceRegistration) error {
	batch := make(map[ArtifactSpec]struct{}, len(regs))
	for _, reg := range regs {
		if reg.Artifact.Runtime != r.kind {
			return fmt.Errorf("register %s: %w", reg.Artifact, ErrWrongArtifact)
		}
		if reg.Service == nil {
			return fmt.Errorf("register %s: %w", reg.Artifact, ErrNilService)
		}
		if _, dup := batch[reg.Artifact]; dup {
			return fmt.Errorf("register %s: %w", reg.Artifact, ErrServiceRegistered)
		}
		batch[reg.Artifact] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range regs {
		if _, exists := r.artifacts[reg.Artifact]; exists {
			return fmt.Errorf("register %s: %w", reg.Artifact, ErrServiceRegistered)
		}
	}
	for _, reg := range regs {
		r.artifacts[reg.Artifact] = &artifactEntry{service: reg.Service}
		r.logger.Debug().Stringer("artifact", reg.Artifact).Msg("service registered")
	}
	return nil
}

// StartDeploy marks a registered artifact as deployed. Only the first call
// for an artifact succeeds.
func (r *Runtime) StartDeploy(artifact ArtifactSpec) error {
	if artifact.Runtime != r.kind {
		return &DeployError{Artifact: artifact, Err: ErrWrongArtifact}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.artifacts[artifact]
	if !ok {
		return &DeployError{Artifact: artifact, Err: ErrFailedToDeploy}
	}
	if entry.deployed {
		return &DeployError{Artifact: artifact, Err: ErrAlreadyDeployed}
	}
	entry.deployed = true

	r.logger.Info().Stringer("artifact", artifact).Msg("artifact deployed")
	return nil
}

// CheckDeployStatus returns Deployed once StartDeploy has succeeded for the artifact.
func (r *Runtime) CheckDeployStatus(artifact ArtifactSpec) (DeployStatus, error) {
	if artifact.Runtime != r.kind {
		return 0, &DeployError{Artifact: artifact, Err: ErrWrongArtifact}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.artifacts[artifact]; ok && entry.deployed {
		return Deployed, nil
	}
	return 0, &DeployError{Artifact: artifact, Err: ErrFailedToDeploy}
}

// InitService binds the artifact's service to init.InstanceID and runs its
// initializer with a fresh TransactionContext over rc.
//
// The instance id is reserved while the initializer runs and the instance
// becomes reachable only after it succeeds. On failure the service value is
// returned to the artifact, so initialization can be retried.
func (r *Runtime) InitService(ctx context.Context, rc *RuntimeContext, artifact ArtifactSpec, init InstanceInitData) error {
	id := init.InstanceID
	if artifact.Runtime != r.kind {
		return &InitError{Artifact: artifact, InstanceID: id, Err: ErrWrongArtifact}
	}

	if rc == nil {
		return &InitError{Artifact: artifact, InstanceID: id, Err: ErrNilRuntimeContext}
	}

	r.mu.Lock()
	entry, ok := r.artifacts[artifact]
	if !ok || !entry.deployed {
		r.mu.Unlock()
		return &InitError{Artifact: artifact, InstanceID: id, Err: ErrNotDeployed}
	}
	if r.idTaken(id) {
		r.mu.Unlock()
		return &InitError{Artifact: artifact, InstanceID: id, Err: ErrServiceIDExists}
	}
	if entry.service == nil {
		r.mu.Unlock()
		return &InitError{Artifact: artifact, InstanceID: id, Err: ErrServiceConsumed}
	}
	service := entry.service
	entry.service = nil
	r.reserved[id] = struct{}{}
	r.mu.Unlock()

	// The lock is not held here: the initializer may dispatch calls to other
	// instances, which takes the read lock.
	tx := newTransactionContext(ctx, rc, r, id)
	err := r.invoke(func() error { return service.Initialize(tx, init.ConstructorData) })
	tx.release()

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.reserved, id)
	if err != nil {
		entry.service = service
		r.logger.Warn().
			Err(err).
			Stringer("artifact", artifact).
			Uint32("instance_id", uint32(id)).
			Msg("service initialization failed")
		return &InitError{Artifact: artifact, InstanceID: id, Err: asExecutionError(err)}
	}

	r.instances[id] = &serviceInstance{artifact: artifact, service: service}
	r.logger.Info().
		Stringer("artifact", artifact).
		Uint32("instance_id", uint32(id)).
		Msg("service instance started")
	return nil
}

// Execute dispatches call to its instance with a fresh TransactionContext
// over rc. Every failure is returned as an *ExecutionError.
func (r *Runtime) Execute(ctx context.Context, rc *RuntimeContext, call CallInfo, payload []byte) error {
	if rc == nil {
		return dispatchError(ErrNilRuntimeContext)
	}

	r.mu.RLock()
	instance, ok := r.instances[call.InstanceID]
	r.mu.RUnlock()

	if !ok {
		return dispatchError(fmt.Errorf("%w: %d", ErrServiceNotFound, call.InstanceID))
	}

	tx := newTransactionContext(ctx, rc, r, call.InstanceID)
	defer tx.release()

	err := r.invoke(func() error { return instance.service.Call(call.MethodID, tx, payload) })
	if err == nil {
		return nil
	}

	execErr := asExecutionError(err)
	r.logger.Debug().
		Err(execErr).
		Uint32("instance_id", uint32(call.InstanceID)).
		Uint32("method_id", uint32(call.MethodID)).
		Stringer("tx_hash", rc.TxHash).
		Msg("service call failed")
	return execErr
}

// DeployedArtifacts returns the deployed artifacts ordered by their string form.
func (r *Runtime) DeployedArtifacts() []ArtifactSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deployed := make([]ArtifactSpec, 0, len(r.artifacts))
	for artifact, entry := range r.artifacts {
		if entry.deployed {
			deployed = append(deployed, artifact)
		}
	}
	slices.SortFunc(deployed, func(a, b ArtifactSpec) int {
		return cmp.Compare(a.String(), b.String())
	})
	return deployed
}

// Instances returns the running instances ordered by id.
func (r *Runtime) Instances() []InstanceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]InstanceInfo, 0, len(r.instances))
	for id, instance := range r.instances {
		infos = append(infos, InstanceInfo{ID: id, Artifact: instance.artifact})
	}
	slices.SortFunc(infos, func(a, b InstanceInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// idTaken must be called with r.mu held.
func (r *Runtime) idTaken(id ServiceInstanceID) bool {
	if _, ok := r.instances[id]; ok {
		return true
	}
	_, ok := r.reserved[id]
	return ok
}

// invoke runs service code, turning a panic into an error so it cannot
// unwind through the runtime.
func (r *Runtime) invoke(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("service panicked")
			err = fmt.Errorf("service panicked: %v", p)
		}
	}()
	return fn()
}

// Ensure Runtime implements Environment interface
var _ Environment = (*Runtime)(nil)
