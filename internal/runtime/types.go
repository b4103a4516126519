package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/tkintscher/exonum/internal/crypto"
)

// RuntimeKind identifies the runtime an artifact is built for.
type RuntimeKind uint32

const (
	// RuntimeNative runs services compiled into the node binary.
	RuntimeNative RuntimeKind = 0
	// RuntimeWASM runs services shipped as WebAssembly modules.
	RuntimeWASM RuntimeKind = 1
)

func (k RuntimeKind) String() string {
	switch k {
	case RuntimeNative:
		return "native"
	case RuntimeWASM:
		return "wasm"
	default:
		return "runtime-" + strconv.FormatUint(uint64(k), 10)
	}
}

// Version is a semantic version kept in canonical form, so 1.0 and 1.0.0 compare equal.
type Version struct {
	canonical string
}

// ParseVersion parses a semantic version with or without the leading "v".
func ParseVersion(s string) (Version, error) {
	in := s
	if !strings.HasPrefix(in, "v") {
		in = "v" + in
	}
	if !semver.IsValid(in) {
		return Version{}, fmt.Errorf("invalid semantic version %q", s)
	}
	return Version{canonical: semver.Canonical(in)}, nil
}

// MustParseVersion is like ParseVersion but panics on malformed input.
// Intended for constants in service definitions and tests.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version without the "v" prefix, e.g. "1.0.0".
func (v Version) String() string {
	return strings.TrimPrefix(v.canonical, "v")
}

// IsZero reports whether v was never set.
func (v Version) IsZero() bool {
	return v.canonical == ""
}

// Compare returns -1, 0 or +1 following semantic version precedence.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.canonical, other.canonical)
}

// ArtifactSpec identifies a deployable artifact. It is comparable and used
// directly as a map key.
type ArtifactSpec struct {
	Runtime RuntimeKind
	Name    string
	Version Version
}

// NewArtifactSpec builds a spec, validating name and version.
func NewArtifactSpec(kind RuntimeKind, name, version string) (ArtifactSpec, error) {
	if err := validateArtifactName(name); err != nil {
		return ArtifactSpec{}, err
	}
	v, err := ParseVersion(version)
	if err != nil {
		return ArtifactSpec{}, fmt.Errorf("%w: %v", ErrInvalidArtifactSpec, err)
	}
	return ArtifactSpec{Runtime: kind, Name: name, Version: v}, nil
}

// ParseArtifactSpec parses the "runtime:name:version" form, e.g. "0:ledger:1.0.0".
func ParseArtifactSpec(s string) (ArtifactSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ArtifactSpec{}, fmt.Errorf("%w: expected runtime:name:version, got %q", ErrInvalidArtifactSpec, s)
	}
	kind, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return ArtifactSpec{}, fmt.Errorf("%w: bad runtime id %q", ErrInvalidArtifactSpec, parts[0])
	}
	return NewArtifactSpec(RuntimeKind(kind), parts[1], parts[2])
}

// String returns the "runtime:name:version" form.
func (a ArtifactSpec) String() string {
	return fmt.Sprintf("%d:%s:%s", uint32(a.Runtime), a.Name, a.Version)
}

func validateArtifactName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidArtifactSpec)
	}
	if strings.ContainsAny(name, ": \t\n") {
		return fmt.Errorf("%w: name %q contains a separator or whitespace", ErrInvalidArtifactSpec, name)
	}
	return nil
}

// ServiceInstanceID addresses a running service instance.
type ServiceInstanceID uint32

// MethodID selects a method of a service.
type MethodID uint32

// CallInfo is the target of a transaction call.
type CallInfo struct {
	InstanceID ServiceInstanceID
	MethodID   MethodID
}

// InstanceInitData carries the parameters of a new service instance.
type InstanceInitData struct {
	InstanceID      ServiceInstanceID
	ConstructorData []byte
}

// DeployStatus is the outcome of a successful deployment poll.
// Failures are reported through DeployError instead.
type DeployStatus int

const (
	Deployed DeployStatus = iota + 1
)

func (s DeployStatus) String() string {
	if s == Deployed {
		return "deployed"
	}
	return "unknown"
}

// Fork is the mutable storage view a transaction writes through. The runtime
// only borrows it; committing or discarding it is up to the caller.
type Fork interface {
	Get(key []byte) ([]byte, bool)
	Contains(key []byte) bool
	Put(key, value []byte)
	Remove(key []byte)
}

// RuntimeContext is the per-transaction data owned by the embedding node.
// It lives for exactly one transaction.
type RuntimeContext struct {
	Fork   Fork
	TxHash crypto.Hash
	Author crypto.PublicKey
}
