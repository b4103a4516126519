package runtime

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the artifact spec message:
//
//	message ArtifactSpec {
//	  uint32 runtime_id = 1;
//	  string name = 2;
//	  string version = 3;
//	}
const (
	artifactFieldRuntime protowire.Number = 1
	artifactFieldName    protowire.Number = 2
	artifactFieldVersion protowire.Number = 3
)

// MarshalBinary encodes the artifact spec in protobuf wire format. Zero-valued fields
// are omitted, as proto3 does.
func (a ArtifactSpec) MarshalBinary() ([]byte, error) {
	var b []byte
	if a.Runtime != 0 {
		b = protowire.AppendTag(b, artifactFieldRuntime, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Runtime))
	}
	if a.Name != "" {
		b = protowire.AppendTag(b, artifactFieldName, protowire.BytesType)
		b = protowire.AppendString(b, a.Name)
	}
	if !a.Version.IsZero() {
		b = protowire.AppendTag(b, artifactFieldVersion, protowire.BytesType)
		b = protowire.AppendString(b, a.Version.String())
	}
	return b, nil
}

// UnmarshalBinary decodes a spec encoded by MarshalBinary. Unknown fields are skipped.
func (a *ArtifactSpec) UnmarshalBinary(data []byte) error {
	var (
		kind    uint64
		name    string
		version string
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidArtifactSpec, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == artifactFieldRuntime && typ == protowire.VarintType:
			kind, n = protowire.ConsumeVarint(data)
		case num == artifactFieldName && typ == protowire.BytesType:
			name, n = protowire.ConsumeString(data)
		case num == artifactFieldVersion && typ == protowire.BytesType:
			version, n = protowire.ConsumeString(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrInvalidArtifactSpec, num, protowire.ParseError(n))
		}
		data = data[n:]
	}

	if kind > uint64(^uint32(0)) {
		return fmt.Errorf("%w: runtime id %d out of range", ErrInvalidArtifactSpec, kind)
	}
	spec, err := NewArtifactSpec(RuntimeKind(kind), name, version)
	if err != nil {
		return err
	}
	*a = spec
	return nil
}
