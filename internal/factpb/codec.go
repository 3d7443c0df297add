package factpb

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// marshaler and unmarshaler are satisfied by every message type in this
// package. Naming them after the equivalent gogo/protobuf interfaces is
// deliberate: grpc-go's own default codec special-cases exactly this
// shape before falling back to full protobuf reflection, and there is no
// reflection implementation here to fall back to.
type marshaler interface {
	Marshal() ([]byte, error)
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

// codecName is registered as the content-subtype for every client and
// server in this package (see service.go), so grpc-go never attempts to
// select its default proto codec, which requires full protoreflect
// support these hand-maintained types do not implement.
const codecName = "factpb"

type codec struct{}

func (codec) Name() string { return codecName }

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(marshaler)
	if !ok {
		return nil, fmt.Errorf("factpb: codec: %T does not implement Marshal", v)
	}
	return m.Marshal()
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(unmarshaler)
	if !ok {
		return fmt.Errorf("factpb: codec: %T does not implement Unmarshal", v)
	}
	return m.Unmarshal(data)
}

func init() {
	encoding.RegisterCodec(codec{})
}
