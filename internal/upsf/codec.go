package upsf

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered as a gRPC content-subtype. The real UPSF
// service described by spec.md is a protobuf-over-gRPC data-model
// service, but its wire encoding is explicitly out of scope here
// (spec.md §1, "Endpoint and item wire encodings beyond the structural
// fields referenced in §3"); this codec lets the gateway speak a real
// gRPC transport — dialing, unary Invoke, server-streaming Watch — over
// plain JSON-tagged Go structs instead of requiring a protoc toolchain.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("upsf: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("upsf: unmarshal into %T: %w", v, err)
	}
	return nil
}
