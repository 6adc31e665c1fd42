package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements encoding.Codec for the control plane's gRPC
// services. The usual generated Protobuf stubs require running protoc,
// which this module's build never does; grpc-go's codec is a public
// extension point precisely for payloads that aren't Protobuf messages,
// so the request/response types below are plain structs marshaled with
// encoding/json instead of a generated .pb.go pair. The transport,
// service discovery, and streaming semantics are still real gRPC.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "json" }

// Codec exposes the control plane's wire codec for callers (tests, custom
// transports) that need to force it explicitly alongside NewServer/Dial.
func Codec() encoding.Codec { return jsonCodec{} }
