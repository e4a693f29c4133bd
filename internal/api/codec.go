// Package api is the wire contract of the AuthKeeper service: request and
// response messages, the gRPC service descriptor and a typed client. Messages
// travel as JSON using a gRPC codec registered under the "json" subtype.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype (application/grpc+json).
const CodecName = "json"

// jsonCodec rejects unknown fields so that a payload naming a field the
// operation does not accept (a password on a profile update, say) fails
// instead of being silently dropped.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
