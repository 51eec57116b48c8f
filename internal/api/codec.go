package ndapi

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// codecName replaces connect's protobuf-JSON codec, so requests use the
// standard "application/json" and "application/connect+json" content
// types.
const codecName = "json"

// jsonCodec marshals the plain message structs with encoding/json.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

// Codec returns the JSON codec both ends of the admin API install.
func Codec() connect.Codec {
	return jsonCodec{}
}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return b, nil
}

// Unmarshal treats an empty body as an empty message.
func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
