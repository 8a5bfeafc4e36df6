package wire

import "encoding/json"

// Codec defines the serialization contract for protocol frames.
type Codec interface {
	// Encode serializes a frame to bytes.
	Encode(frame *Frame) ([]byte, error)

	// Decode deserializes bytes into a frame.
	Decode(data []byte) (*Frame, error)

	// Name returns the codec identifier ("json", "msgpack").
	Name() string
}

// CodecName constants for format negotiation.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to msgpack, the compact
// format used between coordinator and workers.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameJSON:
		return &JSONCodec{}
	case CodecNameMsgpack, "":
		return &MsgpackCodec{}
	default:
		return &MsgpackCodec{}
	}
}

// JSONCodec encodes/decodes frames as JSON. Mainly useful for debugging
// a worker daemon with a text protocol.
type JSONCodec struct{}

func (c *JSONCodec) Encode(frame *Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func (c *JSONCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }
