package crdt

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	gorilla "github.com/gorilla/websocket"
)

// Codec encodes protocol messages. Its Name doubles as the websocket
// subprotocol.
type Codec interface {
	Name() string
	MessageType() int
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// CodecFor returns the codec for an encoding name
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "cbor":
		return CBORCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown crdt encoding %q", name)
	}
}

// CBORCodec sends binary CBOR frames
type CBORCodec struct{}

func (CBORCodec) Name() string     { return "cbor" }
func (CBORCodec) MessageType() int { return gorilla.BinaryMessage }

func (CBORCodec) Marshal(v interface{}) ([]byte, error) { return cbor.Marshal(v) }

func (CBORCodec) Unmarshal(data []byte, v interface{}) error { return cbor.Unmarshal(data, v) }

// JSONCodec sends text JSON frames
type JSONCodec struct{}

func (JSONCodec) Name() string     { return "json" }
func (JSONCodec) MessageType() int { return gorilla.TextMessage }

func (JSONCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
