package session

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/Huddle/internal/config"
)

// Structured data-channel payload kinds.
const (
	PayloadHand  = "hand"
	PayloadEmoji = "emoji"
)

// Payload is the structured union sent over data channels. Anything that
// does not decode to a valid Payload is chat text.
type Payload struct {
	Type  string `json:"type" msgpack:"type"`
	Emoji string `json:"emoji,omitempty" msgpack:"emoji,omitempty"`
}

func (p Payload) valid() bool {
	switch p.Type {
	case PayloadHand:
		return true
	case PayloadEmoji:
		return p.Emoji != ""
	default:
		return false
	}
}

// ParsePayload decodes text frames as JSON and binary frames as msgpack.
func ParsePayload(data []byte, isString bool) (Payload, bool) {
	var p Payload
	var err error
	if isString {
		err = json.Unmarshal(data, &p)
	} else {
		err = msgpack.Unmarshal(data, &p)
	}
	if err != nil || !p.valid() {
		return Payload{}, false
	}
	return p, true
}

// EncodePayload renders p in the configured encoding. binary reports whether
// the frame must go out as a binary message.
func EncodePayload(p Payload, encoding string) (data []byte, binary bool, err error) {
	switch encoding {
	case config.PayloadMsgpack:
		data, err = msgpack.Marshal(p)
		return data, true, err
	case config.PayloadJSON, "":
		data, err = json.Marshal(p)
		return data, false, err
	default:
		return nil, false, fmt.Errorf("unknown payload encoding %q", encoding)
	}
}
