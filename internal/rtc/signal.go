package rtc

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Negotiation payload types. The JSON shape matches simple-peer so browser
// participants can share a room with terminal ones.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalPayload is the opaque negotiation blob carried in `signal` envelopes.
type SignalPayload struct {
	Type               string                   `json:"type,omitempty"`
	SDP                string                   `json:"sdp,omitempty"`
	Candidate          *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Renegotiate        bool                     `json:"renegotiate,omitempty"`
	TransceiverRequest json.RawMessage          `json:"transceiverRequest,omitempty"`
}

// DecodeSignal parses a negotiation payload.
func DecodeSignal(raw json.RawMessage) (SignalPayload, error) {
	var p SignalPayload
	if len(raw) == 0 {
		return p, ErrMalformedSignal
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, wrapError("decode signal", 0, ErrMalformedSignal, err.Error())
	}
	return p, nil
}

// EncodeDescription renders a complete session description as a payload.
func EncodeDescription(desc *webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(SignalPayload{Type: desc.Type.String(), SDP: desc.SDP})
}

// control reports payloads that carry no SDP or candidate and are skipped.
func (p SignalPayload) control() bool {
	return p.Renegotiate || len(p.TransceiverRequest) > 0
}
