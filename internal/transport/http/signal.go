package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/vovakirdan/plaza-server/internal/core"
)

var errEmptySignal = errors.New("payload is required")

// validateSignal checks that a relayed payload is a well-formed session
// description of the matching type or an ICE candidate.
func validateSignal(kind core.SignalKind, payload json.RawMessage) error {
	if len(payload) == 0 || string(payload) == "null" {
		return errEmptySignal
	}

	switch kind {
	case core.SignalOffer, core.SignalAnswer:
		want := webrtc.SDPTypeOffer
		if kind == core.SignalAnswer {
			want = webrtc.SDPTypeAnswer
		}
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(payload, &sd); err != nil {
			return fmt.Errorf("decode session description: %w", err)
		}
		if sd.Type != want {
			return fmt.Errorf("expected %s description, got %s", want, sd.Type)
		}
		if _, err := sd.Unmarshal(); err != nil {
			return fmt.Errorf("parse sdp: %w", err)
		}
	case core.SignalICECandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &cand); err != nil {
			return fmt.Errorf("decode ice candidate: %w", err)
		}
	default:
		return fmt.Errorf("unknown signal kind %q", kind)
	}
	return nil
}
