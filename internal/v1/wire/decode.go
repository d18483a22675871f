package wire

import (
	"encoding/json"
	"fmt"
)

// PeekType reads just the "type" discriminator out of a raw frame without
// committing to any one concrete shape. Callers switch on the result before
// calling decodeFrame for the matching struct.
func PeekType(raw json.RawMessage) (FrameType, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode frame envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("frame missing type discriminator")
	}
	return env.Type, nil
}

// decodeFrame unmarshals a raw frame into the concrete type T. It mirrors the
// teacher's generic payload-assertion helper, adapted here for the flat
// (non-nested-payload) frame shapes this wire contract uses.
func decodeFrame[T any](raw json.RawMessage) (T, bool) {
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, false
	}
	return result, true
}

// DecodeJoin decodes a raw frame as a JoinFrame.
func DecodeJoin(raw json.RawMessage) (JoinFrame, bool) { return decodeFrame[JoinFrame](raw) }

// DecodeOffer decodes a raw frame as an OfferFrame.
func DecodeOffer(raw json.RawMessage) (OfferFrame, bool) { return decodeFrame[OfferFrame](raw) }

// DecodeAnswer decodes a raw frame as an AnswerFrame.
func DecodeAnswer(raw json.RawMessage) (AnswerFrame, bool) { return decodeFrame[AnswerFrame](raw) }

// DecodeICECandidate decodes a raw frame as an ICECandidateFrame.
func DecodeICECandidate(raw json.RawMessage) (ICECandidateFrame, bool) {
	return decodeFrame[ICECandidateFrame](raw)
}

// DecodeBroadcast decodes a raw frame as a BroadcastFrame.
func DecodeBroadcast(raw json.RawMessage) (BroadcastFrame, bool) {
	return decodeFrame[BroadcastFrame](raw)
}
