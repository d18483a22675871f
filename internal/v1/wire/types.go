// Package wire defines the JSON frame envelope exchanged over the live
// connection and the canonical byte encodings used for signing.
package wire

import "encoding/json"

// HTTP signature headers: the signer's public key and detached signature
// travel alongside the request, never inside its JSON body, so the signed
// digest (method+path+body) stays free of the credentials that produced it.
const (
	HeaderPublicKey = "X-Public-Key"
	HeaderSignature = "X-Signature"
)

// FrameType discriminates the inbound/outbound frame shapes.
type FrameType string

const (
	FrameJoin         FrameType = "join"
	FrameRoomInfo     FrameType = "room-info"
	FrameUserLeft     FrameType = "user-left"
	FrameOffer        FrameType = "offer"
	FrameAnswer       FrameType = "answer"
	FrameICECandidate FrameType = "ice-candidate"
	FrameBroadcast    FrameType = "broadcast"
	FrameAck          FrameType = "ack"
	FrameDeleteMsg    FrameType = "delete-msg"
)

// Message states, per the ClientSyncEngine's local cache contract.
const (
	StateSent   = "SENT"
	StateSaved  = "SAVED"
	StateFailed = "FAILED"
)

// User identifies a participant by display name and long-lived public key.
type User struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
}

// Attachment carries a file's metadata plus its bytes as a data URL on the wire.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int    `json:"size"`
	Data string `json:"data,omitempty"`
}

// ChatMessage is the signable, persistable unit of a room's history.
type ChatMessage struct {
	ID          string       `json:"id"`
	Timestamp   int64        `json:"timestamp"`
	Sender      string       `json:"sender"`
	Content     string       `json:"content"`
	PublicKey   string       `json:"publicKey,omitempty"`
	Signature   string       `json:"signature,omitempty"`
	State       string       `json:"state,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Envelope is the minimal shape needed to read a frame's discriminator
// before decoding the rest of its fields.
type Envelope struct {
	Type FrameType `json:"type"`
}

// JoinFrame: client -> server, requests membership in a room.
type JoinFrame struct {
	Type      FrameType `json:"type"`
	Room      string    `json:"room"`
	User      User      `json:"user"`
	Signature string    `json:"signature"`
}

// RoomInfoFrame: server -> client, answers a join with the current roster.
type RoomInfoFrame struct {
	Type         FrameType `json:"type"`
	Room         string    `json:"room"`
	Participants []User    `json:"participants"`
}

// UserLeftFrame: server -> room, announces a participant's departure.
type UserLeftFrame struct {
	Type FrameType `json:"type"`
	Room string    `json:"room"`
	User User      `json:"user"`
}

// OfferFrame carries an SDP offer targeted at one peer in the same room.
type OfferFrame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id"`
	Offer     json.RawMessage `json:"offer"`
	Target    User            `json:"target"`
	Room      string          `json:"room"`
	Sender    *User           `json:"sender,omitempty"`
	PublicKey string          `json:"publicKey"`
	Signature string          `json:"signature"`
}

// AnswerFrame carries an SDP answer back to the original offerer. Pass-through:
// authenticity is established by the DTLS handshake that follows.
type AnswerFrame struct {
	Type   FrameType       `json:"type"`
	ID     string          `json:"id"`
	Answer json.RawMessage `json:"answer"`
	Target User            `json:"target"`
	Room   string          `json:"room"`
	Sender *User           `json:"sender,omitempty"`
}

// ICECandidateFrame carries one ICE candidate between two peers. Pass-through.
type ICECandidateFrame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id"`
	Candidate json.RawMessage `json:"candidate"`
	Target    User            `json:"target"`
	Room      string          `json:"room"`
	Sender    *User           `json:"sender,omitempty"`
}

// BroadcastFrame carries a chat message bound for every other room member.
type BroadcastFrame struct {
	Type    FrameType   `json:"type"`
	Room    string      `json:"room"`
	Message ChatMessage `json:"message"`
	Sender  *User       `json:"sender,omitempty"`
}

// AckFrame: server -> originator, confirms a broadcast message was persisted.
type AckFrame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id"`
}

// DeleteMsgFrame: server -> room, announces an admin-initiated message deletion.
type DeleteMsgFrame struct {
	Type      FrameType `json:"type"`
	Room      string    `json:"room"`
	MessageID string    `json:"messageId"`
}
