package hub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/roomfabric/hub/internal/v1/bus"
	"github.com/roomfabric/hub/internal/v1/identity"
	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/metrics"
	"github.com/roomfabric/hub/internal/v1/registry"
	"github.com/roomfabric/hub/internal/v1/wire"
)

// dispatch decodes raw's type discriminator and routes it. Any decode error,
// missing field, or failed signature on an authenticated frame logs and
// drops the frame; it never tears down the connection or panics out of the
// dispatch loop.
func (h *Hub) dispatch(c *Client, raw json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(context.Background(), "hub: recovered panic in dispatch", zap.Any("panic", r))
		}
	}()

	ft, err := wire.PeekType(raw)
	if err != nil {
		logging.Warn(context.Background(), "hub: frame missing type", zap.Error(err))
		return
	}

	if ft != wire.FrameJoin && c.getState() == stateOpening {
		logging.Warn(context.Background(), "hub: dropping frame before join", zap.String("type", string(ft)))
		return
	}

	switch ft {
	case wire.FrameJoin:
		h.handleJoin(c, raw)
	case wire.FrameOffer:
		h.handleOffer(c, raw)
	case wire.FrameAnswer:
		h.handleAnswer(c, raw)
	case wire.FrameICECandidate:
		h.handleICECandidate(c, raw)
	case wire.FrameBroadcast:
		h.handleBroadcastFrame(c, raw)
	default:
		logging.Warn(context.Background(), "hub: unknown frame type", zap.String("type", string(ft)))
	}
}

func (h *Hub) handleJoin(c *Client, raw json.RawMessage) {
	join, ok := wire.DecodeJoin(raw)
	if !ok {
		logging.Warn(context.Background(), "hub: malformed join frame")
		return
	}

	if err := identity.Verify(join.User.PublicKey, join.Signature, wire.CanonicalJoin(join)); err != nil {
		logging.Warn(context.Background(), "hub: join signature invalid", zap.String("room", join.Room))
		return
	}

	c.setIdentity(join.Room, join.User.PublicKey, join.User.Name)
	room := h.registry.Join(join.Room, registry.Participant{Name: join.User.Name, PublicKey: join.User.PublicKey}, c)
	c.setState(stateJoined)
	h.ensureSubscribed(join.Room)

	participants := make([]wire.User, 0)
	for _, p := range room.Snapshot() {
		if p.PublicKey == join.User.PublicKey {
			continue
		}
		participants = append(participants, wire.User{Name: p.Name, PublicKey: p.PublicKey})
	}

	info := wire.RoomInfoFrame{Type: wire.FrameRoomInfo, Room: join.Room, Participants: participants}
	if data, err := json.Marshal(info); err == nil {
		c.Send(data)
	}

	metrics.FramesDispatched.WithLabelValues("join", "ok").Inc()
}

func (h *Hub) handleOffer(c *Client, raw json.RawMessage) {
	offer, ok := wire.DecodeOffer(raw)
	if !ok {
		return
	}
	if err := identity.Verify(offer.PublicKey, offer.Signature, wire.CanonicalOffer(offer)); err != nil {
		logging.Warn(context.Background(), "hub: offer signature invalid")
		return
	}

	room, publicKey, name := c.identity()
	if room != offer.Room {
		return
	}
	r, ok := h.registry.Room(room)
	if !ok {
		return
	}
	target, ok := r.ConnectionFor(offer.Target.PublicKey)
	if !ok {
		return
	}

	offer.Sender = &wire.User{Name: name, PublicKey: publicKey}
	if data, err := json.Marshal(offer); err == nil {
		target.Send(data)
	}
}

func (h *Hub) handleAnswer(c *Client, raw json.RawMessage) {
	answer, ok := wire.DecodeAnswer(raw)
	if !ok {
		return
	}

	room, publicKey, name := c.identity()
	if room != answer.Room {
		return
	}
	r, ok := h.registry.Room(room)
	if !ok {
		return
	}
	target, ok := r.ConnectionFor(answer.Target.PublicKey)
	if !ok {
		return
	}

	answer.Sender = &wire.User{Name: name, PublicKey: publicKey}
	if data, err := json.Marshal(answer); err == nil {
		target.Send(data)
	}
}

func (h *Hub) handleICECandidate(c *Client, raw json.RawMessage) {
	ice, ok := wire.DecodeICECandidate(raw)
	if !ok {
		return
	}

	room, publicKey, name := c.identity()
	if room != ice.Room {
		return
	}
	r, ok := h.registry.Room(room)
	if !ok {
		return
	}
	target, ok := r.ConnectionFor(ice.Target.PublicKey)
	if !ok {
		return
	}

	ice.Sender = &wire.User{Name: name, PublicKey: publicKey}
	if data, err := json.Marshal(ice); err == nil {
		target.Send(data)
	}
}

func (h *Hub) handleBroadcastFrame(c *Client, raw json.RawMessage) {
	frame, ok := wire.DecodeBroadcast(raw)
	if !ok {
		return
	}

	room, publicKey, name := c.identity()
	if room != frame.Room {
		return
	}

	if h.limiter != nil {
		if err := h.limiter.CheckWebSocketBroadcast(context.Background(), publicKey); err != nil {
			logging.Info(context.Background(), "hub: broadcast rate limited", zap.String("room", room))
			return
		}
	}

	r, _ := h.registry.Room(room)

	if err := h.pipeline.Handle(context.Background(), r, room, publicKey, name, frame, true); err != nil {
		logging.Info(context.Background(), "hub: broadcast dropped", zap.Error(err), zap.String("room", room))
	}
}

// handleBusMessage re-dispatches a cross-instance broadcast to this
// instance's local room members. senderKey excludes the connection that
// originated it, in case it happens to also be present on this instance.
func (h *Hub) handleBusMessage(roomName string, payload bus.PubSubPayload) {
	if wire.FrameType(payload.Event) != wire.FrameBroadcast {
		return
	}

	var frame wire.BroadcastFrame
	if err := json.Unmarshal(payload.Payload, &frame); err != nil {
		logging.Error(context.Background(), "hub: decode bus broadcast", zap.Error(err))
		return
	}

	r, ok := h.registry.Room(roomName)
	if !ok {
		return
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	r.Broadcast(payload.SenderID, data)
}

func (h *Hub) fanOutUserLeft(r *registry.Room, roomName, publicKey, name string) {
	left := wire.UserLeftFrame{Type: wire.FrameUserLeft, Room: roomName, User: wire.User{Name: name, PublicKey: publicKey}}
	data, err := json.Marshal(left)
	if err != nil {
		return
	}
	r.Broadcast(publicKey, data)
}

// SendDeleteMsg is called by AdminAPI to notify every live member of a room
// (except the requester, if they happen to be connected) that a message was
// deleted, so caches update without polling.
func (h *Hub) SendDeleteMsg(roomName, messageID, requesterKey string) {
	r, ok := h.registry.Room(roomName)
	if !ok {
		return
	}
	frame := wire.DeleteMsgFrame{Type: wire.FrameDeleteMsg, Room: roomName, MessageID: messageID}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	r.Broadcast(requesterKey, data)
}
