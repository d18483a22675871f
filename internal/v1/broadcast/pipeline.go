// Package broadcast implements the chat fan-out pipeline: verify the inner
// message's signature, check the block list, persist, annotate, then fan
// out an ack to the originator and the full frame to everyone else.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/roomfabric/hub/internal/v1/bus"
	"github.com/roomfabric/hub/internal/v1/identity"
	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/metrics"
	"github.com/roomfabric/hub/internal/v1/registry"
	"github.com/roomfabric/hub/internal/v1/store"
	"github.com/roomfabric/hub/internal/v1/wire"
)

// ErrDropped is returned (and only logged, never surfaced to the client) when
// a broadcast frame fails signature or block-list checks. The connection is
// never torn down over it.
var ErrDropped = errors.New("broadcast: frame dropped")

// Store is the subset of store.Store the pipeline needs, narrowed to an
// interface so tests can substitute an in-memory double.
type Store interface {
	GetOrCreateRoom(ctx context.Context, name string) (int, error)
	IsBlocked(ctx context.Context, key string) (bool, error)
	PersistMessage(ctx context.Context, roomID int, msg wire.ChatMessage) error
}

var _ Store = (*store.Store)(nil)

// Pipeline wires the Store and an optional cross-instance bus into the
// broadcast algorithm described for BroadcastPipeline.
type Pipeline struct {
	store Store
	bus   *bus.Service
}

// NewPipeline builds a Pipeline. bus may be nil for single-instance mode.
func NewPipeline(st Store, busSvc *bus.Service) *Pipeline {
	return &Pipeline{store: st, bus: busSvc}
}

// Handle runs the five-step algorithm for one broadcast frame arriving on
// room from the connection identified by senderKey/senderName. publish
// controls whether the local result should also be republished to the bus
// (false when this call originates from a bus subscription, to avoid loops).
func (p *Pipeline) Handle(ctx context.Context, room *registry.Room, roomName, senderKey, senderName string, frame wire.BroadcastFrame, publish bool) error {
	start := time.Now()
	defer func() {
		metrics.FrameProcessingDuration.WithLabelValues("broadcast").Observe(time.Since(start).Seconds())
	}()

	digest := wire.CanonicalChatMessage(frame.Message)
	if err := identity.Verify(frame.Message.PublicKey, frame.Message.Signature, digest); err != nil {
		metrics.FramesDispatched.WithLabelValues("broadcast", "invalid_signature").Inc()
		return ErrDropped
	}

	blocked, err := p.store.IsBlocked(ctx, frame.Message.PublicKey)
	if err != nil {
		logging.Error(ctx, "broadcast: check blocked", zap.Error(err), zap.String("room", roomName))
		return err
	}
	if blocked {
		metrics.BlockedDrops.Inc()
		return ErrDropped
	}

	roomID, err := p.store.GetOrCreateRoom(ctx, roomName)
	if err != nil {
		return err
	}
	if err := p.store.PersistMessage(ctx, roomID, frame.Message); err != nil {
		return err
	}
	metrics.MessagesPersisted.WithLabelValues("ok").Inc()

	frame.Message.State = wire.StateSaved
	frame.Sender = &wire.User{Name: senderName, PublicKey: senderKey}

	if room != nil {
		p.fanOut(room, senderKey, frame)
	}

	if publish && p.bus != nil {
		if err := p.bus.Publish(ctx, roomName, string(wire.FrameBroadcast), frame, senderKey); err != nil {
			logging.Warn(ctx, "broadcast: publish to bus", zap.Error(err), zap.String("room", roomName))
		}
	}

	metrics.FramesDispatched.WithLabelValues("broadcast", "ok").Inc()
	return nil
}

func (p *Pipeline) fanOut(room *registry.Room, senderKey string, frame wire.BroadcastFrame) {
	full, err := json.Marshal(frame)
	if err != nil {
		logging.Error(context.Background(), "broadcast: marshal frame", zap.Error(err))
		return
	}

	if conn, ok := room.ConnectionFor(senderKey); ok {
		ack, err := json.Marshal(wire.AckFrame{Type: wire.FrameAck, ID: frame.Message.ID})
		if err != nil {
			logging.Error(context.Background(), "broadcast: marshal ack", zap.Error(err))
		} else {
			conn.Send(ack)
		}
	}

	room.Broadcast(senderKey, full)
}
