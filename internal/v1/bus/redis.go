package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roomfabric/hub/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// PubSubPayload is the standardized container for moving messages between
// hub instances so a multi-process deployment behaves as one room.
type PubSubPayload struct {
	Room     string          `json:"room"`
	Event    string          `json:"event"`    // The frame type (e.g., "broadcast", "offer")
	Payload  json.RawMessage `json:"payload"`  // The frame body
	SenderID string          `json:"senderId"` // Used to prevent echoing a frame back to its own originator
}

// BlockInvalidation is published on the block-invalidate channel after an
// admin blocks a key. No component in this module keeps a block-list cache or
// subscribes to the channel; block checks read the store directly.
type BlockInvalidation struct {
	PublicKey string `json:"publicKey"`
}

// Service handles all interaction with the Redis cluster.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a robust Redis connection with automatic retries.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis Pub/Sub", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// roomChannel returns the pub/sub channel name for a room's cross-instance fan-out.
func roomChannel(room string) string {
	return fmt.Sprintf("chatfabric:room:%s", room)
}

const blockInvalidateChannel = "chatfabric:block-invalidate"

// Publish broadcasts a frame to all other hub instances watching this room.
func (s *Service) Publish(ctx context.Context, room string, event string, payload any, senderID string) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload: %w", err)
		}

		msg := PubSubPayload{
			Room:     room,
			Event:    event,
			Payload:  innerBytes,
			SenderID: senderID,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pubsub envelope: %w", err)
		}

		return nil, s.client.Publish(ctx, roomChannel(room), data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open: dropping publish", "room", room)
			return nil // Graceful degradation: drop message, don't crash caller
		}
		slog.Error("Redis publish failed", "room", room, "error", err)
		return err
	}

	return nil
}

// Subscribe starts a background goroutine that listens for frames published
// by OTHER hub instances for the given room.
func (s *Service) Subscribe(ctx context.Context, room string, wg *sync.WaitGroup, handler func(PubSubPayload)) {
	if s == nil || s.client == nil {
		return
	}

	channel := roomChannel(room)
	pubsub := s.client.Subscribe(ctx, channel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("Subscribed to Redis channel", "channel", channel)

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("Redis subscription channel closed", "channel", channel)
					return
				}

				var payload PubSubPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					slog.Error("Failed to unmarshal Redis message", "error", err, "raw", msg.Payload)
					continue
				}

				handler(payload)
			}
		}
	}()
}

// PublishBlockInvalidate publishes a BlockInvalidation for publicKey on the
// block-invalidate channel, for any subscriber that caches block status.
func (s *Service) PublishBlockInvalidate(ctx context.Context, publicKey string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(BlockInvalidation{PublicKey: publicKey})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal block invalidation: %w", err)
		}
		return nil, s.client.Publish(ctx, blockInvalidateChannel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open: dropping block invalidation", "publicKey", publicKey)
			return nil
		}
		slog.Error("Redis block invalidation publish failed", "publicKey", publicKey, "error", err)
		return err
	}
	return nil
}

// SubscribeBlockInvalidate calls handler for every event on the block-invalidate
// channel, including events this instance published itself.
func (s *Service) SubscribeBlockInvalidate(ctx context.Context, handler func(BlockInvalidation)) {
	if s == nil || s.client == nil {
		return
	}

	pubsub := s.client.Subscribe(ctx, blockInvalidateChannel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv BlockInvalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					slog.Error("Failed to unmarshal block invalidation", "error", err)
					continue
				}
				handler(inv)
			}
		}
	}()
}

// Ping checks Redis connectivity using the PING command.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

