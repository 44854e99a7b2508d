package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"quizme/internal/domain"
)

// RoomNotifier fans out room views across instances over Redis pub/sub, one
// channel per room.
type RoomNotifier struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRoomNotifier(client *redis.Client, log *slog.Logger) *RoomNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &RoomNotifier{client: client, log: log}
}

func (n *RoomNotifier) Publish(ctx context.Context, view domain.RoomView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode room view: %w", err)
	}
	return n.client.Publish(ctx, channel(view.ID), raw).Err()
}

func (n *RoomNotifier) Subscribe(ctx context.Context, roomID string) (<-chan domain.RoomView, func(), error) {
	pubsub := n.client.Subscribe(ctx, channel(roomID))
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe room %s: %w", roomID, err)
	}

	out := make(chan domain.RoomView, 8)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var view domain.RoomView
			if err := json.Unmarshal([]byte(msg.Payload), &view); err != nil {
				n.log.Warn("dropping unreadable room view", "room_id", roomID, "error", err)
				continue
			}
			offerLatest(out, view)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return out, cancel, nil
}

func channel(roomID string) string {
	return "room:" + roomID + ":changes"
}

// offerLatest never blocks: a full channel drops its oldest view.
func offerLatest(ch chan domain.RoomView, view domain.RoomView) {
	for {
		select {
		case ch <- view:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
