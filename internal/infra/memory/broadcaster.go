package memory

import (
	"context"
	"sync"

	"quizme/internal/domain"
)

// RoomBroadcaster fans out room views to in-process subscribers.
type RoomBroadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.RoomView]struct{}
}

func NewRoomBroadcaster() *RoomBroadcaster {
	return &RoomBroadcaster{subscribers: make(map[string]map[chan domain.RoomView]struct{})}
}

func (b *RoomBroadcaster) Publish(_ context.Context, view domain.RoomView) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[view.ID] {
		offerLatest(ch, view)
	}
	return nil
}

func (b *RoomBroadcaster) Subscribe(_ context.Context, roomID string) (<-chan domain.RoomView, func(), error) {
	ch := make(chan domain.RoomView, 8)

	b.mu.Lock()
	subs, ok := b.subscribers[roomID]
	if !ok {
		subs = make(map[chan domain.RoomView]struct{})
		b.subscribers[roomID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[roomID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.subscribers, roomID)
		}
	}
	return ch, cancel, nil
}

// offerLatest never blocks: a full channel drops its oldest view so slow
// subscribers still end up with the newest one.
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
