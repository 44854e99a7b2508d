package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizme/internal/domain"
)

// Store is an in-memory implementation of the app room, player, submission
// and winner stores.
type Store struct {
	mu          sync.RWMutex
	rooms       map[string]domain.Room // by ID
	codes       map[string]string      // code -> room ID
	players     map[string]map[string]domain.Player
	submissions map[submissionKey]storedSubmission
	winners     map[string]map[string]domain.Winner
	seq         uint64
	now         func() time.Time
}

type submissionKey struct {
	roomID  string
	slideID int64
	player  string
}

type storedSubmission struct {
	sub domain.Submission
	seq uint64
}

func NewStore() *Store {
	return &Store{
		rooms:       make(map[string]domain.Room),
		codes:       make(map[string]string),
		players:     make(map[string]map[string]domain.Player),
		submissions: make(map[submissionKey]storedSubmission),
		winners:     make(map[string]map[string]domain.Winner),
		now:         time.Now,
	}
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[room.Code]; ok {
		return domain.ErrRoomCodeTaken
	}
	s.rooms[room.ID] = cloneRoom(room)
	s.codes[room.Code] = room.ID
	return nil
}

func (s *Store) GetRoomByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return cloneRoom(s.rooms[id]), nil
}

func (s *Store) GetRoom(_ context.Context, id string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (s *Store) UpdateRoom(_ context.Context, id string, update domain.RoomUpdate) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	update.Apply(&room)
	room.UpdatedAt = s.now()
	s.rooms[id] = cloneRoom(room)
	return cloneRoom(room), nil
}

func (s *Store) AddPlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.players[player.RoomID]
	if !ok {
		byName = make(map[string]domain.Player)
		s.players[player.RoomID] = byName
	}
	if _, taken := byName[player.Name]; taken {
		return domain.ErrPlayerNameTaken
	}
	byName[player.Name] = player
	return nil
}

func (s *Store) GetPlayer(_ context.Context, roomID, name string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[roomID][name]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) ListPlayers(_ context.Context, roomID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Player, 0, len(s.players[roomID]))
	for _, p := range s.players[roomID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// UpsertSubmission refuses answers for a room that already shows results.
func (s *Store) UpsertSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[sub.RoomID]; ok && room.Phase() == domain.PhaseResults {
		return domain.ErrRoomFinished
	}
	s.seq++
	key := submissionKey{roomID: sub.RoomID, slideID: sub.SlideID, player: sub.PlayerName}
	sub.Payload = append([]byte(nil), sub.Payload...)
	s.submissions[key] = storedSubmission{sub: sub, seq: s.seq}
	return nil
}

// ListSubmissions returns submissions in the order they were last written.
func (s *Store) ListSubmissions(_ context.Context, roomID string, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := make([]storedSubmission, 0)
	for key, st := range s.submissions {
		if key.roomID != roomID {
			continue
		}
		if filter.SlideID != 0 && key.slideID != filter.SlideID {
			continue
		}
		stored = append(stored, st)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })
	out := make([]domain.Submission, len(stored))
	for i, st := range stored {
		out[i] = st.sub
	}
	return out, nil
}

func (s *Store) SaveWinner(_ context.Context, winner domain.Winner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.winners[winner.RoomID]
	if !ok {
		byName = make(map[string]domain.Winner)
		s.winners[winner.RoomID] = byName
	}
	byName[winner.PlayerName] = winner
	return nil
}

// ListWinners returns stored winner records for a room ordered by name.
func (s *Store) ListWinners(_ context.Context, roomID string) ([]domain.Winner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Winner, 0, len(s.winners[roomID]))
	for _, w := range s.winners[roomID] {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerName < out[j].PlayerName })
	return out, nil
}

func cloneRoom(r domain.Room) domain.Room {
	if r.Slides != nil {
		r.Slides = append([]domain.Slide(nil), r.Slides...)
	}
	return r
}
