package app

import (
	"context"

	"quizme/internal/domain"
)

// RoomStore persists rooms. The store is the only source of truth for room state.
type RoomStore interface {
	// CreateRoom returns domain.ErrRoomCodeTaken if the code is already used.
	CreateRoom(ctx context.Context, room domain.Room) error
	// GetRoomByCode expects a normalized code and returns domain.ErrRoomNotFound.
	GetRoomByCode(ctx context.Context, code string) (domain.Room, error)
	GetRoom(ctx context.Context, id string) (domain.Room, error)
	UpdateRoom(ctx context.Context, id string, update domain.RoomUpdate) (domain.Room, error)
}

// PlayerStore reserves display names per room.
type PlayerStore interface {
	// AddPlayer returns domain.ErrPlayerNameTaken if the name is reserved.
	AddPlayer(ctx context.Context, player domain.Player) error
	GetPlayer(ctx context.Context, roomID, name string) (domain.Player, error)
	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)
}

// SubmissionStore keeps one submission per (room, slide, player); upserts overwrite.
type SubmissionStore interface {
	UpsertSubmission(ctx context.Context, submission domain.Submission) error
	ListSubmissions(ctx context.Context, roomID string, filter domain.SubmissionFilter) ([]domain.Submission, error)
}

// WinnerStore keeps contact details volunteered by winners.
type WinnerStore interface {
	SaveWinner(ctx context.Context, winner domain.Winner) error
	ListWinners(ctx context.Context, roomID string) ([]domain.Winner, error)
}

// QuizStore persists authored quizzes and their slides.
type QuizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, hostID string) ([]domain.QuizSummary, error)
	DeleteQuiz(ctx context.Context, quizID string) error
	SaveSlide(ctx context.Context, quizID string, slide domain.Slide) (domain.Slide, error)
	DeleteSlide(ctx context.Context, quizID string, slideID int64) error
}

// QuizCache drops cached copies of a quiz after it changes.
type QuizCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// RoomNotifier fans out room changes. Delivery is at-least-once and only the
// latest view matters to subscribers.
type RoomNotifier interface {
	Publish(ctx context.Context, view domain.RoomView) error
	// Subscribe returns a channel of views for roomID. The caller must invoke
	// the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, roomID string) (<-chan domain.RoomView, func(), error)
}

// AdvanceLocker guards host transitions so only one runs per room at a time.
type AdvanceLocker interface {
	// TryLock never blocks: ok is false when another transition holds the room.
	TryLock(ctx context.Context, roomID string) (release func(), ok bool, err error)
}
