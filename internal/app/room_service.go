package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"quizme/internal/domain"
	"quizme/internal/scoring"
)

const (
	maxRoomCodeAttempts  = 5
	defaultSlideDuration = 30
	countdownTimeout     = 10 * time.Second
	countdownRetryDelay  = time.Second
)

// errStaleCountdown is returned internally when an auto-advance fires for a
// slide the room already left.
var errStaleCountdown = errors.New("countdown is stale")

// Deps are the collaborators of RoomService.
type Deps struct {
	Rooms       RoomStore
	Players     PlayerStore
	Submissions SubmissionStore
	Winners     WinnerStore
	Quizzes     QuizRepository
	Notifier    RoomNotifier
	Locker      AdvanceLocker
}

// Option customizes a RoomService.
type Option func(*RoomService)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *RoomService) { s.log = l }
}

// WithClock is used in tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *RoomService) { s.now = now }
}

// WithAfterFunc replaces the timer used by auto-advance.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *RoomService) { s.afterFunc = f }
}

// WithCodeGenerator replaces the room code generator.
func WithCodeGenerator(f func() string) Option {
	return func(s *RoomService) { s.newCode = f }
}

// WithDefaultSlideDuration sets the duration used when auto-advance is
// enabled without an explicit duration.
func WithDefaultSlideDuration(seconds int) Option {
	return func(s *RoomService) {
		if seconds > 0 {
			s.defaultDuration = seconds
		}
	}
}

// StartOptions configure a room when the host starts it.
type StartOptions struct {
	WinnerCount   int  `json:"winnerCount" validate:"min=1,max=100"`
	AutoAdvance   bool `json:"autoAdvance"`
	SlideDuration int  `json:"slideDuration" validate:"min=0,max=3600"`
}

// Settings are the session options adjustable while the room is live.
type Settings struct {
	AutoAdvance   bool `json:"autoAdvance"`
	SlideDuration int  `json:"slideDuration" validate:"min=0,max=3600"`
}

// RoomService runs the room lifecycle: lobby, one slide at a time, results.
type RoomService struct {
	rooms       RoomStore
	players     PlayerStore
	submissions SubmissionStore
	winners     WinnerStore
	quizzes     QuizRepository
	notifier    RoomNotifier
	locker      AdvanceLocker

	log             *slog.Logger
	now             func() time.Time
	afterFunc       AfterFunc
	newCode         func() string
	defaultDuration int
	validate        *validator.Validate
	countdowns      *countdowns
}

func NewRoomService(deps Deps, opts ...Option) *RoomService {
	s := &RoomService{
		rooms:           deps.Rooms,
		players:         deps.Players,
		submissions:     deps.Submissions,
		winners:         deps.Winners,
		quizzes:         deps.Quizzes,
		notifier:        deps.Notifier,
		locker:          deps.Locker,
		log:             slog.Default(),
		now:             time.Now,
		afterFunc:       realAfterFunc,
		newCode:         NewRoomCode,
		defaultDuration: defaultSlideDuration,
		validate:        validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.countdowns = newCountdowns(s.afterFunc, s.onCountdown)
	return s
}

// Close cancels all pending auto-advance countdowns.
func (s *RoomService) Close() {
	s.countdowns.stopAll()
}

// CreateRoom opens a lobby for quizID under a fresh room code.
func (s *RoomService) CreateRoom(ctx context.Context, quizID string) (domain.Room, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Room{}, err
	}

	now := s.now()
	for attempt := 0; attempt < maxRoomCodeAttempts; attempt++ {
		room := domain.Room{
			ID:                uuid.NewString(),
			Code:              domain.NormalizeRoomCode(s.newCode()),
			QuizID:            quizID,
			CurrentSlideIndex: 0,
			WinnerCount:       1,
			HostToken:         uuid.NewString(),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		err := s.rooms.CreateRoom(ctx, room)
		if errors.Is(err, domain.ErrRoomCodeTaken) {
			s.log.Debug("room code collision", "code", room.Code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			s.log.Error("create room failed", "quiz_id", quizID, "error", err)
			return domain.Room{}, fmt.Errorf("create room: %w", err)
		}
		s.log.Info("room created", "room_id", room.ID, "code", room.Code, "quiz_id", quizID)
		return room, nil
	}
	return domain.Room{}, domain.ErrRoomCodeTaken
}

// Room returns the room for a typed code.
func (s *RoomService) Room(ctx context.Context, code string) (domain.Room, error) {
	return s.rooms.GetRoomByCode(ctx, domain.NormalizeRoomCode(code))
}

// Start moves a lobby to its first slide, snapshotting the quiz slides so
// later edits to the quiz cannot change what this room grades against.
func (s *RoomService) Start(ctx context.Context, code, hostToken string, opts StartOptions) (domain.Room, error) {
	if err := s.validate.Struct(opts); err != nil {
		return domain.Room{}, fmt.Errorf("start options: %w", err)
	}
	if opts.AutoAdvance && opts.SlideDuration == 0 {
		opts.SlideDuration = s.defaultDuration
	}

	room, err := s.hostRoom(ctx, code, hostToken)
	if err != nil {
		return domain.Room{}, err
	}

	release, err := s.lock(ctx, room.ID)
	if err != nil {
		return domain.Room{}, err
	}
	defer release()

	latest, err := s.rooms.GetRoom(ctx, room.ID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("fetch room: %w", err)
	}
	if latest.Phase() != domain.PhaseLobby {
		return latest, fmt.Errorf("%w: room already started", domain.ErrInvalidTransition)
	}

	quiz, err := s.quizzes.GetQuiz(ctx, latest.QuizID)
	if err != nil {
		return domain.Room{}, err
	}
	slides := quiz.OrderedSlides()
	if len(slides) == 0 {
		return domain.Room{}, domain.ErrQuizHasNoSlides
	}

	started, first := true, 0
	updated, err := s.rooms.UpdateRoom(ctx, latest.ID, domain.RoomUpdate{
		HasStarted:        &started,
		CurrentSlideIndex: &first,
		WinnerCount:       &opts.WinnerCount,
		AutoAdvance:       &opts.AutoAdvance,
		SlideDuration:     &opts.SlideDuration,
		Slides:            slides,
	})
	if err != nil {
		s.log.Error("start room failed", "room_id", latest.ID, "error", err)
		return domain.Room{}, fmt.Errorf("start room: %w", err)
	}
	s.log.Info("room started", "room_id", updated.ID, "slides", len(slides), "auto_advance", updated.AutoAdvance)
	s.afterTransition(ctx, updated)
	return updated, nil
}

// Advance moves the room one slide forward (+1) or back (-1). The index is
// clamped to the slide range; a move that changes nothing is a no-op.
func (s *RoomService) Advance(ctx context.Context, code, hostToken string, delta int) (domain.Room, error) {
	if delta != 1 && delta != -1 {
		return domain.Room{}, fmt.Errorf("%w: delta must be -1 or +1", domain.ErrInvalidTransition)
	}
	room, err := s.hostRoom(ctx, code, hostToken)
	if err != nil {
		return domain.Room{}, err
	}
	return s.advance(ctx, room.ID, delta, nil)
}

// ShowResults ends the room from its last slide and returns the final
// standings. Calling it again once ended recomputes the same results.
func (s *RoomService) ShowResults(ctx context.Context, code, hostToken string) (domain.Results, error) {
	room, err := s.hostRoom(ctx, code, hostToken)
	if err != nil {
		return domain.Results{}, err
	}
	return s.finish(ctx, room.ID, nil)
}

// UpdateSettings toggles auto-advance or changes the slide duration. Any
// pending countdown restarts with the new settings or is cancelled.
func (s *RoomService) UpdateSettings(ctx context.Context, code, hostToken string, settings Settings) (domain.Room, error) {
	if err := s.validate.Struct(settings); err != nil {
		return domain.Room{}, fmt.Errorf("settings: %w", err)
	}
	if settings.AutoAdvance && settings.SlideDuration == 0 {
		settings.SlideDuration = s.defaultDuration
	}
	room, err := s.hostRoom(ctx, code, hostToken)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Phase() == domain.PhaseResults {
		return room, fmt.Errorf("%w: room already finished", domain.ErrInvalidTransition)
	}

	updated, err := s.rooms.UpdateRoom(ctx, room.ID, domain.RoomUpdate{
		AutoAdvance:   &settings.AutoAdvance,
		SlideDuration: &settings.SlideDuration,
	})
	if err != nil {
		s.log.Error("update settings failed", "room_id", room.ID, "error", err)
		return domain.Room{}, fmt.Errorf("update settings: %w", err)
	}
	s.afterTransition(ctx, updated)
	return updated, nil
}

// Results recomputes the standings of a finished room.
func (s *RoomService) Results(ctx context.Context, code string) (domain.Results, error) {
	room, err := s.Room(ctx, code)
	if err != nil {
		return domain.Results{}, err
	}
	if room.Phase() != domain.PhaseResults {
		return domain.Results{}, domain.ErrResultsNotReady
	}
	return s.results(ctx, room)
}

// Subscribe streams views of the room identified by code.
func (s *RoomService) Subscribe(ctx context.Context, code string) (<-chan domain.RoomView, func(), error) {
	room, err := s.Room(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	return s.notifier.Subscribe(ctx, room.ID)
}

func (s *RoomService) advance(ctx context.Context, roomID string, delta int, expectIndex *int) (domain.Room, error) {
	release, err := s.lock(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	defer release()

	// Always compute from the store's current index, never from a cached row.
	latest, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, fmt.Errorf("fetch room: %w", err)
	}
	if expectIndex != nil && (latest.Phase() != domain.PhaseActive || latest.CurrentSlideIndex != *expectIndex) {
		return latest, errStaleCountdown
	}
	if latest.Phase() != domain.PhaseActive {
		return latest, fmt.Errorf("%w: room is %s", domain.ErrInvalidTransition, latest.Phase())
	}

	next := clamp(latest.CurrentSlideIndex+delta, 0, len(latest.Slides)-1)
	if next == latest.CurrentSlideIndex {
		return latest, nil
	}

	updated, err := s.rooms.UpdateRoom(ctx, roomID, domain.RoomUpdate{CurrentSlideIndex: &next})
	if err != nil {
		s.log.Error("slide update failed", "room_id", roomID, "error", err)
		return domain.Room{}, fmt.Errorf("advance room: %w", err)
	}
	s.log.Info("slide changed", "room_id", roomID, "from", latest.CurrentSlideIndex, "to", next)
	s.afterTransition(ctx, updated)
	return updated, nil
}

func (s *RoomService) finish(ctx context.Context, roomID string, expectIndex *int) (domain.Results, error) {
	release, err := s.lock(ctx, roomID)
	if err != nil {
		return domain.Results{}, err
	}
	defer release()

	latest, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Results{}, fmt.Errorf("fetch room: %w", err)
	}
	if expectIndex != nil && (latest.Phase() != domain.PhaseActive || latest.CurrentSlideIndex != *expectIndex) {
		return domain.Results{}, errStaleCountdown
	}

	switch latest.Phase() {
	case domain.PhaseResults:
		return s.results(ctx, latest)
	case domain.PhaseLobby:
		return domain.Results{}, fmt.Errorf("%w: room has not started", domain.ErrInvalidTransition)
	}
	if latest.CurrentSlideIndex != len(latest.Slides)-1 {
		return domain.Results{}, fmt.Errorf("%w: results are shown from the last slide", domain.ErrInvalidTransition)
	}

	// Stores refuse answers once the index is flipped, so aggregating after
	// the flip sees every answer later recomputes will see.
	index := domain.ResultsIndex
	updated, err := s.rooms.UpdateRoom(ctx, roomID, domain.RoomUpdate{CurrentSlideIndex: &index})
	if err != nil {
		s.log.Error("finish room failed", "room_id", roomID, "error", err)
		return domain.Results{}, fmt.Errorf("finish room: %w", err)
	}
	s.afterTransition(ctx, updated)

	results, err := s.results(ctx, updated)
	if err != nil {
		return domain.Results{}, err
	}
	s.log.Info("room finished", "room_id", roomID, "players", len(results.Scores), "winners", results.Winners)
	return results, nil
}

func (s *RoomService) results(ctx context.Context, room domain.Room) (domain.Results, error) {
	subs, err := s.submissions.ListSubmissions(ctx, room.ID, domain.SubmissionFilter{})
	if err != nil {
		s.log.Error("fetch submissions failed", "room_id", room.ID, "error", err)
		return domain.Results{}, fmt.Errorf("fetch submissions: %w", err)
	}
	players, err := s.players.ListPlayers(ctx, room.ID)
	if err != nil {
		s.log.Error("fetch players failed", "room_id", room.ID, "error", err)
		return domain.Results{}, fmt.Errorf("fetch players: %w", err)
	}

	agg := scoring.Aggregate(room.Slides, subs, players)
	for _, issue := range agg.Issues {
		s.log.Warn("submission scored as zero",
			"room_id", room.ID,
			"slide_id", issue.SlideID,
			"player", issue.PlayerName,
			"error", issue.Err,
		)
	}
	return scoring.BuildResults(room.Code, agg.Scores, players, room.WinnerCount, s.now()), nil
}

// onCountdown runs when a room's auto-advance timer fires for index.
func (s *RoomService) onCountdown(roomID string, index int) {
	ctx, cancel := context.WithTimeout(context.Background(), countdownTimeout)
	defer cancel()

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		s.log.Error("auto-advance fetch failed", "room_id", roomID, "error", err)
		return
	}
	if index == len(room.Slides)-1 {
		_, err = s.finish(ctx, roomID, &index)
	} else {
		_, err = s.advance(ctx, roomID, 1, &index)
	}
	switch {
	case err == nil:
	case errors.Is(err, errStaleCountdown):
		s.log.Debug("auto-advance skipped", "room_id", roomID, "index", index, "reason", err)
	case errors.Is(err, domain.ErrAdvanceInProgress):
		// The lock holder may change nothing and never reset the countdown.
		s.log.Debug("auto-advance busy, retrying", "room_id", roomID, "index", index)
		s.countdowns.retry(roomID, index, countdownRetryDelay)
	default:
		s.log.Error("auto-advance failed", "room_id", roomID, "index", index, "error", err)
	}
}

func (s *RoomService) afterTransition(ctx context.Context, room domain.Room) {
	s.countdowns.reset(room)
	if err := s.notifier.Publish(ctx, room.View()); err != nil {
		s.log.Error("publish room change failed", "room_id", room.ID, "error", err)
	}
}

func (s *RoomService) lock(ctx context.Context, roomID string) (func(), error) {
	release, ok, err := s.locker.TryLock(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("lock room: %w", err)
	}
	if !ok {
		return nil, domain.ErrAdvanceInProgress
	}
	return release, nil
}

func (s *RoomService) hostRoom(ctx context.Context, code, hostToken string) (domain.Room, error) {
	room, err := s.Room(ctx, code)
	if err != nil {
		return domain.Room{}, err
	}
	if !sameToken(room.HostToken, hostToken) {
		return domain.Room{}, domain.ErrUnauthorized
	}
	return room, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
