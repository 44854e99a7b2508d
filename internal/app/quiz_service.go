package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"quizme/internal/domain"
)

const maxSlideOptions = 10

// QuizService contains the quiz authoring use cases. Every write drops the
// cached copies so new rooms see the edit; running rooms keep their snapshot.
type QuizService struct {
	store    QuizStore
	caches   []QuizCache
	log      *slog.Logger
	validate *validator.Validate
	newID    func() string
}

func NewQuizService(store QuizStore, log *slog.Logger, caches ...QuizCache) *QuizService {
	if log == nil {
		log = slog.Default()
	}
	return &QuizService{
		store:    store,
		caches:   caches,
		log:      log,
		validate: validator.New(),
		newID:    uuid.NewString,
	}
}

type newQuiz struct {
	HostID string `validate:"required,max=64"`
	Title  string `validate:"required,max=200"`
}

// DefaultSlide is the blank first slide every new quiz starts with.
func DefaultSlide() domain.Slide {
	return domain.Slide{
		QuestionType: domain.MultipleChoice,
		Options:      []string{"", "", "", ""},
		Answer:       domain.ChoiceAnswer(0),
	}
}

// CreateQuiz stores a new quiz owned by hostID with one default slide.
func (s *QuizService) CreateQuiz(ctx context.Context, hostID, title string) (domain.Quiz, error) {
	in := newQuiz{HostID: hostID, Title: strings.TrimSpace(title)}
	if err := s.validate.Struct(in); err != nil {
		return domain.Quiz{}, fmt.Errorf("quiz: %w", err)
	}
	quiz, err := s.store.SaveQuiz(ctx, domain.Quiz{
		ID:     s.newID(),
		Title:  in.Title,
		HostID: in.HostID,
		Slides: []domain.Slide{DefaultSlide()},
	})
	if err != nil {
		s.log.Error("create quiz failed", "host_id", hostID, "error", err)
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	s.log.Info("quiz created", "quiz_id", quiz.ID, "host_id", hostID)
	return quiz, nil
}

// ListQuizzes returns the host's quizzes with their slide counts.
func (s *QuizService) ListQuizzes(ctx context.Context, hostID string) ([]domain.QuizSummary, error) {
	if hostID == "" {
		return nil, domain.ErrUnauthorized
	}
	quizzes, err := s.store.ListQuizzes(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// Quiz returns a quiz with its answer keys to the host that owns it.
func (s *QuizService) Quiz(ctx context.Context, hostID, quizID string) (domain.Quiz, error) {
	return s.owned(ctx, hostID, quizID)
}

// DeleteQuiz removes an owned quiz and its slides.
func (s *QuizService) DeleteQuiz(ctx context.Context, hostID, quizID string) error {
	if _, err := s.owned(ctx, hostID, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}
	s.log.Info("quiz deleted", "quiz_id", quizID, "host_id", hostID)
	s.invalidate(ctx, quizID)
	return nil
}

// SaveSlide adds a slide (zero ID) or replaces an existing one after checking
// its answer key against its options.
func (s *QuizService) SaveSlide(ctx context.Context, hostID, quizID string, slide domain.Slide) (domain.Slide, error) {
	if err := validateSlide(slide); err != nil {
		return domain.Slide{}, err
	}
	quiz, err := s.owned(ctx, hostID, quizID)
	if err != nil {
		return domain.Slide{}, err
	}
	if slide.ID == 0 && slide.Position == 0 && len(quiz.Slides) > 0 {
		slide.Position = quiz.Slides[len(quiz.Slides)-1].Position + 1
	}

	saved, err := s.store.SaveSlide(ctx, quizID, slide)
	if err != nil {
		return domain.Slide{}, err
	}
	s.log.Info("slide saved", "quiz_id", quizID, "slide_id", saved.ID)
	s.invalidate(ctx, quizID)
	return saved, nil
}

func (s *QuizService) DeleteSlide(ctx context.Context, hostID, quizID string, slideID int64) error {
	if _, err := s.owned(ctx, hostID, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteSlide(ctx, quizID, slideID); err != nil {
		return err
	}
	s.log.Info("slide deleted", "quiz_id", quizID, "slide_id", slideID)
	s.invalidate(ctx, quizID)
	return nil
}

func (s *QuizService) owned(ctx context.Context, hostID, quizID string) (domain.Quiz, error) {
	if hostID == "" {
		return domain.Quiz{}, domain.ErrUnauthorized
	}
	quiz, err := s.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.HostID != hostID {
		return domain.Quiz{}, domain.ErrUnauthorized
	}
	return quiz, nil
}

// invalidate is best effort: a stale cache entry still expires with its TTL.
func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	for _, c := range s.caches {
		if err := c.Invalidate(ctx, quizID); err != nil {
			s.log.Warn("invalidate cached quiz failed", "quiz_id", quizID, "error", err)
		}
	}
}

func validateSlide(slide domain.Slide) error {
	if !slide.QuestionType.Valid() {
		return fmt.Errorf("%w: %w %q", domain.ErrInvalidSlide, domain.ErrUnknownQuestionType, slide.QuestionType)
	}
	if n := len(slide.Options); n == 0 || n > maxSlideOptions {
		return fmt.Errorf("%w: needs 1 to %d options, got %d", domain.ErrInvalidSlide, maxSlideOptions, n)
	}
	if slide.Answer == nil {
		return fmt.Errorf("%w: missing answer key", domain.ErrInvalidSlide)
	}
	if slide.Answer.QuestionType() != slide.QuestionType {
		return fmt.Errorf("%w: %s key on a %s slide", domain.ErrInvalidSlide, slide.Answer.QuestionType(), slide.QuestionType)
	}
	if err := slide.Answer.Validate(len(slide.Options)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSlide, err)
	}
	return nil
}
