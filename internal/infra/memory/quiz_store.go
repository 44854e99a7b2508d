package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizme/internal/domain"
)

// QuizStore keeps authored quizzes in memory. It is also the loader behind
// QuizRepository when no database is configured.
type QuizStore struct {
	mu          sync.RWMutex
	quizzes     map[string]storedQuiz
	nextSlideID int64
	now         func() time.Time
}

type storedQuiz struct {
	quiz      domain.Quiz
	createdAt time.Time
}

// NewQuizStore seeds the store with quizzes keyed by ID.
func NewQuizStore(seed map[string]domain.Quiz) *QuizStore {
	s := &QuizStore{
		quizzes: make(map[string]storedQuiz, len(seed)),
		now:     time.Now,
	}
	created := s.now()
	for id, quiz := range seed {
		quiz.ID = id
		for _, slide := range quiz.Slides {
			if slide.ID > s.nextSlideID {
				s.nextSlideID = slide.ID
			}
		}
		s.quizzes[id] = storedQuiz{quiz: cloneQuiz(quiz), createdAt: created}
	}
	return s
}

func (s *QuizStore) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz := cloneQuiz(stored.quiz)
	quiz.Slides = quiz.OrderedSlides()
	return quiz, nil
}

// SaveQuiz writes a quiz and replaces its slides, assigning IDs to new ones.
func (s *QuizStore) SaveQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now()
	if existing, ok := s.quizzes[quiz.ID]; ok {
		created = existing.createdAt
	}
	saved := cloneQuiz(quiz)
	for i := range saved.Slides {
		if saved.Slides[i].ID == 0 {
			s.nextSlideID++
			saved.Slides[i].ID = s.nextSlideID
		}
	}
	s.quizzes[quiz.ID] = storedQuiz{quiz: saved, createdAt: created}
	return cloneQuiz(saved), nil
}

// ListQuizzes returns the host's quizzes, newest first.
func (s *QuizStore) ListQuizzes(_ context.Context, hostID string) ([]domain.QuizSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizSummary, 0)
	for _, stored := range s.quizzes {
		if stored.quiz.HostID != hostID {
			continue
		}
		out = append(out, domain.QuizSummary{
			ID:         stored.quiz.ID,
			Title:      stored.quiz.Title,
			SlideCount: len(stored.quiz.Slides),
			CreatedAt:  stored.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteQuiz removes a quiz with its slides. Rooms keep their own slide
// snapshot and are not tracked here.
func (s *QuizStore) DeleteQuiz(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	return nil
}

// SaveSlide inserts a slide without an ID or replaces the slide with the same ID.
func (s *QuizStore) SaveSlide(_ context.Context, quizID string, slide domain.Slide) (domain.Slide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.quizzes[quizID]
	if !ok {
		return domain.Slide{}, domain.ErrQuizNotFound
	}
	slide.Options = append([]string(nil), slide.Options...)

	if slide.ID == 0 {
		s.nextSlideID++
		slide.ID = s.nextSlideID
		stored.quiz.Slides = append(stored.quiz.Slides, slide)
		s.quizzes[quizID] = stored
		return slide, nil
	}
	for i := range stored.quiz.Slides {
		if stored.quiz.Slides[i].ID == slide.ID {
			stored.quiz.Slides[i] = slide
			return slide, nil
		}
	}
	return domain.Slide{}, domain.ErrSlideNotFound
}

func (s *QuizStore) DeleteSlide(_ context.Context, quizID string, slideID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	for i := range stored.quiz.Slides {
		if stored.quiz.Slides[i].ID == slideID {
			stored.quiz.Slides = append(stored.quiz.Slides[:i], stored.quiz.Slides[i+1:]...)
			s.quizzes[quizID] = stored
			return nil
		}
	}
	return domain.ErrSlideNotFound
}

func cloneQuiz(q domain.Quiz) domain.Quiz {
	slides := make([]domain.Slide, len(q.Slides))
	for i, slide := range q.Slides {
		slide.Options = append([]string(nil), slide.Options...)
		slides[i] = slide
	}
	q.Slides = slides
	return q
}
