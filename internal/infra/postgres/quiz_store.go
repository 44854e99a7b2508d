package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizme/internal/domain"
)

// QuizStore reads and writes authored quizzes and their slides in Postgres.
type QuizStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewQuizStore(pool *pgxpool.Pool, log *slog.Logger) *QuizStore {
	if log == nil {
		log = slog.Default()
	}
	return &QuizStore{pool: pool, log: log}
}

func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := s.pool.QueryRow(ctx, `SELECT title, host_id FROM quizzes WHERE id=$1`, quizID).Scan(&quiz.Title, &quiz.HostID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, position, question, question_type, options, answer, COALESCE(note, '')
		FROM slides WHERE quiz_id=$1 ORDER BY position, id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load slides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			slide           domain.Slide
			qt              string
			options, answer []byte
		)
		if err := rows.Scan(&slide.ID, &slide.Position, &slide.Question, &qt, &options, &answer, &slide.Note); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan slide: %w", err)
		}
		slide.QuestionType = domain.QuestionType(qt)
		if err := json.Unmarshal(options, &slide.Options); err != nil {
			return domain.Quiz{}, fmt.Errorf("slide %d options: %w", slide.ID, err)
		}
		// A broken answer key still loads; grading reports the slide instead.
		if key, err := domain.DecodeAnswer(slide.QuestionType, answer); err == nil {
			slide.Answer = key
		} else {
			s.log.Warn("slide has unusable answer key", "quiz_id", quizID, "slide_id", slide.ID, "error", err)
		}
		quiz.Slides = append(quiz.Slides, slide)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load slides: %w", err)
	}
	return quiz, nil
}

// SaveQuiz writes a quiz and replaces its slides. Slide IDs are assigned by
// the database and returned in the saved quiz.
func (s *QuizStore) SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO quizzes (id, title, host_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, host_id = EXCLUDED.host_id`,
		quiz.ID, quiz.Title, quiz.HostID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM slides WHERE quiz_id=$1`, quiz.ID); err != nil {
		return domain.Quiz{}, fmt.Errorf("clear slides: %w", err)
	}

	saved := quiz
	saved.Slides = make([]domain.Slide, 0, len(quiz.Slides))
	for _, slide := range quiz.OrderedSlides() {
		options, answer, err := encodeSlide(slide)
		if err != nil {
			return domain.Quiz{}, err
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO slides (quiz_id, position, question, question_type, options, answer, note)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
			RETURNING id`,
			quiz.ID, slide.Position, slide.Question, string(slide.QuestionType), options, answer, slide.Note,
		).Scan(&slide.ID)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("save slide: %w", err)
		}
		saved.Slides = append(saved.Slides, slide)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// ListQuizzes returns the host's quizzes with slide counts, newest first.
func (s *QuizStore) ListQuizzes(ctx context.Context, hostID string) ([]domain.QuizSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.title, q.created_at, COUNT(sl.id)
		FROM quizzes q LEFT JOIN slides sl ON sl.quiz_id = q.id
		WHERE q.host_id=$1
		GROUP BY q.id
		ORDER BY q.created_at DESC, q.id`, hostID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizSummary, 0)
	for rows.Next() {
		var q domain.QuizSummary
		if err := rows.Scan(&q.ID, &q.Title, &q.CreatedAt, &q.SlideCount); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// DeleteQuiz removes a quiz; its slides go with it. Quizzes that rooms were
// created from are kept.
func (s *QuizStore) DeleteQuiz(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if isForeignKeyViolation(err) {
		return domain.ErrQuizInUse
	}
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// SaveSlide inserts a slide without an ID or updates the quiz's slide with
// the same ID.
func (s *QuizStore) SaveSlide(ctx context.Context, quizID string, slide domain.Slide) (domain.Slide, error) {
	options, answer, err := encodeSlide(slide)
	if err != nil {
		return domain.Slide{}, err
	}

	if slide.ID == 0 {
		err := s.pool.QueryRow(ctx, `
			INSERT INTO slides (quiz_id, position, question, question_type, options, answer, note)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
			RETURNING id`,
			quizID, slide.Position, slide.Question, string(slide.QuestionType), options, answer, slide.Note,
		).Scan(&slide.ID)
		if isForeignKeyViolation(err) {
			return domain.Slide{}, domain.ErrQuizNotFound
		}
		if err != nil {
			return domain.Slide{}, fmt.Errorf("insert slide: %w", err)
		}
		return slide, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE slides SET position=$3, question=$4, question_type=$5, options=$6, answer=$7, note=NULLIF($8, '')
		WHERE id=$1 AND quiz_id=$2`,
		slide.ID, quizID, slide.Position, slide.Question, string(slide.QuestionType), options, answer, slide.Note)
	if err != nil {
		return domain.Slide{}, fmt.Errorf("update slide: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Slide{}, domain.ErrSlideNotFound
	}
	return slide, nil
}

func (s *QuizStore) DeleteSlide(ctx context.Context, quizID string, slideID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM slides WHERE id=$1 AND quiz_id=$2`, slideID, quizID)
	if err != nil {
		return fmt.Errorf("delete slide: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlideNotFound
	}
	return nil
}

func encodeSlide(slide domain.Slide) (options, answer []byte, err error) {
	if options, err = json.Marshal(slide.Options); err != nil {
		return nil, nil, fmt.Errorf("encode options: %w", err)
	}
	if slide.Answer != nil {
		if answer, err = json.Marshal(slide.Answer); err != nil {
			return nil, nil, fmt.Errorf("encode answer: %w", err)
		}
	}
	return options, answer, nil
}
