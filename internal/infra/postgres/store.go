package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizme/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const roomColumns = `id, code, quiz_id, has_started, current_slide_index, winner_count,
	auto_advance, slide_duration, slides, host_token, created_at, updated_at`

// Store persists rooms, players, submissions and winners in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	slides, err := encodeSlides(room.Slides)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		room.ID, room.Code, room.QuizID, room.HasStarted, room.CurrentSlideIndex, room.WinnerCount,
		room.AutoAdvance, room.SlideDuration, slides, room.HostToken, room.CreatedAt, room.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrRoomCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code=$1`, code))
}

func (s *Store) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, id))
}

// UpdateRoom writes only the fields set in update and returns the stored row.
func (s *Store) UpdateRoom(ctx context.Context, id string, update domain.RoomUpdate) (domain.Room, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.HasStarted != nil {
		set("has_started", *update.HasStarted)
	}
	if update.CurrentSlideIndex != nil {
		set("current_slide_index", *update.CurrentSlideIndex)
	}
	if update.WinnerCount != nil {
		set("winner_count", *update.WinnerCount)
	}
	if update.AutoAdvance != nil {
		set("auto_advance", *update.AutoAdvance)
	}
	if update.SlideDuration != nil {
		set("slide_duration", *update.SlideDuration)
	}
	if update.Slides != nil {
		slides, err := encodeSlides(update.Slides)
		if err != nil {
			return domain.Room{}, err
		}
		set("slides", slides)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE rooms SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), roomColumns)
	return scanRoom(s.pool.QueryRow(ctx, query, args...))
}

func (s *Store) AddPlayer(ctx context.Context, player domain.Player) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO room_players (room_id, player_name, token, joined_at) VALUES ($1, $2, $3, $4)`,
		player.RoomID, player.Name, player.Token, player.JoinedAt)
	if isUniqueViolation(err) {
		return domain.ErrPlayerNameTaken
	}
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, roomID, name string) (domain.Player, error) {
	p := domain.Player{RoomID: roomID, Name: name}
	err := s.pool.QueryRow(ctx,
		`SELECT token, joined_at FROM room_players WHERE room_id=$1 AND player_name=$2`,
		roomID, name).Scan(&p.Token, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("select player: %w", err)
	}
	return p, nil
}

func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_name, token, joined_at FROM room_players
		WHERE room_id=$1 ORDER BY joined_at, player_name`, roomID)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	defer rows.Close()

	var out []domain.Player
	for rows.Next() {
		p := domain.Player{RoomID: roomID}
		if err := rows.Scan(&p.Name, &p.Token, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertSubmission keeps one row per (room, slide, player); the latest write
// wins. The room row is share-locked so a concurrent finish either sees the
// answer or the answer is refused.
func (s *Store) UpsertSubmission(ctx context.Context, sub domain.Submission) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var index int
	err = tx.QueryRow(ctx, `SELECT current_slide_index FROM rooms WHERE id=$1 FOR SHARE`, sub.RoomID).Scan(&index)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("lock room: %w", err)
	}
	if index == domain.ResultsIndex {
		return domain.ErrRoomFinished
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO player_responses (room_id, slide_id, player_name, response, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, slide_id, player_name)
		DO UPDATE SET response = EXCLUDED.response, submitted_at = EXCLUDED.submitted_at`,
		sub.RoomID, sub.SlideID, sub.PlayerName, []byte(sub.Payload), sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context, roomID string, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slide_id, player_name, response, submitted_at FROM player_responses
		WHERE room_id=$1 AND ($2::bigint = 0 OR slide_id = $2::bigint)
		ORDER BY submitted_at, id`, roomID, filter.SlideID)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		sub := domain.Submission{RoomID: roomID}
		var payload []byte
		if err := rows.Scan(&sub.SlideID, &sub.PlayerName, &payload, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Payload = json.RawMessage(payload)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) SaveWinner(ctx context.Context, w domain.Winner) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO winners (room_id, player_name, contact_name, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, player_name)
		DO UPDATE SET contact_name = EXCLUDED.contact_name, email = EXCLUDED.email`,
		w.RoomID, w.PlayerName, w.Contact.Name, w.Contact.Email, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("save winner: %w", err)
	}
	return nil
}

func (s *Store) ListWinners(ctx context.Context, roomID string) ([]domain.Winner, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_name, contact_name, email, created_at FROM winners
		WHERE room_id=$1 ORDER BY player_name`, roomID)
	if err != nil {
		return nil, fmt.Errorf("select winners: %w", err)
	}
	defer rows.Close()

	var out []domain.Winner
	for rows.Next() {
		w := domain.Winner{RoomID: roomID}
		if err := rows.Scan(&w.PlayerName, &w.Contact.Name, &w.Contact.Email, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var (
		r      domain.Room
		slides []byte
	)
	err := row.Scan(&r.ID, &r.Code, &r.QuizID, &r.HasStarted, &r.CurrentSlideIndex, &r.WinnerCount,
		&r.AutoAdvance, &r.SlideDuration, &slides, &r.HostToken, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}
	if len(slides) > 0 {
		if err := json.Unmarshal(slides, &r.Slides); err != nil {
			return domain.Room{}, fmt.Errorf("room %s slides: %w", r.ID, err)
		}
	}
	return r, nil
}

// encodeSlides returns nil for an empty snapshot so the column stays NULL.
func encodeSlides(slides []domain.Slide) ([]byte, error) {
	if len(slides) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(slides)
	if err != nil {
		return nil, fmt.Errorf("encode slides: %w", err)
	}
	return raw, nil
}

func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasCode(err, foreignKeyViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
