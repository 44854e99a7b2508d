package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ResultsIndex is the current_slide_index sentinel for a room showing results.
const ResultsIndex = -1

// Slide is one question of a quiz.
type Slide struct {
	ID           int64        `json:"id"`
	Position     int          `json:"position"`
	Question     string       `json:"question"`
	QuestionType QuestionType `json:"questionType"`
	Options      []string     `json:"options"`
	Answer       Answer       `json:"-"`
	Note         string       `json:"note,omitempty"`
}

type slideJSON struct {
	ID           int64           `json:"id"`
	Position     int             `json:"position"`
	Question     string          `json:"question"`
	QuestionType QuestionType    `json:"questionType"`
	Options      []string        `json:"options"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Note         string          `json:"note,omitempty"`
}

func (s Slide) MarshalJSON() ([]byte, error) {
	out := slideJSON{
		ID:           s.ID,
		Position:     s.Position,
		Question:     s.Question,
		QuestionType: s.QuestionType,
		Options:      s.Options,
		Note:         s.Note,
	}
	if s.Answer != nil {
		raw, err := json.Marshal(s.Answer)
		if err != nil {
			return nil, err
		}
		out.Answer = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON leaves Answer nil when the stored key does not decode;
// grading reports such slides instead of failing the whole quiz load.
func (s *Slide) UnmarshalJSON(data []byte) error {
	var in slideJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Slide{
		ID:           in.ID,
		Position:     in.Position,
		Question:     in.Question,
		QuestionType: in.QuestionType,
		Options:      in.Options,
		Note:         in.Note,
	}
	if answer, err := DecodeAnswer(in.QuestionType, in.Answer); err == nil {
		s.Answer = answer
	}
	return nil
}

// Prompt strips the answer key and host note for player-facing views.
func (s Slide) Prompt() SlidePrompt {
	return SlidePrompt{
		ID:           s.ID,
		Question:     s.Question,
		QuestionType: s.QuestionType,
		Options:      s.Options,
	}
}

// Quiz is an authored, ordered collection of slides.
type Quiz struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	HostID string  `json:"hostId,omitempty"`
	Slides []Slide `json:"slides"`
}

// QuizSummary is one row of a host's quiz list.
type QuizSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	SlideCount int       `json:"slideCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OrderedSlides returns a copy of the slides sorted by position, then ID.
func (q Quiz) OrderedSlides() []Slide {
	out := make([]Slide, len(q.Slides))
	copy(out, q.Slides)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Phase is the lifecycle phase of a room.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseActive  Phase = "active"
	PhaseResults Phase = "results"
)

// Room is one live session of a quiz.
type Room struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	QuizID            string    `json:"quizId"`
	HasStarted        bool      `json:"hasStarted"`
	CurrentSlideIndex int       `json:"currentSlideIndex"`
	WinnerCount       int       `json:"winnerCount"`
	AutoAdvance       bool      `json:"autoAdvance"`
	SlideDuration     int       `json:"slideDuration"`
	Slides            []Slide   `json:"slides,omitempty"` // snapshot taken at start
	HostToken         string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Phase derives the lifecycle phase from the stored flags.
func (r Room) Phase() Phase {
	switch {
	case !r.HasStarted:
		return PhaseLobby
	case r.CurrentSlideIndex == ResultsIndex:
		return PhaseResults
	default:
		return PhaseActive
	}
}

// CurrentSlide returns the active slide, if any.
func (r Room) CurrentSlide() (Slide, bool) {
	if r.Phase() != PhaseActive || r.CurrentSlideIndex < 0 || r.CurrentSlideIndex >= len(r.Slides) {
		return Slide{}, false
	}
	return r.Slides[r.CurrentSlideIndex], true
}

// SlideByID finds a slide in the room snapshot.
func (r Room) SlideByID(id int64) (Slide, bool) {
	for _, s := range r.Slides {
		if s.ID == id {
			return s, true
		}
	}
	return Slide{}, false
}

// View is the player-safe projection of the room.
func (r Room) View() RoomView {
	view := RoomView{
		ID:            r.ID,
		Code:          r.Code,
		Phase:         r.Phase(),
		SlideIndex:    r.CurrentSlideIndex,
		SlideCount:    len(r.Slides),
		AutoAdvance:   r.AutoAdvance,
		SlideDuration: r.SlideDuration,
		UpdatedAt:     r.UpdatedAt,
	}
	if slide, ok := r.CurrentSlide(); ok {
		prompt := slide.Prompt()
		view.CurrentSlide = &prompt
	}
	return view
}

// RoomUpdate carries the fields to change on a room; nil means unchanged.
type RoomUpdate struct {
	HasStarted        *bool
	CurrentSlideIndex *int
	WinnerCount       *int
	AutoAdvance       *bool
	SlideDuration     *int
	Slides            []Slide
}

// Apply writes the set fields onto r.
func (u RoomUpdate) Apply(r *Room) {
	if u.HasStarted != nil {
		r.HasStarted = *u.HasStarted
	}
	if u.CurrentSlideIndex != nil {
		r.CurrentSlideIndex = *u.CurrentSlideIndex
	}
	if u.WinnerCount != nil {
		r.WinnerCount = *u.WinnerCount
	}
	if u.AutoAdvance != nil {
		r.AutoAdvance = *u.AutoAdvance
	}
	if u.SlideDuration != nil {
		r.SlideDuration = *u.SlideDuration
	}
	if u.Slides != nil {
		r.Slides = u.Slides
	}
}

// SlidePrompt is a slide without its answer key.
type SlidePrompt struct {
	ID           int64        `json:"id"`
	Question     string       `json:"question"`
	QuestionType QuestionType `json:"questionType"`
	Options      []string     `json:"options"`
}

// RoomView is what players and change subscribers receive.
type RoomView struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	Phase         Phase        `json:"phase"`
	SlideIndex    int          `json:"slideIndex"`
	SlideCount    int          `json:"slideCount"`
	CurrentSlide  *SlidePrompt `json:"currentSlide,omitempty"`
	AutoAdvance   bool         `json:"autoAdvance"`
	SlideDuration int          `json:"slideDuration"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// NormalizeRoomCode trims and upper-cases a typed room code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Player is an anonymous participant identified by a display name unique within the room.
type Player struct {
	RoomID   string    `json:"roomId"`
	Name     string    `json:"name"`
	Token    string    `json:"-"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Submission is one player's answer to one slide in one room.
type Submission struct {
	RoomID      string          `json:"roomId"`
	SlideID     int64           `json:"slideId"`
	PlayerName  string          `json:"playerName"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// SubmissionFilter narrows a submission listing; a zero SlideID lists all slides.
type SubmissionFilter struct {
	SlideID int64
}

// ScoreMap maps player name to total score.
type ScoreMap map[string]int

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Winner bool   `json:"winner"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomCode  string             `json:"roomCode"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Results is the final outcome of a room.
type Results struct {
	Scores      ScoreMap    `json:"scores"`
	Leaderboard Leaderboard `json:"leaderboard"`
	Winners     []string    `json:"winners"`
}

// SlideStats summarizes answers to the current slide for the host.
type SlideStats struct {
	SlideID      int64       `json:"slideId"`
	SlideIndex   int         `json:"slideIndex"`
	Answered     []string    `json:"answered"`
	OptionCounts map[int]int `json:"optionCounts"`
}

// Contact is what a winner volunteers after results.
type Contact struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// Winner records contact details of a ranked winner.
type Winner struct {
	RoomID     string    `json:"roomId"`
	PlayerName string    `json:"playerName"`
	Contact    Contact   `json:"contact"`
	CreatedAt  time.Time `json:"createdAt"`
}
