package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"quizme/internal/domain"
)

const maxPlayerNameLength = 40

// Join reserves name in the room. A player that already holds the name can
// rejoin by presenting its token; anyone else gets domain.ErrPlayerNameTaken.
func (s *RoomService) Join(ctx context.Context, code, name, token string) (domain.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxPlayerNameLength {
		return domain.Player{}, domain.ErrInvalidPlayerName
	}
	room, err := s.Room(ctx, code)
	if err != nil {
		return domain.Player{}, err
	}

	if token != "" {
		existing, err := s.players.GetPlayer(ctx, room.ID, name)
		switch {
		case err == nil:
			if !sameToken(existing.Token, token) {
				return domain.Player{}, domain.ErrPlayerNameTaken
			}
			return existing, nil
		case !errors.Is(err, domain.ErrPlayerNotFound):
			return domain.Player{}, fmt.Errorf("fetch player: %w", err)
		}
	}

	player := domain.Player{
		RoomID:   room.ID,
		Name:     name,
		Token:    uuid.NewString(),
		JoinedAt: s.now(),
	}
	if err := s.players.AddPlayer(ctx, player); err != nil {
		if errors.Is(err, domain.ErrPlayerNameTaken) {
			return domain.Player{}, err
		}
		s.log.Error("join failed", "room_id", room.ID, "player", name, "error", err)
		return domain.Player{}, fmt.Errorf("join room: %w", err)
	}
	s.log.Info("player joined", "room_id", room.ID, "player", name)
	return player, nil
}

// Submit validates payload against the slide and stores it, replacing any
// earlier answer from the same player to the same slide. Answers to a slide
// other than the current one are accepted; they are graded by slide ID.
func (s *RoomService) Submit(ctx context.Context, code, name, token string, slideID int64, payload json.RawMessage) (domain.Submission, error) {
	room, err := s.Room(ctx, code)
	if err != nil {
		return domain.Submission{}, err
	}
	if _, err := s.authorizePlayer(ctx, room.ID, name, token); err != nil {
		return domain.Submission{}, err
	}
	switch room.Phase() {
	case domain.PhaseLobby:
		return domain.Submission{}, domain.ErrRoomNotStarted
	case domain.PhaseResults:
		return domain.Submission{}, domain.ErrRoomFinished
	}

	slide, ok := room.SlideByID(slideID)
	if !ok {
		return domain.Submission{}, domain.ErrSlideNotFound
	}
	answer, err := domain.DecodeAnswer(slide.QuestionType, payload)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}
	if err := answer.Validate(len(slide.Options)); err != nil {
		return domain.Submission{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}
	canonical, err := json.Marshal(answer)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("%w: %v", domain.ErrInvalidSubmission, err)
	}

	sub := domain.Submission{
		RoomID:      room.ID,
		SlideID:     slide.ID,
		PlayerName:  strings.TrimSpace(name),
		Payload:     canonical,
		SubmittedAt: s.now(),
	}
	if err := s.submissions.UpsertSubmission(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrRoomFinished) {
			return domain.Submission{}, err
		}
		s.log.Error("submission failed", "room_id", room.ID, "slide_id", slide.ID, "player", sub.PlayerName, "error", err)
		return domain.Submission{}, fmt.Errorf("store submission: %w", err)
	}
	s.log.Debug("submission stored", "room_id", room.ID, "slide_id", slide.ID, "player", sub.PlayerName)
	return sub, nil
}

// SlideStats reports who answered the current slide and how often each
// option was picked. Orderings are not tallied per option.
func (s *RoomService) SlideStats(ctx context.Context, code, hostToken string) (domain.SlideStats, error) {
	room, err := s.hostRoom(ctx, code, hostToken)
	if err != nil {
		return domain.SlideStats{}, err
	}
	slide, ok := room.CurrentSlide()
	if !ok {
		return domain.SlideStats{}, fmt.Errorf("%w: no active slide", domain.ErrInvalidTransition)
	}

	subs, err := s.submissions.ListSubmissions(ctx, room.ID, domain.SubmissionFilter{SlideID: slide.ID})
	if err != nil {
		return domain.SlideStats{}, fmt.Errorf("fetch submissions: %w", err)
	}

	stats := domain.SlideStats{
		SlideID:      slide.ID,
		SlideIndex:   room.CurrentSlideIndex,
		Answered:     make([]string, 0, len(subs)),
		OptionCounts: make(map[int]int),
	}
	for _, sub := range subs {
		stats.Answered = append(stats.Answered, sub.PlayerName)
		answer, err := domain.DecodeAnswer(slide.QuestionType, sub.Payload)
		if err != nil {
			s.log.Warn("unreadable submission in stats", "room_id", room.ID, "slide_id", slide.ID, "player", sub.PlayerName, "error", err)
			continue
		}
		switch a := answer.(type) {
		case domain.ChoiceAnswer:
			stats.OptionCounts[int(a)]++
		case domain.CheckboxAnswer:
			for _, idx := range a {
				stats.OptionCounts[idx]++
			}
		}
	}
	sort.Strings(stats.Answered)
	return stats, nil
}

// SubmitWinnerContact stores contact details from a player in the winner set.
func (s *RoomService) SubmitWinnerContact(ctx context.Context, code, name, token string, contact domain.Contact) (domain.Winner, error) {
	if err := s.validate.Struct(contact); err != nil {
		return domain.Winner{}, fmt.Errorf("contact: %w", err)
	}
	room, err := s.Room(ctx, code)
	if err != nil {
		return domain.Winner{}, err
	}
	player, err := s.authorizePlayer(ctx, room.ID, name, token)
	if err != nil {
		return domain.Winner{}, err
	}
	if room.Phase() != domain.PhaseResults {
		return domain.Winner{}, domain.ErrResultsNotReady
	}

	results, err := s.results(ctx, room)
	if err != nil {
		return domain.Winner{}, err
	}
	isWinner := false
	for _, w := range results.Winners {
		if w == player.Name {
			isWinner = true
			break
		}
	}
	if !isWinner {
		return domain.Winner{}, domain.ErrNotWinner
	}

	winner := domain.Winner{
		RoomID:     room.ID,
		PlayerName: player.Name,
		Contact:    contact,
		CreatedAt:  s.now(),
	}
	if err := s.winners.SaveWinner(ctx, winner); err != nil {
		s.log.Error("save winner failed", "room_id", room.ID, "player", player.Name, "error", err)
		return domain.Winner{}, fmt.Errorf("save winner: %w", err)
	}
	return winner, nil
}

// WinnerContacts lists the contact details winners have left for the host.
func (s *RoomService) WinnerContacts(ctx context.Context, code, hostToken string) ([]domain.Winner, error) {
	room, err := s.hostRoom(ctx, code, hostToken)
	if err != nil {
		return nil, err
	}
	winners, err := s.winners.ListWinners(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	return winners, nil
}

func (s *RoomService) authorizePlayer(ctx context.Context, roomID, name, token string) (domain.Player, error) {
	player, err := s.players.GetPlayer(ctx, roomID, strings.TrimSpace(name))
	if err != nil {
		return domain.Player{}, err
	}
	if !sameToken(player.Token, token) {
		return domain.Player{}, domain.ErrUnauthorized
	}
	return player, nil
}

func sameToken(want, got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
