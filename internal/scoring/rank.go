package scoring

import (
	"sort"
	"time"

	"quizme/internal/domain"
)

// Rank orders players by score descending. Ties go to whoever joined the room
// first, then to the lexically smaller name; players without a known join
// time sort after those with one.
func Rank(scores domain.ScoreMap, players []domain.Player) []domain.LeaderboardEntry {
	joined := make(map[string]time.Time, len(players))
	for _, p := range players {
		joined[p.Name] = p.JoinedAt
	}

	entries := make([]domain.LeaderboardEntry, 0, len(scores))
	for name, score := range scores {
		entries = append(entries, domain.LeaderboardEntry{Name: name, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ti, iok := joined[entries[i].Name]
		tj, jok := joined[entries[j].Name]
		if iok != jok {
			return iok
		}
		if iok && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return entries[i].Name < entries[j].Name
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// SelectWinners returns the names of the top winnerCount ranked players.
func SelectWinners(scores domain.ScoreMap, players []domain.Player, winnerCount int) []string {
	if winnerCount <= 0 {
		return []string{}
	}
	ranked := Rank(scores, players)
	if len(ranked) > winnerCount {
		ranked = ranked[:winnerCount]
	}
	names := make([]string, len(ranked))
	for i, e := range ranked {
		names[i] = e.Name
	}
	return names
}

// BuildResults ranks scores into a leaderboard and marks the winners.
func BuildResults(roomCode string, scores domain.ScoreMap, players []domain.Player, winnerCount int, now time.Time) domain.Results {
	winners := SelectWinners(scores, players, winnerCount)
	won := make(map[string]bool, len(winners))
	for _, name := range winners {
		won[name] = true
	}
	entries := Rank(scores, players)
	for i := range entries {
		entries[i].Winner = won[entries[i].Name]
	}
	return domain.Results{
		Scores: scores,
		Leaderboard: domain.Leaderboard{
			RoomCode:  roomCode,
			Entries:   entries,
			UpdatedAt: now,
		},
		Winners: winners,
	}
}
