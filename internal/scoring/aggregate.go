package scoring

import (
	"sort"

	"quizme/internal/domain"
)

// Issue is a submission that could not be graded and counted as zero.
type Issue struct {
	PlayerName string
	SlideID    int64
	Err        error
}

// Result is the outcome of an aggregation pass.
type Result struct {
	Scores domain.ScoreMap
	Issues []Issue
}

// Aggregate folds submissions through Grade into a score map.
//
// Every player in players starts at 0 even without submissions, as does every
// player that appears on a submission. Submissions for slides missing from
// slides are skipped without an issue. The result does not depend on the
// order of submissions.
func Aggregate(slides []domain.Slide, submissions []domain.Submission, players []domain.Player) Result {
	byID := make(map[int64]domain.Slide, len(slides))
	for _, s := range slides {
		byID[s.ID] = s
	}

	scores := make(domain.ScoreMap, len(players))
	for _, p := range players {
		scores[p.Name] = 0
	}

	var issues []Issue
	for _, sub := range submissions {
		slide, ok := byID[sub.SlideID]
		if !ok {
			continue
		}
		if _, seen := scores[sub.PlayerName]; !seen {
			scores[sub.PlayerName] = 0
		}
		delta, err := GradePayload(slide, sub.Payload)
		if err != nil {
			issues = append(issues, Issue{PlayerName: sub.PlayerName, SlideID: sub.SlideID, Err: err})
			continue
		}
		scores[sub.PlayerName] += delta
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].SlideID != issues[j].SlideID {
			return issues[i].SlideID < issues[j].SlideID
		}
		return issues[i].PlayerName < issues[j].PlayerName
	})
	return Result{Scores: scores, Issues: issues}
}
