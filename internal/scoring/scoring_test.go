package scoring

import (
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"quizme/internal/domain"
)

func TestGradeRules(t *testing.T) {
	cases := []struct {
		name string
		key  domain.Answer
		sub  domain.Answer
		want int
	}{
		{"choice hit", domain.ChoiceAnswer(2), domain.ChoiceAnswer(2), 1},
		{"choice miss", domain.ChoiceAnswer(2), domain.ChoiceAnswer(1), 0},
		{"checkbox hit and wrong pick cancel", domain.CheckboxAnswer{0, 2}, domain.CheckboxAnswer{0, 1}, 0},
		{"checkbox all wrong goes negative", domain.CheckboxAnswer{0}, domain.CheckboxAnswer{1, 2, 3}, -3},
		{"checkbox omission is free", domain.CheckboxAnswer{0, 1, 2}, domain.CheckboxAnswer{1}, 1},
		{"scale exact", domain.ScaleAnswer{2, 0, 1}, domain.ScaleAnswer{2, 0, 1}, 3},
		{"scale one position", domain.ScaleAnswer{2, 0, 1}, domain.ScaleAnswer{0, 2, 1}, 1},
		{"scale short submission", domain.ScaleAnswer{2, 0, 1}, domain.ScaleAnswer{2}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Grade(tc.key, tc.sub)
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
			again, _ := Grade(tc.key, tc.sub)
			if again != got {
				t.Fatalf("grade not deterministic: %d then %d", got, again)
			}
		})
	}
}

func TestGradeRejectsMismatchedShapes(t *testing.T) {
	_, err := Grade(domain.CheckboxAnswer{0}, domain.ChoiceAnswer(0))
	if !errors.Is(err, domain.ErrMalformedSubmission) {
		t.Fatalf("expected malformed submission, got %v", err)
	}
	_, err = Grade(nil, domain.ChoiceAnswer(0))
	if !errors.Is(err, domain.ErrMissingAnswerKey) {
		t.Fatalf("expected missing key, got %v", err)
	}
}

func TestGradePayloadUnknownType(t *testing.T) {
	_, err := GradePayload(domain.Slide{QuestionType: "slider"}, json.RawMessage(`1`))
	if !errors.Is(err, domain.ErrUnknownQuestionType) {
		t.Fatalf("expected unknown question type, got %v", err)
	}
}

func sampleSlides() []domain.Slide {
	return []domain.Slide{
		{ID: 1, QuestionType: domain.MultipleChoice, Options: []string{"a", "b", "c", "d"}, Answer: domain.ChoiceAnswer(2)},
		{ID: 2, QuestionType: domain.Checkbox, Options: []string{"a", "b", "c", "d"}, Answer: domain.CheckboxAnswer{0, 2}},
		{ID: 3, QuestionType: domain.Scale, Options: []string{"a", "b", "c"}, Answer: domain.ScaleAnswer{2, 0, 1}},
	}
}

func sub(player string, slide int64, payload string) domain.Submission {
	return domain.Submission{PlayerName: player, SlideID: slide, Payload: json.RawMessage(payload)}
}

func TestAggregateSumsAcrossSlides(t *testing.T) {
	subs := []domain.Submission{
		sub("alice", 1, `2`),
		sub("alice", 2, `[0,2]`),
		sub("alice", 3, `[2,0,1]`),
		sub("bob", 1, `"2"`),
		sub("bob", 2, `[1,3]`),
		sub("bob", 3, `[0,2,1]`),
		sub("carol", 99, `1`),
	}
	res := Aggregate(sampleSlides(), subs, nil)
	want := domain.ScoreMap{"alice": 6, "bob": 0}
	if !reflect.DeepEqual(res.Scores, want) {
		t.Fatalf("expected %v, got %v", want, res.Scores)
	}
	if len(res.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", res.Issues)
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	subs := []domain.Submission{
		sub("alice", 1, `2`),
		sub("bob", 2, `[0]`),
		sub("carol", 3, `[2,1,0]`),
		sub("alice", 2, `[1,2,3]`),
		sub("bob", 1, `0`),
		sub("dave", 3, `not json`),
	}
	base := Aggregate(sampleSlides(), subs, nil)

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Submission(nil), subs...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Aggregate(sampleSlides(), shuffled, nil)
		if !reflect.DeepEqual(got, base) {
			t.Fatalf("shuffle %d changed result: %+v vs %+v", i, got, base)
		}
	}
}

func TestAggregateMalformedCountsZeroAndReports(t *testing.T) {
	subs := []domain.Submission{
		sub("alice", 2, `"oops"`),
		sub("alice", 1, `2`),
	}
	res := Aggregate(sampleSlides(), subs, nil)
	if res.Scores["alice"] != 1 {
		t.Fatalf("expected alice=1, got %d", res.Scores["alice"])
	}
	if len(res.Issues) != 1 || !errors.Is(res.Issues[0].Err, domain.ErrMalformedSubmission) {
		t.Fatalf("expected one malformed issue, got %+v", res.Issues)
	}
}

func TestAggregateSeedsJoinedPlayers(t *testing.T) {
	players := []domain.Player{{Name: "alice"}, {Name: "lurker"}}
	res := Aggregate(sampleSlides(), []domain.Submission{sub("alice", 1, `2`)}, players)
	score, ok := res.Scores["lurker"]
	if !ok || score != 0 {
		t.Fatalf("expected lurker with 0, got %v (present=%v)", score, ok)
	}
}

func TestAggregateWithoutJoinedPlayersOmitsSilentOnes(t *testing.T) {
	res := Aggregate(sampleSlides(), []domain.Submission{sub("alice", 1, `2`)}, nil)
	if _, ok := res.Scores["bob"]; ok {
		t.Fatalf("bob never submitted and never joined, must not be scored")
	}
}

func TestSelectWinnersTieBreaksByJoinTime(t *testing.T) {
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	scores := domain.ScoreMap{"A": 5, "B": 5, "C": 3}
	players := []domain.Player{
		{Name: "B", JoinedAt: base},
		{Name: "A", JoinedAt: base.Add(time.Second)},
		{Name: "C", JoinedAt: base.Add(-time.Minute)},
	}
	got := SelectWinners(scores, players, 1)
	if len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected [B], got %v", got)
	}
}

func TestSelectWinnersTieBreaksByNameWithoutJoinTimes(t *testing.T) {
	got := SelectWinners(domain.ScoreMap{"B": 5, "A": 5, "C": 3}, nil, 1)
	if len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected [A], got %v", got)
	}
}

func TestSelectWinnersFewerPlayersThanSlots(t *testing.T) {
	got := SelectWinners(domain.ScoreMap{"A": 1, "B": 2}, nil, 5)
	if !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Fatalf("expected [B A], got %v", got)
	}
}

func TestBuildResultsMarksWinners(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	res := BuildResults("ABC123", domain.ScoreMap{"A": 1, "B": 3, "C": 2}, nil, 2, now)
	if !reflect.DeepEqual(res.Winners, []string{"B", "C"}) {
		t.Fatalf("unexpected winners %v", res.Winners)
	}
	entries := res.Leaderboard.Entries
	if entries[0].Rank != 1 || !entries[0].Winner || entries[2].Winner {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestBuildResultsAgreesWithSelectWinners(t *testing.T) {
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	scores := domain.ScoreMap{"A": 4, "B": 4, "C": 4, "D": 1}
	players := []domain.Player{
		{Name: "C", JoinedAt: base},
		{Name: "A", JoinedAt: base.Add(time.Second)},
		{Name: "B", JoinedAt: base.Add(time.Second)},
	}
	for _, n := range []int{0, 1, 2, 4, 9} {
		res := BuildResults("ABC123", scores, players, n, base)
		want := SelectWinners(scores, players, n)
		if !reflect.DeepEqual(res.Winners, want) {
			t.Fatalf("winnerCount %d: results winners %v, selected %v", n, res.Winners, want)
		}
		marked := 0
		for _, e := range res.Leaderboard.Entries {
			if e.Winner {
				marked++
			}
		}
		if marked != len(want) {
			t.Fatalf("winnerCount %d: %d entries marked, want %d", n, marked, len(want))
		}
	}
}
