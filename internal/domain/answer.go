package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QuestionType selects the answer shape and grading rule of a slide.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	Checkbox       QuestionType = "checkbox"
	Scale          QuestionType = "scale"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, Checkbox, Scale:
		return true
	}
	return false
}

// Answer is an answer key or a player submission, tagged by question type.
// Implementations: ChoiceAnswer, CheckboxAnswer, ScaleAnswer.
type Answer interface {
	QuestionType() QuestionType
	// Validate checks the answer against a slide with optionCount options.
	Validate(optionCount int) error
}

// ChoiceAnswer is a single selected option index.
type ChoiceAnswer int

// CheckboxAnswer is a set of selected option indices.
type CheckboxAnswer []int

// ScaleAnswer is an ordering of option indices.
type ScaleAnswer []int

func (ChoiceAnswer) QuestionType() QuestionType   { return MultipleChoice }
func (CheckboxAnswer) QuestionType() QuestionType { return Checkbox }
func (ScaleAnswer) QuestionType() QuestionType    { return Scale }

func (a ChoiceAnswer) Validate(optionCount int) error {
	if int(a) < 0 || int(a) >= optionCount {
		return fmt.Errorf("option %d out of range [0,%d)", int(a), optionCount)
	}
	return nil
}

func (a CheckboxAnswer) Validate(optionCount int) error {
	if len(a) == 0 {
		return fmt.Errorf("no options selected")
	}
	seen := make(map[int]struct{}, len(a))
	for _, idx := range a {
		if idx < 0 || idx >= optionCount {
			return fmt.Errorf("option %d out of range [0,%d)", idx, optionCount)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("option %d selected twice", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

func (a ScaleAnswer) Validate(optionCount int) error {
	if len(a) != optionCount {
		return fmt.Errorf("ordering has %d entries, want %d", len(a), optionCount)
	}
	seen := make([]bool, optionCount)
	for _, idx := range a {
		if idx < 0 || idx >= optionCount || seen[idx] {
			return fmt.Errorf("ordering is not a permutation of 0..%d", optionCount-1)
		}
		seen[idx] = true
	}
	return nil
}

// DecodeAnswer parses a JSON payload into the answer variant for qt.
// A multiple choice payload may be a number or a numeric string.
func DecodeAnswer(qt QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("empty %s answer", qt)
	}
	switch qt {
	case MultipleChoice:
		idx, err := decodeIndex(raw)
		if err != nil {
			return nil, err
		}
		return ChoiceAnswer(idx), nil
	case Checkbox:
		indices, err := decodeIndices(raw)
		if err != nil {
			return nil, err
		}
		return CheckboxAnswer(indices), nil
	case Scale:
		indices, err := decodeIndices(raw)
		if err != nil {
			return nil, err
		}
		return ScaleAnswer(indices), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestionType, qt)
	}
}

func decodeIndex(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("decode option index: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("decode option index %q: %w", s, err)
	}
	return n, nil
}

// decodeIndices accepts a JSON array, or a JSON string holding an array
// (payloads that were double encoded on the way in).
func decodeIndices(raw json.RawMessage) ([]int, error) {
	var out []int
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode option indices: %w", err)
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode option indices %q: %w", s, err)
	}
	return out, nil
}
