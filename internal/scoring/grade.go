// Package scoring grades submissions, folds them into per-player scores and
// ranks the result. Everything here is pure; callers own logging and storage.
package scoring

import (
	"encoding/json"
	"fmt"

	"quizme/internal/domain"
)

// Grade returns the score delta of submission against key.
//
//   - multiple choice: 1 on an exact match, else 0
//   - checkbox: +1 per selected index in the key, -1 per selected index not in it
//   - scale: +1 per position where the orderings agree
func Grade(key, submission domain.Answer) (int, error) {
	if key == nil {
		return 0, domain.ErrMissingAnswerKey
	}
	switch k := key.(type) {
	case domain.ChoiceAnswer:
		s, ok := submission.(domain.ChoiceAnswer)
		if !ok {
			return 0, mismatch(key, submission)
		}
		if s == k {
			return 1, nil
		}
		return 0, nil

	case domain.CheckboxAnswer:
		s, ok := submission.(domain.CheckboxAnswer)
		if !ok {
			return 0, mismatch(key, submission)
		}
		correct := make(map[int]struct{}, len(k))
		for _, idx := range k {
			correct[idx] = struct{}{}
		}
		delta := 0
		for _, idx := range s {
			if _, hit := correct[idx]; hit {
				delta++
			} else {
				delta--
			}
		}
		return delta, nil

	case domain.ScaleAnswer:
		s, ok := submission.(domain.ScaleAnswer)
		if !ok {
			return 0, mismatch(key, submission)
		}
		delta := 0
		for p := range k {
			if p < len(s) && s[p] == k[p] {
				delta++
			}
		}
		return delta, nil

	default:
		return 0, fmt.Errorf("%w: %T", domain.ErrUnknownQuestionType, key)
	}
}

// GradePayload decodes a stored payload for slide and grades it.
func GradePayload(slide domain.Slide, payload json.RawMessage) (int, error) {
	if !slide.QuestionType.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownQuestionType, slide.QuestionType)
	}
	submission, err := domain.DecodeAnswer(slide.QuestionType, payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformedSubmission, err)
	}
	return Grade(slide.Answer, submission)
}

func mismatch(key, submission domain.Answer) error {
	if submission == nil {
		return fmt.Errorf("%w: missing %s answer", domain.ErrMalformedSubmission, key.QuestionType())
	}
	return fmt.Errorf("%w: %s answer for %s slide", domain.ErrMalformedSubmission, submission.QuestionType(), key.QuestionType())
}
