package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a room code does not resolve to a room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomCodeTaken is returned by stores when a freshly generated code collides.
	ErrRoomCodeTaken = errors.New("room code already in use")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizInUse is returned when deleting a quiz that rooms still reference.
	ErrQuizInUse = errors.New("quiz is used by a room")
	// ErrInvalidSlide rejects an authored slide whose answer key does not fit.
	ErrInvalidSlide = errors.New("invalid slide")
	// ErrQuizHasNoSlides is returned when starting a room whose quiz is empty.
	ErrQuizHasNoSlides = errors.New("quiz has no slides")
	// ErrSlideNotFound indicates a submitted slide ID is not part of the room.
	ErrSlideNotFound = errors.New("slide not found")
	// ErrPlayerNameTaken is returned when another player already reserved the name in the room.
	ErrPlayerNameTaken = errors.New("player name already taken in this room")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrInvalidPlayerName rejects blank or oversized display names.
	ErrInvalidPlayerName = errors.New("invalid player name")
	// ErrUnauthorized is returned when a host or player token does not match.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition is returned when an action is not allowed in the room's current state.
	ErrInvalidTransition = errors.New("invalid room state transition")
	// ErrAdvanceInProgress rejects a host transition while another one is in flight for the room.
	ErrAdvanceInProgress = errors.New("room transition already in progress")
	// ErrRoomNotStarted rejects submissions before the host starts the quiz.
	ErrRoomNotStarted = errors.New("room has not started")
	// ErrRoomFinished rejects submissions once results are shown.
	ErrRoomFinished = errors.New("room already finished")
	// ErrResultsNotReady is returned when results are requested before the room ends.
	ErrResultsNotReady = errors.New("results not available yet")
	// ErrNotWinner rejects contact details from players outside the winner set.
	ErrNotWinner = errors.New("player is not a winner")
	// ErrInvalidSubmission rejects a submission whose shape does not fit the slide.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrMalformedSubmission marks a stored payload that cannot be decoded for grading.
	ErrMalformedSubmission = errors.New("malformed submission")
	// ErrMissingAnswerKey marks a slide without a usable answer key.
	ErrMissingAnswerKey = errors.New("slide has no answer key")
	// ErrUnknownQuestionType is returned for question types the grader does not know.
	ErrUnknownQuestionType = errors.New("unknown question type")
)
