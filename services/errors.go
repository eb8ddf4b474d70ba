package services

import "errors"

// Engine error taxonomy. HTTP and realtime layers translate these; the engine
// itself never talks status codes.
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrNotParticipant   = errors.New("caller is not a participant of this match")
	ErrWinnerNotInMatch = errors.New("winner is not a participant of this match")
	ErrInvalidScores    = errors.New("scores must contain at least 2 distinct player entries")
	ErrInvalidEntryFee  = errors.New("entry fee must be non-negative")
	ErrSelfChallenge    = errors.New("cannot challenge yourself")
	ErrMissingFields    = errors.New("required fields missing")
	ErrInvalidStatus    = errors.New("match is not in a state that allows this transition")
)
