package bracket

import "errors"

var (
	// ErrConfiguration rejects generation input before anything is built.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidStateTransition leaves the match or bracket untouched.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrAdvancementConflict is returned when a decided match is re-advanced with the other participant.
	ErrAdvancementConflict = errors.New("advancement conflict")
	ErrMatchNotFound       = errors.New("match not found")
	ErrNotParticipant      = errors.New("winner is not part of this match")
	ErrBracketArchived     = errors.New("bracket is archived")
)
