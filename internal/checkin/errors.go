package checkin

import (
	"errors"
	"fmt"

	"github.com/fitnessquest/server/internal/combat"
)

var (
	ErrMemberNotFound    = errors.New("party member not found")
	ErrGoalNotFound      = errors.New("goal not found")
	ErrNoActiveMonster   = errors.New("party has no active monster")
	ErrUnknownAction     = errors.New("unknown action")
	ErrDuplicate         = errors.New("check-in already exists for this date")
	ErrSelfEncouragement = errors.New("members cannot encourage themselves")
	ErrAlreadyEncouraged = errors.New("already encouraged this teammate today")
	ErrNotTeammates      = errors.New("members are not in the same party")
	ErrNotEligible       = errors.New("not eligible for welcome back bonus")
	ErrConcurrentUpdate  = errors.New("concurrent update, retry")
)

// DuplicateCheckInError is returned when a member already checked in on a date.
// Existing carries the original record so callers can show it again.
type DuplicateCheckInError struct {
	Existing *Record
}

func (e *DuplicateCheckInError) Error() string {
	if e.Existing == nil {
		return ErrDuplicate.Error()
	}
	return fmt.Sprintf("%s (%s)", ErrDuplicate, e.Existing.Date.Format(DateLayout))
}

// Unwrap lets errors.Is(err, ErrDuplicate) match.
func (e *DuplicateCheckInError) Unwrap() error {
	return ErrDuplicate
}

// ActionNotUnlockedError is returned when streak or focus is too low for an action.
type ActionNotUnlockedError = combat.LockedError

// GoalNotFoundError names the goal id a caller referenced.
type GoalNotFoundError struct {
	GoalID string
}

func (e *GoalNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrGoalNotFound, e.GoalID)
}

func (e *GoalNotFoundError) Unwrap() error {
	return ErrGoalNotFound
}
