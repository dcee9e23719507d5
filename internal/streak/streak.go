// Package streak implements the daily workout streak state machine.
package streak

import "time"

// State is the streak-relevant slice of a user's progression.
type State struct {
	Current      int
	Max          int
	LastActivity *time.Time // calendar day, nil when the user never trained
}

// Transition names the edge taken by Advance.
type Transition string

const (
	TransitionStarted   Transition = "started"
	TransitionExtended  Transition = "extended"
	TransitionUnchanged Transition = "unchanged"
	TransitionRestarted Transition = "restarted"
)

// Result is the state after applying today's activity.
type Result struct {
	State
	Transition Transition
}

// DayOf truncates t to midnight of its calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayOf(a, loc).Equal(DayOf(b, loc))
}

// Advance records activity on today. Activity already counted today leaves the
// counter untouched, so re-running a completion on the same day cannot
// increment twice.
func Advance(s State, today time.Time, loc *time.Location) Result {
	today = DayOf(today, loc)
	next := Result{State: s}

	switch {
	case s.LastActivity == nil:
		next.Current = 1
		next.Transition = TransitionStarted
	case DayOf(*s.LastActivity, loc).Equal(today):
		next.Transition = TransitionUnchanged
	case DayOf(*s.LastActivity, loc).Equal(today.AddDate(0, 0, -1)):
		next.Current = s.Current + 1
		next.Transition = TransitionExtended
	default:
		next.Current = 1
		next.Transition = TransitionRestarted
	}

	if next.Current > next.Max {
		next.Max = next.Current
	}
	next.LastActivity = &today
	return next
}
