package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/progression/internal/streak"
)

const (
	// GoalCompletionCoins is the coin bonus for completing a goal.
	GoalCompletionCoins = 5
	// DefaultGoalDurationDays is the window of a goal created without one.
	DefaultGoalDurationDays = 7
)

// Goal type tags.
const (
	GoalTotalWorkouts = "total_workouts"
	GoalTotalReps     = "total_reps"
	GoalTotalXP       = "total_xp"
	GoalWorkoutStreak = "workout_streak"
	GoalStreak        = "streak"

	exerciseGoalPrefix = "exercise_"
)

// Per-exercise goal metrics.
const (
	MetricReps  = "reps"
	MetricSets  = "sets"
	MetricTimes = "times"
)

// GoalKind is the parsed form of a goal type tag.
type GoalKind struct {
	Type         string
	ExerciseSlug string
	Metric       string
}

// ParseGoalType parses a goal type tag. Per-exercise tags have the form
// exercise_<slug>_<metric>; the metric is taken after the last underscore so
// slugs may themselves contain underscores.
func ParseGoalType(goalType string) (GoalKind, bool) {
	switch goalType {
	case GoalTotalWorkouts, GoalTotalReps, GoalTotalXP, GoalWorkoutStreak, GoalStreak:
		return GoalKind{Type: goalType}, true
	}
	rest, ok := strings.CutPrefix(goalType, exerciseGoalPrefix)
	if !ok {
		return GoalKind{}, false
	}
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return GoalKind{}, false
	}
	slug, metric := rest[:idx], rest[idx+1:]
	switch metric {
	case MetricReps, MetricSets, MetricTimes:
		return GoalKind{Type: exerciseGoalPrefix, ExerciseSlug: slug, Metric: metric}, true
	}
	return GoalKind{}, false
}

// GoalContribution is what one finished workout contributes to goals.
type GoalContribution struct {
	SessionReps int
	SessionXP   int
	Streak      int
	Exercises   []ExerciseSubmission
}

// GoalOutcome reports the goals completed by a pass.
type GoalOutcome struct {
	Completed []Goal
	Coins     int
	Events    []NotificationEvent
}

// GoalUpdater advances a user's open goals.
type GoalUpdater struct {
	store    GoalStore
	location *time.Location
}

// NewGoalUpdater constructs a GoalUpdater; validity windows are compared on
// calendar days in loc.
func NewGoalUpdater(store GoalStore, loc *time.Location) *GoalUpdater {
	if loc == nil {
		loc = time.UTC
	}
	return &GoalUpdater{store: store, location: loc}
}

// Apply advances every open goal whose validity window contains now. Goals
// outside their window are skipped silently. Completed goals are frozen.
func (g *GoalUpdater) Apply(ctx context.Context, userID string, c GoalContribution, now time.Time) (GoalOutcome, error) {
	goals, err := g.store.ListOpenGoals(ctx, userID)
	if err != nil {
		return GoalOutcome{}, fmt.Errorf("list goals: %w", err)
	}

	var out GoalOutcome
	for _, goal := range goals {
		if goal.Completed || !g.inWindow(goal, now) {
			continue
		}
		kind, ok := ParseGoalType(goal.GoalType)
		if !ok {
			continue
		}

		before := goal.CurrentValue
		goal.CurrentValue = advance(goal.CurrentValue, kind, c)

		if goal.CurrentValue >= goal.TargetValue {
			completedAt := now
			goal.Completed = true
			goal.CompletedAt = &completedAt
			out.Completed = append(out.Completed, goal)
			out.Coins += GoalCompletionCoins
			out.Events = append(out.Events, goalCompletedEvent(goal, now))
		} else if goal.CurrentValue == before {
			continue
		}

		if err := g.store.SaveGoal(ctx, goal); err != nil {
			return GoalOutcome{}, fmt.Errorf("save goal %s: %w", goal.ID, err)
		}
	}
	return out, nil
}

func (g *GoalUpdater) inWindow(goal Goal, now time.Time) bool {
	today := streak.DayOf(now, g.location)
	if !goal.StartDate.IsZero() && today.Before(streak.DayOf(goal.StartDate, g.location)) {
		return false
	}
	if !goal.EndDate.IsZero() && today.After(streak.DayOf(goal.EndDate, g.location)) {
		return false
	}
	return true
}

func advance(current int, kind GoalKind, c GoalContribution) int {
	switch kind.Type {
	case GoalTotalWorkouts:
		return current + 1
	case GoalTotalReps:
		return current + c.SessionReps
	case GoalTotalXP:
		return current + c.SessionXP
	case GoalWorkoutStreak, GoalStreak:
		return c.Streak
	case exerciseGoalPrefix:
		for _, ex := range c.Exercises {
			if ex.ExerciseSlug != kind.ExerciseSlug {
				continue
			}
			switch kind.Metric {
			case MetricReps:
				return current + sumOf(ex.SetMagnitudes)
			case MetricSets:
				return current + len(ex.SetMagnitudes)
			case MetricTimes:
				return current + 1
			}
		}
	}
	return current
}

func goalCompletedEvent(goal Goal, now time.Time) NotificationEvent {
	return NotificationEvent{
		UserID:    goal.UserID,
		Type:      NotificationGoalCompleted,
		Title:     "Goal reached!",
		Message:   fmt.Sprintf("Goal completed: %d %s", goal.TargetValue, goal.GoalType),
		CreatedAt: now,
	}
}

// NewGoal describes a goal to create. DurationDays of zero means
// DefaultGoalDurationDays; the window runs from today through today plus
// DurationDays.
type NewGoal struct {
	GoalType     string
	TargetValue  int
	DurationDays int
}

// Goals lets users set goals and read their progress.
type Goals struct {
	store     Store
	exercises ExerciseCatalog
	locker    *UserLocker
	location  *time.Location
}

// NewGoals constructs Goals. Pass the Processor's locker so goal changes
// serialize with completions. exercises may be nil, in which case
// per-exercise goals are not checked against the catalog.
func NewGoals(store Store, exercises ExerciseCatalog, locker *UserLocker, loc *time.Location) *Goals {
	if locker == nil {
		locker = NewUserLocker()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Goals{store: store, exercises: exercises, locker: locker, location: loc}
}

// Create validates and stores a goal for a registered user.
func (g *Goals) Create(ctx context.Context, userID string, in NewGoal, now time.Time) (*Goal, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	if err := g.validate(in); err != nil {
		return nil, err
	}
	days := in.DurationDays
	if days == 0 {
		days = DefaultGoalDurationDays
	}
	start := streak.DayOf(now, g.location)

	unlock := g.locker.Lock(userID)
	defer unlock()

	var goal Goal
	err := g.store.WithinUserTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		goal = Goal{
			ID:          uuid.NewString(),
			UserID:      userID,
			GoalType:    in.GoalType,
			TargetValue: in.TargetValue,
			StartDate:   start,
			EndDate:     start.AddDate(0, 0, days),
		}
		return tx.CreateGoal(ctx, goal)
	})
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// List returns the user's goals. With activeOnly, goals whose window ended
// before today are left out; completed goals inside their window stay.
func (g *Goals) List(ctx context.Context, userID string, activeOnly bool, now time.Time) ([]Goal, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}

	var goals []Goal
	err := g.store.WithinUserTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		all, err := tx.ListGoals(ctx, userID)
		if err != nil {
			return fmt.Errorf("list goals: %w", err)
		}
		today := streak.DayOf(now, g.location)
		goals = make([]Goal, 0, len(all))
		for _, goal := range all {
			if activeOnly && !goal.EndDate.IsZero() && today.After(streak.DayOf(goal.EndDate, g.location)) {
				continue
			}
			goals = append(goals, goal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return goals, nil
}

func (g *Goals) validate(in NewGoal) error {
	kind, ok := ParseGoalType(in.GoalType)
	if !ok {
		return fmt.Errorf("%w: unknown goal type %q", ErrInvalidGoal, in.GoalType)
	}
	if in.TargetValue <= 0 {
		return fmt.Errorf("%w: target must be positive", ErrInvalidGoal)
	}
	if in.DurationDays < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidGoal)
	}
	if kind.ExerciseSlug != "" && g.exercises != nil {
		if _, ok := g.exercises.Exercise(kind.ExerciseSlug); !ok {
			return fmt.Errorf("%w: unknown exercise %q", ErrInvalidGoal, kind.ExerciseSlug)
		}
	}
	return nil
}

// Progress reports how far a goal is toward its target, capped at 100.
func (goal Goal) Progress() float64 {
	if goal.TargetValue <= 0 {
		return 0
	}
	pct := float64(goal.CurrentValue) / float64(goal.TargetValue) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
