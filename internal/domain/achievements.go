package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AchievementSource is the state the rule engine reads and the unlock table it
// writes.
type AchievementSource interface {
	AchievementStore
	CountCompletedSessions(ctx context.Context, userID string) (int, error)
	LastCompletedSession(ctx context.Context, userID string) (*WorkoutSession, error)
	ListProgress(ctx context.Context, userID string) ([]ExerciseProgress, error)
}

// AchievementEngine evaluates the achievement catalog against a user's
// current aggregate state.
type AchievementEngine struct {
	catalog  AchievementCatalog
	location *time.Location
}

// NewAchievementEngine constructs an AchievementEngine. Time-of-day rules are
// evaluated on the wall clock of loc.
func NewAchievementEngine(catalog AchievementCatalog, loc *time.Location) *AchievementEngine {
	if loc == nil {
		loc = time.UTC
	}
	return &AchievementEngine{catalog: catalog, location: loc}
}

// Evaluate unlocks every achievement the user newly satisfies and credits its
// rewards onto user. It must run after XP, level, streak and exercise
// progress were updated. All conditions are checked against the state as it
// was on entry, so unlocks within one pass never depend on each other.
func (e *AchievementEngine) Evaluate(ctx context.Context, src AchievementSource, user *UserProgression, now time.Time) ([]UnlockedAchievement, error) {
	unlocks, err := src.ListUnlocks(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	unlocked := make(map[string]struct{}, len(unlocks))
	for _, u := range unlocks {
		unlocked[u.AchievementSlug] = struct{}{}
	}

	facts := &achievementFacts{src: src, userID: user.UserID}
	snapshot := *user

	var satisfied []AchievementDefinition
	for _, def := range e.catalog.Achievements() {
		if _, ok := unlocked[def.Slug]; ok {
			continue
		}
		ok, err := e.satisfied(ctx, def.Condition, snapshot, facts)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", def.Slug, err)
		}
		if ok {
			satisfied = append(satisfied, def)
		}
	}

	granted := make([]UnlockedAchievement, 0, len(satisfied))
	for _, def := range satisfied {
		inserted, err := src.InsertUnlock(ctx, AchievementUnlock{
			ID:              uuid.NewString(),
			UserID:          user.UserID,
			AchievementSlug: def.Slug,
			UnlockedAt:      now,
		})
		if err != nil {
			return nil, fmt.Errorf("insert unlock %s: %w", def.Slug, err)
		}
		if !inserted {
			// Lost a race with another writer; the achievement is already held.
			continue
		}
		user.TotalXP += def.XPReward
		user.Coins += def.CoinReward
		granted = append(granted, UnlockedAchievement{
			Slug:       def.Slug,
			Name:       def.Name,
			XPReward:   def.XPReward,
			CoinReward: def.CoinReward,
		})
	}
	return granted, nil
}

func (e *AchievementEngine) satisfied(ctx context.Context, cond AchievementCondition, user UserProgression, facts *achievementFacts) (bool, error) {
	switch cond.Type {
	case ConditionTotalWorkouts:
		count, err := facts.completedWorkouts(ctx)
		if err != nil {
			return false, err
		}
		return count >= cond.Value, nil
	case ConditionStreak:
		return user.CurrentStreak >= cond.Value, nil
	case ConditionLevel:
		return user.Level >= cond.Value, nil
	case ConditionTotalXP:
		return user.TotalXP >= cond.Value, nil
	case ConditionExerciseReps:
		reps, err := facts.repsMatching(ctx, cond.Exercise)
		if err != nil {
			return false, err
		}
		return reps >= cond.Value, nil
	case ConditionTimeOfDay:
		last, err := facts.lastWorkout(ctx)
		if err != nil || last == nil || last.FinishedAt == nil {
			return false, err
		}
		return e.matchesTimeOfDay(cond, *last.FinishedAt)
	default:
		return false, nil
	}
}

func (e *AchievementEngine) matchesTimeOfDay(cond AchievementCondition, finished time.Time) (bool, error) {
	local := finished.In(e.location)
	clock := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second

	switch {
	case cond.Before != "":
		cutoff, err := ParseClock(cond.Before)
		if err != nil {
			return false, err
		}
		return clock < cutoff, nil
	case cond.After != "":
		cutoff, err := ParseClock(cond.After)
		if err != nil {
			return false, err
		}
		return clock > cutoff, nil
	}
	return false, nil
}

// ParseClock parses an "HH:MM" cutoff into the offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// MatchesExercisePattern reports whether slug matches pattern, where a
// trailing "*" matches any suffix.
func MatchesExercisePattern(pattern, slug string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(slug, prefix)
	}
	return pattern == slug
}

// achievementFacts loads aggregate state lazily, once per evaluation pass.
type achievementFacts struct {
	src    AchievementSource
	userID string

	workouts *int
	progress []ExerciseProgress
	loaded   bool
	last     *WorkoutSession
	lastDone bool
}

func (f *achievementFacts) completedWorkouts(ctx context.Context) (int, error) {
	if f.workouts == nil {
		count, err := f.src.CountCompletedSessions(ctx, f.userID)
		if err != nil {
			return 0, err
		}
		f.workouts = &count
	}
	return *f.workouts, nil
}

func (f *achievementFacts) repsMatching(ctx context.Context, pattern string) (int, error) {
	if !f.loaded {
		progress, err := f.src.ListProgress(ctx, f.userID)
		if err != nil {
			return 0, err
		}
		f.progress = progress
		f.loaded = true
	}
	total := 0
	for _, p := range f.progress {
		if MatchesExercisePattern(pattern, p.ExerciseSlug) {
			total += p.TotalRepsEver
		}
	}
	return total, nil
}

func (f *achievementFacts) lastWorkout(ctx context.Context) (*WorkoutSession, error) {
	if !f.lastDone {
		last, err := f.src.LastCompletedSession(ctx, f.userID)
		if err != nil {
			return nil, err
		}
		f.last = last
		f.lastDone = true
	}
	return f.last, nil
}
