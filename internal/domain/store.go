package domain

import (
	"context"
	"time"
)

// ExerciseDefinition is read-only catalog data for one exercise.
type ExerciseDefinition struct {
	Slug          string
	Name          string
	BaseXP        int
	Difficulty    int
	IsTimed       bool
	HarderVariant string
}

// ConditionType names the rule an achievement is evaluated with.
type ConditionType string

const (
	ConditionTotalWorkouts ConditionType = "total_workouts"
	ConditionStreak        ConditionType = "streak"
	ConditionLevel         ConditionType = "level"
	ConditionTotalXP       ConditionType = "total_xp"
	ConditionExerciseReps  ConditionType = "exercise_reps"
	ConditionTimeOfDay     ConditionType = "time_of_day"
)

// AchievementCondition is the declarative rule of an achievement. Exercise may
// end in "*" to match every exercise slug with that prefix. Before and After
// are "HH:MM" cutoffs for time_of_day rules.
type AchievementCondition struct {
	Type     ConditionType
	Value    int
	Exercise string
	Before   string
	After    string
}

// AchievementDefinition is read-only catalog data for one achievement.
type AchievementDefinition struct {
	Slug        string
	Name        string
	Description string
	Condition   AchievementCondition
	XPReward    int
	CoinReward  int
}

// ExerciseCatalog resolves exercises by slug.
type ExerciseCatalog interface {
	Exercise(slug string) (ExerciseDefinition, bool)
}

// AchievementCatalog lists every achievement definition.
type AchievementCatalog interface {
	Achievements() []AchievementDefinition
}

// UserStore reads and writes progression records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*UserProgression, error)
	SaveUser(ctx context.Context, user UserProgression) error
}

// SessionStore persists workout sessions and their exercise entries.
type SessionStore interface {
	GetSession(ctx context.Context, userID, sessionID string) (*WorkoutSession, error)
	CreateSession(ctx context.Context, session WorkoutSession) error
	SaveSession(ctx context.Context, session WorkoutSession) error
	AddExerciseEntry(ctx context.Context, entry WorkoutExerciseEntry) error
	CountCompletedSessions(ctx context.Context, userID string) (int, error)
	LastCompletedSession(ctx context.Context, userID string) (*WorkoutSession, error)
}

// ProgressStore persists per-exercise lifetime progress.
type ProgressStore interface {
	// GetOrCreateProgress returns the stored row, creating an empty one when
	// absent; created reports which branch was taken.
	GetOrCreateProgress(ctx context.Context, userID, exerciseSlug string, now time.Time) (progress ExerciseProgress, created bool, err error)
	SaveProgress(ctx context.Context, progress ExerciseProgress) error
	ListProgress(ctx context.Context, userID string) ([]ExerciseProgress, error)
}

// AchievementStore persists achievement unlocks.
type AchievementStore interface {
	ListUnlocks(ctx context.Context, userID string) ([]AchievementUnlock, error)
	// InsertUnlock inserts the unlock unless one already exists for the
	// (user, achievement) pair; inserted is false on conflict.
	InsertUnlock(ctx context.Context, unlock AchievementUnlock) (inserted bool, err error)
}

// GoalStore persists user goals.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal Goal) error
	// ListGoals returns every goal of the user ordered by end date, goals
	// without one last.
	ListGoals(ctx context.Context, userID string) ([]Goal, error)
	ListOpenGoals(ctx context.Context, userID string) ([]Goal, error)
	SaveGoal(ctx context.Context, goal Goal) error
}

// Tx is one transactional unit of work. All mutations staged through it are
// committed together or not at all.
type Tx interface {
	UserStore
	SessionStore
	ProgressStore
	AchievementStore
	GoalStore
}

// Store opens units of work. WithinUserTx commits when fn returns nil and
// rolls back otherwise. Implementations must serialize units of work for the
// same user.
type Store interface {
	WithinUserTx(ctx context.Context, userID string, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier delivers notification events on a best-effort basis.
type Notifier interface {
	Notify(ctx context.Context, events []NotificationEvent) error
}
