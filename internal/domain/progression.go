// Package domain implements the progression engine: it turns one completed
// workout into XP, coins, level, streak, exercise progress, achievement and
// goal updates inside a single unit of work.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrEmptyWorkout is returned when a completion request lists no exercises.
	ErrEmptyWorkout = errors.New("workout has no exercises")
	// ErrUserNotFound is returned when the user id does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidTimeRange is returned when a workout finishes before it starts.
	ErrInvalidTimeRange = errors.New("workout finished before it started")
	// ErrInvalidSetMagnitude is returned when a set reports negative reps or seconds.
	ErrInvalidSetMagnitude = errors.New("set magnitude must not be negative")
	// ErrSessionNotFound is returned when a referenced session does not exist for the user.
	ErrSessionNotFound = errors.New("workout session not found")
	// ErrSessionNotActive is returned when a referenced session was cancelled.
	ErrSessionNotActive = errors.New("workout session is not active")
	// ErrSessionAlreadyCompleted is returned when a completed session is submitted again.
	ErrSessionAlreadyCompleted = errors.New("workout session already completed")
	// ErrInvalidGoal is returned when a goal has an unknown type, a
	// non-positive target or a negative duration.
	ErrInvalidGoal = errors.New("invalid goal")
)

// SessionStatus is the lifecycle state of a workout session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// UserProgression is the progression record owned by the processor while a
// completion runs.
type UserProgression struct {
	UserID           string
	Level            int
	TotalXP          int
	Coins            int
	CurrentStreak    int
	MaxStreak        int
	LastActivityDate *time.Time
	UpdatedAt        time.Time
}

// WorkoutSession is one workout submission.
type WorkoutSession struct {
	ID                   string
	UserID               string
	Status               SessionStatus
	StartedAt            time.Time
	FinishedAt           *time.Time
	DurationSeconds      int
	StreakMultiplier     float64
	TotalXPEarned        int
	TotalCoinsEarned     int
	TotalReps            int
	TotalDurationSeconds int
	CreatedAt            time.Time
}

// WorkoutExerciseEntry is one exercise's contribution to a session.
type WorkoutExerciseEntry struct {
	ID                   string
	SessionID            string
	ExerciseSlug         string
	Sets                 []int
	IsTimed              bool
	SetsCompleted        int
	TotalReps            int
	TotalDurationSeconds int
	XPEarned             int
	CoinsEarned          int
}

// ExerciseProgress accumulates a user's lifetime stats for one exercise.
type ExerciseProgress struct {
	UserID             string
	ExerciseSlug       string
	TotalRepsEver      int
	BestSingleSet      int
	TimesPerformed     int
	LastPerformedAt    time.Time
	RecommendedUpgrade bool
}

// AchievementUnlock records that a user satisfied an achievement.
type AchievementUnlock struct {
	ID              string
	UserID          string
	AchievementSlug string
	UnlockedAt      time.Time
}

// Goal is a user-chosen numeric target with a validity window.
type Goal struct {
	ID           string
	UserID       string
	GoalType     string
	TargetValue  int
	CurrentValue int
	StartDate    time.Time
	EndDate      time.Time
	Completed    bool
	CompletedAt  *time.Time
}

// NotificationType tags an outbound notification event.
type NotificationType string

const (
	NotificationLevelUp       NotificationType = "level_up"
	NotificationAchievement   NotificationType = "achievement"
	NotificationGoalCompleted NotificationType = "goal_completed"
)

// NotificationEvent is emitted for delivery by an external sink; it is not
// part of the committed progression state.
type NotificationEvent struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	CreatedAt time.Time
}

// ExerciseSubmission is one exercise inside a completion request.
type ExerciseSubmission struct {
	ExerciseSlug  string
	SetMagnitudes []int
	IsTimed       bool
}

// WorkoutCompletionRequest is the input of ProcessWorkoutCompletion. SessionID
// is optional; when set the referenced active session is finalized instead of
// creating a new one.
type WorkoutCompletionRequest struct {
	UserID     string
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Exercises  []ExerciseSubmission
}

// UnlockedAchievement describes an achievement granted by a completion.
type UnlockedAchievement struct {
	Slug       string
	Name       string
	XPReward   int
	CoinReward int
}

// WorkoutSummary aggregates the submitted workout for display.
type WorkoutSummary struct {
	TotalExercises  int
	TotalSets       int
	TotalReps       int
	DurationSeconds int
	DurationMinutes int
}

// WorkoutCompletionResult is the public outcome of a completion.
type WorkoutCompletionResult struct {
	SessionID        string
	TotalXP          int
	BonusXP          int
	TotalCoins       int
	LevelUp          bool
	OldLevel         int
	NewLevel         int
	NewAchievements  []UnlockedAchievement
	CompletedGoals   []string
	Streak           int
	SkippedExercises []string
	Summary          WorkoutSummary
}
