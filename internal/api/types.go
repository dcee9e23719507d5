package api

import (
	"time"

	"example.com/progression/internal/domain"
)

// ExerciseInput is one exercise of a completion payload. Sets holds reps, or
// seconds for timed exercises.
type ExerciseInput struct {
	ExerciseSlug string `json:"exercise_slug"`
	Sets         []int  `json:"sets"`
	IsTimed      bool   `json:"is_timed"`
}

// CompleteWorkoutRequest is the payload for POST /v1/workouts/complete.
type CompleteWorkoutRequest struct {
	SessionID  string          `json:"session_id,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Exercises  []ExerciseInput `json:"exercises"`
}

func (r CompleteWorkoutRequest) toDomain(userID string) domain.WorkoutCompletionRequest {
	exercises := make([]domain.ExerciseSubmission, 0, len(r.Exercises))
	for _, ex := range r.Exercises {
		exercises = append(exercises, domain.ExerciseSubmission{
			ExerciseSlug:  ex.ExerciseSlug,
			SetMagnitudes: ex.Sets,
			IsTimed:       ex.IsTimed,
		})
	}
	return domain.WorkoutCompletionRequest{
		UserID:     userID,
		SessionID:  r.SessionID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Exercises:  exercises,
	}
}

// StartWorkoutRequest is the optional payload for POST /v1/workouts/start.
type StartWorkoutRequest struct {
	StartedAt time.Time `json:"started_at"`
}

// CreateGoalRequest is the payload for POST /v1/goals.
type CreateGoalRequest struct {
	GoalType     string `json:"goal_type"`
	TargetValue  int    `json:"target_value"`
	DurationDays int    `json:"duration_days"`
}

func (r CreateGoalRequest) toDomain() domain.NewGoal {
	return domain.NewGoal{GoalType: r.GoalType, TargetValue: r.TargetValue, DurationDays: r.DurationDays}
}

type GoalView struct {
	GoalID          string     `json:"goal_id"`
	GoalType        string     `json:"goal_type"`
	TargetValue     int        `json:"target_value"`
	CurrentValue    int        `json:"current_value"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ProgressPercent float64    `json:"progress_percent"`
}

// GoalListResponse is the body returned by GET /v1/goals.
type GoalListResponse struct {
	Goals []GoalView `json:"goals"`
}

type AchievementView struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	XPReward   int    `json:"xp_reward"`
	CoinReward int    `json:"coin_reward"`
}

type SummaryView struct {
	TotalExercises  int `json:"total_exercises"`
	TotalSets       int `json:"total_sets"`
	TotalReps       int `json:"total_reps"`
	DurationSeconds int `json:"duration_seconds"`
	DurationMinutes int `json:"duration_minutes"`
}

// CompleteWorkoutResponse is the body returned by POST /v1/workouts/complete.
type CompleteWorkoutResponse struct {
	SessionID        string            `json:"session_id"`
	TotalXP          int               `json:"total_xp"`
	BonusXP          int               `json:"bonus_xp"`
	TotalCoins       int               `json:"total_coins"`
	LevelUp          bool              `json:"level_up"`
	OldLevel         int               `json:"old_level"`
	NewLevel         int               `json:"new_level"`
	NewAchievements  []AchievementView `json:"new_achievements"`
	CompletedGoals   []string          `json:"completed_goals"`
	Streak           int               `json:"streak"`
	SkippedExercises []string          `json:"skipped_exercises,omitempty"`
	Summary          SummaryView       `json:"summary"`
}

// SessionView describes a workout session.
type SessionView struct {
	SessionID        string     `json:"session_id"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	StreakMultiplier float64    `json:"streak_multiplier"`
}

// ProgressionView describes a user's level, currency and streak.
type ProgressionView struct {
	UserID           string     `json:"user_id"`
	Level            int        `json:"level"`
	TotalXP          int        `json:"total_xp"`
	Coins            int        `json:"coins"`
	CurrentStreak    int        `json:"current_streak"`
	MaxStreak        int        `json:"max_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

type UnlockView struct {
	Slug       string    `json:"slug"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

type ExerciseProgressView struct {
	ExerciseSlug       string    `json:"exercise_slug"`
	TotalRepsEver      int       `json:"total_reps_ever"`
	BestSingleSet      int       `json:"best_single_set"`
	TimesPerformed     int       `json:"times_performed"`
	LastPerformedAt    time.Time `json:"last_performed_at"`
	RecommendedUpgrade bool      `json:"recommended_upgrade"`
}

// ProfileResponse is the body returned by GET /v1/profile.
type ProfileResponse struct {
	ProgressionView
	XPToNextLevel int                    `json:"xp_to_next_level"`
	Achievements  []UnlockView           `json:"achievements"`
	Exercises     []ExerciseProgressView `json:"exercises"`
}

func toCompletionResponse(res *domain.WorkoutCompletionResult) CompleteWorkoutResponse {
	achievements := make([]AchievementView, 0, len(res.NewAchievements))
	for _, a := range res.NewAchievements {
		achievements = append(achievements, AchievementView{Slug: a.Slug, Name: a.Name, XPReward: a.XPReward, CoinReward: a.CoinReward})
	}
	goals := res.CompletedGoals
	if goals == nil {
		goals = []string{}
	}
	return CompleteWorkoutResponse{
		SessionID:        res.SessionID,
		TotalXP:          res.TotalXP,
		BonusXP:          res.BonusXP,
		TotalCoins:       res.TotalCoins,
		LevelUp:          res.LevelUp,
		OldLevel:         res.OldLevel,
		NewLevel:         res.NewLevel,
		NewAchievements:  achievements,
		CompletedGoals:   goals,
		Streak:           res.Streak,
		SkippedExercises: res.SkippedExercises,
		Summary: SummaryView{
			TotalExercises:  res.Summary.TotalExercises,
			TotalSets:       res.Summary.TotalSets,
			TotalReps:       res.Summary.TotalReps,
			DurationSeconds: res.Summary.DurationSeconds,
			DurationMinutes: res.Summary.DurationMinutes,
		},
	}
}

func toSessionView(s domain.WorkoutSession) SessionView {
	return SessionView{
		SessionID:        s.ID,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
		StreakMultiplier: s.StreakMultiplier,
	}
}

func toProgressionView(u domain.UserProgression) ProgressionView {
	return ProgressionView{
		UserID:           u.UserID,
		Level:            u.Level,
		TotalXP:          u.TotalXP,
		Coins:            u.Coins,
		CurrentStreak:    u.CurrentStreak,
		MaxStreak:        u.MaxStreak,
		LastActivityDate: u.LastActivityDate,
	}
}

func toProfileResponse(p *domain.Profile) ProfileResponse {
	resp := ProfileResponse{
		ProgressionView: toProgressionView(p.Progression),
		XPToNextLevel:   p.XPToNextLevel,
		Achievements:    make([]UnlockView, 0, len(p.Achievements)),
		Exercises:       make([]ExerciseProgressView, 0, len(p.Exercises)),
	}
	for _, u := range p.Achievements {
		resp.Achievements = append(resp.Achievements, UnlockView{Slug: u.AchievementSlug, UnlockedAt: u.UnlockedAt})
	}
	for _, e := range p.Exercises {
		resp.Exercises = append(resp.Exercises, ExerciseProgressView{
			ExerciseSlug:       e.ExerciseSlug,
			TotalRepsEver:      e.TotalRepsEver,
			BestSingleSet:      e.BestSingleSet,
			TimesPerformed:     e.TimesPerformed,
			LastPerformedAt:    e.LastPerformedAt,
			RecommendedUpgrade: e.RecommendedUpgrade,
		})
	}
	return resp
}

func toGoalView(g domain.Goal) GoalView {
	view := GoalView{
		GoalID:          g.ID,
		GoalType:        g.GoalType,
		TargetValue:     g.TargetValue,
		CurrentValue:    g.CurrentValue,
		Completed:       g.Completed,
		CompletedAt:     g.CompletedAt,
		ProgressPercent: g.Progress(),
	}
	if !g.StartDate.IsZero() {
		start := g.StartDate
		view.StartDate = &start
	}
	if !g.EndDate.IsZero() {
		end := g.EndDate
		view.EndDate = &end
	}
	return view
}
