package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence/memory"
)

var fixedNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type stubCatalog struct {
	exercises    map[string]domain.ExerciseDefinition
	achievements []domain.AchievementDefinition
}

func (c stubCatalog) Exercise(slug string) (domain.ExerciseDefinition, bool) {
	ex, ok := c.exercises[slug]
	return ex, ok
}

func (c stubCatalog) Achievements() []domain.AchievementDefinition {
	return c.achievements
}

func newCatalog(achievements ...domain.AchievementDefinition) stubCatalog {
	return stubCatalog{
		exercises: map[string]domain.ExerciseDefinition{
			"push_up":         {Slug: "push_up", Name: "Push-up", BaseXP: 10, Difficulty: 1, HarderVariant: "diamond_push_up"},
			"diamond_push_up": {Slug: "diamond_push_up", Name: "Diamond Push-up", BaseXP: 14, Difficulty: 3},
			"plank":           {Slug: "plank", Name: "Plank", BaseXP: 8, Difficulty: 2, IsTimed: true},
		},
		achievements: achievements,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, events []domain.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return n.err
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newProcessor(store domain.Store, catalog stubCatalog, notifier domain.Notifier, now time.Time) *domain.Processor {
	return domain.NewProcessor(store, catalog, catalog,
		domain.WithLogger(quietLogger()),
		domain.WithClock(func() time.Time { return now }),
		domain.WithNotifier(notifier),
	)
}

func pushUps(sets ...int) domain.ExerciseSubmission {
	return domain.ExerciseSubmission{ExerciseSlug: "push_up", SetMagnitudes: sets}
}

func completion(userID string, exercises ...domain.ExerciseSubmission) domain.WorkoutCompletionRequest {
	return domain.WorkoutCompletionRequest{
		UserID:     userID,
		StartedAt:  fixedNow.Add(-10 * time.Minute),
		FinishedAt: fixedNow,
		Exercises:  exercises,
	}
}

var firstWorkout = domain.AchievementDefinition{
	Slug:       "first_workout",
	Name:       "First Step",
	Condition:  domain.AchievementCondition{Type: domain.ConditionTotalWorkouts, Value: 1},
	XPReward:   50,
	CoinReward: 5,
}

func TestProcessWorkoutCompletionNewUser(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	notifier := &recordingNotifier{}
	p := newProcessor(store, newCatalog(firstWorkout), notifier, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10, 10, 10)))
	require.NoError(t, err)

	// 10 base * 1.0 difficulty * 1.2 volume * 1.0 streak * 1.2 first-of-day = 14 per set.
	require.Equal(t, 42, res.TotalXP)
	require.Equal(t, 50, res.BonusXP)
	require.Equal(t, 5, res.TotalCoins)
	require.Equal(t, 1, res.Streak)
	require.False(t, res.LevelUp)
	require.Equal(t, 1, res.OldLevel)
	require.Equal(t, 1, res.NewLevel)
	require.Len(t, res.NewAchievements, 1)
	require.Equal(t, "first_workout", res.NewAchievements[0].Slug)
	require.Equal(t, domain.WorkoutSummary{
		TotalExercises:  1,
		TotalSets:       3,
		TotalReps:       30,
		DurationSeconds: 600,
		DurationMinutes: 10,
	}, res.Summary)

	user, ok := store.User("u1")
	require.True(t, ok)
	require.Equal(t, 92, user.TotalXP)
	require.Equal(t, 5, user.Coins)
	require.Equal(t, 1, user.CurrentStreak)
	require.Equal(t, 1, user.MaxStreak)
	require.NotNil(t, user.LastActivityDate)

	session, ok := store.Session(res.SessionID)
	require.True(t, ok)
	require.Equal(t, domain.SessionStatusCompleted, session.Status)
	require.Equal(t, 42, session.TotalXPEarned)
	require.Equal(t, 5, session.TotalCoinsEarned)
	require.InDelta(t, 1.0, session.StreakMultiplier, 1e-9)

	entries := store.Entries(res.SessionID)
	require.Len(t, entries, 1)
	require.Equal(t, 3, entries[0].SetsCompleted)
	require.Equal(t, 30, entries[0].TotalReps)

	progress, ok := store.Progress("u1", "push_up")
	require.True(t, ok)
	require.Equal(t, 30, progress.TotalRepsEver)
	require.Equal(t, 10, progress.BestSingleSet)
	require.Equal(t, 1, progress.TimesPerformed)

	require.Len(t, store.Unlocks("u1"), 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, domain.NotificationAchievement, notifier.events[0].Type)
	require.NotEmpty(t, notifier.events[0].ID)
}

func TestProcessWorkoutCompletionSameDayKeepsStreak(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	_, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10, 10, 10)))
	require.NoError(t, err)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10, 10, 10)))
	require.NoError(t, err)
	// No first-of-day bonus; 12 * 1.0167 truncates to 12 per set.
	require.Equal(t, 36, res.TotalXP)
	require.Equal(t, 1, res.Streak)

	user, _ := store.User("u1")
	require.Equal(t, 78, user.TotalXP)
	require.Equal(t, 1, user.CurrentStreak)
}

func TestProcessWorkoutCompletionConsecutiveDaysExtendStreak(t *testing.T) {
	store := memory.NewStore()
	yesterday := fixedNow.AddDate(0, 0, -1)
	store.PutUser(domain.UserProgression{UserID: "u1", CurrentStreak: 4, MaxStreak: 9, LastActivityDate: &yesterday})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10)))
	require.NoError(t, err)
	require.Equal(t, 5, res.Streak)

	user, _ := store.User("u1")
	require.Equal(t, 5, user.CurrentStreak)
	require.Equal(t, 9, user.MaxStreak)

	session, _ := store.Session(res.SessionID)
	require.InDelta(t, 1+4*0.0167, session.StreakMultiplier, 1e-9)
}

func TestProcessWorkoutCompletionAchievementXPCausesLevelUp(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	notifier := &recordingNotifier{}
	big := firstWorkout
	big.XPReward = 100
	p := newProcessor(store, newCatalog(big), notifier, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10, 10, 10)))
	require.NoError(t, err)
	require.True(t, res.LevelUp)
	require.Equal(t, 2, res.NewLevel)
	// 5 from the achievement plus 5 for the level gained.
	require.Equal(t, 10, res.TotalCoins)

	user, _ := store.User("u1")
	require.Equal(t, 142, user.TotalXP)
	require.Equal(t, 2, user.Level)
	require.Equal(t, 10, user.Coins)

	require.Len(t, notifier.events, 2)
	require.Equal(t, domain.NotificationLevelUp, notifier.events[0].Type)
	require.Equal(t, domain.NotificationAchievement, notifier.events[1].Type)
}

func TestProcessWorkoutCompletionCompletesGoals(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	store.PutGoal(domain.Goal{ID: "g-reps", UserID: "u1", GoalType: domain.GoalTotalReps, TargetValue: 30, StartDate: fixedNow.AddDate(0, 0, -1), EndDate: fixedNow})
	store.PutGoal(domain.Goal{ID: "g-sets", UserID: "u1", GoalType: "exercise_push_up_sets", TargetValue: 10})
	store.PutGoal(domain.Goal{ID: "g-expired", UserID: "u1", GoalType: domain.GoalTotalWorkouts, TargetValue: 1, EndDate: fixedNow.AddDate(0, 0, -1)})
	notifier := &recordingNotifier{}
	p := newProcessor(store, newCatalog(), notifier, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10, 10, 10)))
	require.NoError(t, err)
	require.Equal(t, []string{"g-reps"}, res.CompletedGoals)
	require.Equal(t, domain.GoalCompletionCoins, res.TotalCoins)

	reps, _ := store.Goal("g-reps")
	require.True(t, reps.Completed)
	require.NotNil(t, reps.CompletedAt)

	sets, _ := store.Goal("g-sets")
	require.False(t, sets.Completed)
	require.Equal(t, 3, sets.CurrentValue)

	expired, _ := store.Goal("g-expired")
	require.Zero(t, expired.CurrentValue)

	require.Len(t, notifier.events, 1)
	require.Equal(t, domain.NotificationGoalCompleted, notifier.events[0].Type)
}

func TestProcessWorkoutCompletionSkipsUnknownExercises(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1",
		pushUps(10),
		domain.ExerciseSubmission{ExerciseSlug: "moon_walk", SetMagnitudes: []int{5}},
	))
	require.NoError(t, err)
	require.Equal(t, []string{"moon_walk"}, res.SkippedExercises)
	require.Len(t, store.Entries(res.SessionID), 1)
	require.Equal(t, 1, res.Summary.TotalExercises)
	require.Equal(t, 1, res.Summary.TotalSets)
	require.Equal(t, 10, res.Summary.TotalReps)

	_, ok := store.Progress("u1", "moon_walk")
	require.False(t, ok)
}

func TestProcessWorkoutCompletionMergesRepeatedExercises(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10, 10), pushUps(10)))
	require.NoError(t, err)
	require.Equal(t, 42, res.TotalXP)
	require.Equal(t, 1, res.Summary.TotalExercises)
	require.Equal(t, 3, res.Summary.TotalSets)

	entries := store.Entries(res.SessionID)
	require.Len(t, entries, 1)
	require.Equal(t, []int{10, 10, 10}, entries[0].Sets)
}

func TestProcessWorkoutCompletionEmptySetsEarnNoXP(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1",
		pushUps(0, 0, 0, 0, 0),
		domain.ExerciseSubmission{ExerciseSlug: "plank", SetMagnitudes: []int{0}},
	))
	require.NoError(t, err)
	require.Zero(t, res.TotalXP)
	require.Zero(t, res.Summary.TotalReps)
	require.Equal(t, 6, res.Summary.TotalSets)
	require.Equal(t, 1, res.Streak)

	user, _ := store.User("u1")
	require.Zero(t, user.TotalXP)

	res, err = p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(0, 10)))
	require.NoError(t, err)
	// Only the non-empty set scores: 10 * 1.2 * 1.0167 truncates to 12.
	require.Equal(t, 12, res.TotalXP)
}

func TestProcessWorkoutCompletionTimedExercise(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	res, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1",
		domain.ExerciseSubmission{ExerciseSlug: "plank", SetMagnitudes: []int{60, 45}},
	))
	require.NoError(t, err)
	require.Zero(t, res.Summary.TotalReps)

	entries := store.Entries(res.SessionID)
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsTimed)
	require.Equal(t, 105, entries[0].TotalDurationSeconds)

	progress, _ := store.Progress("u1", "plank")
	require.Zero(t, progress.BestSingleSet)
	require.Equal(t, 1, progress.TimesPerformed)
}

func TestProcessWorkoutCompletionRecommendsUpgrade(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	_, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(50, 49)))
	require.NoError(t, err)
	progress, _ := store.Progress("u1", "push_up")
	require.False(t, progress.RecommendedUpgrade)

	_, err = p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(1)))
	require.NoError(t, err)
	progress, _ = store.Progress("u1", "push_up")
	require.True(t, progress.RecommendedUpgrade)
	require.Equal(t, 100, progress.TotalRepsEver)
}

func TestProcessWorkoutCompletionRejectsInvalidRequests(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)
	ctx := context.Background()

	_, err := p.ProcessWorkoutCompletion(ctx, completion("u1"))
	require.ErrorIs(t, err, domain.ErrEmptyWorkout)

	_, err = p.ProcessWorkoutCompletion(ctx, completion("ghost", pushUps(10)))
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	backwards := completion("u1", pushUps(10))
	backwards.StartedAt = fixedNow.Add(time.Minute)
	_, err = p.ProcessWorkoutCompletion(ctx, backwards)
	require.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	_, err = p.ProcessWorkoutCompletion(ctx, completion("u1", pushUps(-1)))
	require.ErrorIs(t, err, domain.ErrInvalidSetMagnitude)

	user, _ := store.User("u1")
	require.Zero(t, user.TotalXP)
}

type failingStore struct {
	inner domain.Store
}

type failingTx struct {
	domain.Tx
}

func (failingTx) SaveUser(context.Context, domain.UserProgression) error {
	return errors.New("disk full")
}

func (s failingStore) WithinUserTx(ctx context.Context, userID string, fn func(context.Context, domain.Tx) error) error {
	return s.inner.WithinUserTx(ctx, userID, func(ctx context.Context, tx domain.Tx) error {
		return fn(ctx, failingTx{Tx: tx})
	})
}

func TestProcessWorkoutCompletionRollsBackOnFailure(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	store.PutGoal(domain.Goal{ID: "g1", UserID: "u1", GoalType: domain.GoalTotalWorkouts, TargetValue: 1})
	notifier := &recordingNotifier{}
	p := newProcessor(failingStore{inner: store}, newCatalog(firstWorkout), notifier, fixedNow)

	_, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10, 10)))
	require.Error(t, err)

	user, _ := store.User("u1")
	require.Zero(t, user.TotalXP)
	require.Zero(t, user.CurrentStreak)
	require.Nil(t, user.LastActivityDate)
	_, ok := store.Progress("u1", "push_up")
	require.False(t, ok)
	require.Empty(t, store.Unlocks("u1"))
	goal, _ := store.Goal("g1")
	require.False(t, goal.Completed)
	require.Empty(t, notifier.events)
}

func TestProcessWorkoutCompletionNotificationFailureDoesNotFail(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	notifier := &recordingNotifier{err: errors.New("broker down")}
	p := newProcessor(store, newCatalog(firstWorkout), notifier, fixedNow)

	_, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10)))
	require.NoError(t, err)
	require.Len(t, store.Unlocks("u1"), 1)
}

func TestProcessWorkoutCompletionFinalizesStartedSession(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1", CurrentStreak: 2})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)
	sessions := domain.NewSessions(store, p.Locker())
	ctx := context.Background()

	started, err := sessions.StartWorkout(ctx, "u1", fixedNow.Add(-20*time.Minute))
	require.NoError(t, err)
	require.Equal(t, domain.SessionStatusActive, started.Status)

	req := completion("u1", pushUps(10))
	req.SessionID = started.ID
	req.StartedAt = time.Time{}
	res, err := p.ProcessWorkoutCompletion(ctx, req)
	require.NoError(t, err)
	require.Equal(t, started.ID, res.SessionID)
	require.Equal(t, 1200, res.Summary.DurationSeconds)

	session, _ := store.Session(started.ID)
	require.Equal(t, domain.SessionStatusCompleted, session.Status)
	require.InDelta(t, started.StreakMultiplier, session.StreakMultiplier, 1e-9)

	_, err = p.ProcessWorkoutCompletion(ctx, req)
	require.ErrorIs(t, err, domain.ErrSessionAlreadyCompleted)
	require.ErrorIs(t, sessions.CancelWorkout(ctx, "u1", started.ID), domain.ErrSessionAlreadyCompleted)
}

func TestProcessWorkoutCompletionRejectsCancelledSession(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)
	sessions := domain.NewSessions(store, p.Locker())
	ctx := context.Background()

	started, err := sessions.StartWorkout(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.NoError(t, sessions.CancelWorkout(ctx, "u1", started.ID))
	require.NoError(t, sessions.CancelWorkout(ctx, "u1", started.ID))

	req := completion("u1", pushUps(10))
	req.SessionID = started.ID
	_, err = p.ProcessWorkoutCompletion(ctx, req)
	require.ErrorIs(t, err, domain.ErrSessionNotActive)

	req.SessionID = "missing"
	_, err = p.ProcessWorkoutCompletion(ctx, req)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestProcessWorkoutCompletionSerializesPerUser(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.UserProgression{UserID: "u1"})
	p := newProcessor(store, newCatalog(), &recordingNotifier{}, fixedNow)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.ProcessWorkoutCompletion(context.Background(), completion("u1", pushUps(10)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	user, _ := store.User("u1")
	// The first completion earns 14, every later one 12 without the daily bonus.
	require.Equal(t, 14+(workers-1)*12, user.TotalXP)
	require.Equal(t, 1, user.CurrentStreak)
	require.Zero(t, p.Locker().Len())
}
