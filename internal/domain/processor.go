package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"example.com/progression/internal/observability"
	"example.com/progression/internal/scoring"
	"example.com/progression/internal/streak"
)

// LevelUpCoinsPerLevel is the coin bonus for every level gained.
const LevelUpCoinsPerLevel = 5

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithClock overrides the time source used for "today" and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(p *Processor) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithNotifier sets the sink that receives notification events after commit.
func WithNotifier(n Notifier) Option {
	return func(p *Processor) {
		p.notifier = n
	}
}

// WithLocker shares a UserLocker between the Processor and other services.
func WithLocker(l *UserLocker) Option {
	return func(p *Processor) {
		p.locker = l
	}
}

// Processor turns one workout submission into a consistent progression state.
type Processor struct {
	store     Store
	exercises ExerciseCatalog
	engine    *AchievementEngine
	notifier  Notifier
	locker    *UserLocker
	location  *time.Location
	now       func() time.Time
	logger    logrus.FieldLogger
}

// NewProcessor constructs a Processor over the store and read-only catalogs.
func NewProcessor(store Store, exercises ExerciseCatalog, achievements AchievementCatalog, opts ...Option) *Processor {
	p := &Processor{
		store:     store,
		exercises: exercises,
		locker:    NewUserLocker(),
		location:  time.UTC,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = NewLogNotifier(p.logger)
	}
	p.engine = NewAchievementEngine(achievements, p.location)
	return p
}

// Locker returns the per-user lock the Processor serializes completions with.
func (p *Processor) Locker() *UserLocker {
	return p.locker
}

// ProcessWorkoutCompletion applies one completed workout. Every mutation runs
// in a single unit of work: either the whole completion commits or nothing
// does. Notification events are handed to the notifier only after commit and
// their delivery failures never fail the completion.
func (p *Processor) ProcessWorkoutCompletion(ctx context.Context, req WorkoutCompletionRequest) (*WorkoutCompletionResult, error) {
	start := time.Now()
	if req.FinishedAt.IsZero() {
		req.FinishedAt = p.now()
	}
	if err := validateRequest(req); err != nil {
		observability.RecordCompletionFailure(start, "rejected")
		return nil, err
	}

	unlock := p.locker.Lock(req.UserID)
	defer unlock()

	var (
		result *WorkoutCompletionResult
		events []NotificationEvent
	)
	err := p.store.WithinUserTx(ctx, req.UserID, func(ctx context.Context, tx Tx) error {
		var err error
		result, events, err = p.complete(ctx, tx, req)
		return err
	})
	if err != nil {
		outcome := "failed"
		if isRejection(err) {
			outcome = "rejected"
		}
		observability.RecordCompletionFailure(start, outcome)
		p.logger.WithFields(logrus.Fields{
			"user_id":    req.UserID,
			"session_id": req.SessionID,
		}).WithError(err).Warn("workout completion rolled back")
		return nil, err
	}

	achievements := make([]string, 0, len(result.NewAchievements))
	for _, a := range result.NewAchievements {
		achievements = append(achievements, a.Slug)
	}
	observability.RecordCompletion(start, observability.Reward{
		XP:           result.TotalXP + result.BonusXP,
		Coins:        result.TotalCoins,
		LevelUp:      result.LevelUp,
		Achievements: achievements,
		Goals:        len(result.CompletedGoals),
	})
	p.logger.WithFields(logrus.Fields{
		"user_id":      req.UserID,
		"session_id":   result.SessionID,
		"xp":           result.TotalXP,
		"coins":        result.TotalCoins,
		"level":        result.NewLevel,
		"streak":       result.Streak,
		"achievements": len(result.NewAchievements),
	}).Info("workout completed")

	p.deliver(ctx, req.UserID, events)
	return result, nil
}

func (p *Processor) complete(ctx context.Context, tx Tx, req WorkoutCompletionRequest) (*WorkoutCompletionResult, []NotificationEvent, error) {
	now := p.now()

	// 1. Resolve the user and the pre-transition facts.
	user, err := tx.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUserNotFound, req.UserID)
	}
	firstToday := user.LastActivityDate == nil || !streak.SameDay(*user.LastActivityDate, now, p.location)
	preStreak := user.CurrentStreak

	// 2-3. Snapshot the streak multiplier and open or finalize the session.
	session, err := p.openSession(ctx, tx, req, scoring.StreakMultiplier(preStreak), now)
	if err != nil {
		return nil, nil, err
	}

	// 4. Score every known exercise and fold it into lifetime progress.
	progress := NewExerciseProgressUpdater(tx)
	var (
		resolved []ExerciseSubmission
		skipped  []string
	)
	for _, sub := range mergeSubmissions(req.Exercises) {
		def, ok := p.exercises.Exercise(sub.ExerciseSlug)
		if !ok {
			skipped = append(skipped, sub.ExerciseSlug)
			observability.RecordSkippedExercise()
			p.logger.WithFields(logrus.Fields{
				"user_id":  req.UserID,
				"exercise": sub.ExerciseSlug,
			}).Warn("skipping unknown exercise")
			continue
		}
		sub.IsTimed = sub.IsTimed || def.IsTimed
		resolved = append(resolved, sub)

		entry := scoreEntry(session.ID, def, sub, preStreak, firstToday)
		if err := tx.AddExerciseEntry(ctx, entry); err != nil {
			return nil, nil, fmt.Errorf("add exercise entry %s: %w", def.Slug, err)
		}
		session.TotalXPEarned += entry.XPEarned
		session.TotalReps += entry.TotalReps
		session.TotalDurationSeconds += entry.TotalDurationSeconds

		if _, err := progress.Apply(ctx, req.UserID, def, entry, now); err != nil {
			return nil, nil, err
		}
	}

	// 5. Coins from the pre-transition streak.
	session.TotalCoinsEarned = scoring.CoinsForWorkout(session.TotalXPEarned, preStreak, session.DurationSeconds/60)

	// 6. XP, coins and level.
	oldLevel := user.Level
	user.TotalXP += session.TotalXPEarned
	user.Coins += session.TotalCoinsEarned
	p.applyLevel(user, session)

	// 7. Streak transition.
	next := streak.Advance(streak.State{
		Current:      user.CurrentStreak,
		Max:          user.MaxStreak,
		LastActivity: user.LastActivityDate,
	}, now, p.location)
	user.CurrentStreak = next.Current
	user.MaxStreak = next.Max
	user.LastActivityDate = next.LastActivity

	// 8. Goals.
	goals, err := NewGoalUpdater(tx, p.location).Apply(ctx, req.UserID, GoalContribution{
		SessionReps: session.TotalReps,
		SessionXP:   session.TotalXPEarned,
		Streak:      user.CurrentStreak,
		Exercises:   resolved,
	}, now)
	if err != nil {
		return nil, nil, err
	}
	user.Coins += goals.Coins
	session.TotalCoinsEarned += goals.Coins

	// The session must be visible as completed before achievements count it.
	if err := tx.SaveSession(ctx, *session); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}

	// 9. Achievements read the fully updated state.
	unlocked, err := p.engine.Evaluate(ctx, tx, user, now)
	if err != nil {
		return nil, nil, err
	}
	bonusXP := 0
	for _, a := range unlocked {
		bonusXP += a.XPReward
		session.TotalCoinsEarned += a.CoinReward
	}
	p.applyLevel(user, session)
	user.UpdatedAt = now

	if err := tx.SaveUser(ctx, *user); err != nil {
		return nil, nil, fmt.Errorf("save user: %w", err)
	}
	if err := tx.SaveSession(ctx, *session); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}

	// 10. Notification events; goal events were produced in step 8.
	levelUp := user.Level > oldLevel
	events := goals.Events
	if levelUp {
		events = append(events, NotificationEvent{
			UserID:    user.UserID,
			Type:      NotificationLevelUp,
			Title:     "Level up!",
			Message:   fmt.Sprintf("Congratulations! You reached level %d!", user.Level),
			CreatedAt: now,
		})
	}
	for _, a := range unlocked {
		events = append(events, NotificationEvent{
			UserID:    user.UserID,
			Type:      NotificationAchievement,
			Title:     "New achievement!",
			Message:   fmt.Sprintf("Unlocked: %s", a.Name),
			CreatedAt: now,
		})
	}
	for i := range events {
		events[i].ID = uuid.NewString()
	}

	// 11. Summary.
	completedGoals := make([]string, 0, len(goals.Completed))
	for _, g := range goals.Completed {
		completedGoals = append(completedGoals, g.ID)
	}
	totalSets := 0
	for _, sub := range resolved {
		totalSets += len(sub.SetMagnitudes)
	}

	return &WorkoutCompletionResult{
		SessionID:        session.ID,
		TotalXP:          session.TotalXPEarned,
		BonusXP:          bonusXP,
		TotalCoins:       session.TotalCoinsEarned,
		LevelUp:          levelUp,
		OldLevel:         oldLevel,
		NewLevel:         user.Level,
		NewAchievements:  unlocked,
		CompletedGoals:   completedGoals,
		Streak:           user.CurrentStreak,
		SkippedExercises: skipped,
		Summary: WorkoutSummary{
			TotalExercises:  len(resolved),
			TotalSets:       totalSets,
			TotalReps:       session.TotalReps,
			DurationSeconds: session.DurationSeconds,
			DurationMinutes: session.DurationSeconds / 60,
		},
	}, events, nil
}

// openSession creates a completed session or finalizes the referenced active
// one. A finalized session keeps the multiplier snapshotted when it started.
func (p *Processor) openSession(ctx context.Context, tx Tx, req WorkoutCompletionRequest, multiplier float64, now time.Time) (*WorkoutSession, error) {
	finished := req.FinishedAt.UTC()

	if req.SessionID == "" {
		session := &WorkoutSession{
			ID:               uuid.NewString(),
			UserID:           req.UserID,
			Status:           SessionStatusCompleted,
			StartedAt:        req.StartedAt.UTC(),
			FinishedAt:       &finished,
			DurationSeconds:  durationSeconds(req.StartedAt, req.FinishedAt),
			StreakMultiplier: multiplier,
			CreatedAt:        now,
		}
		if err := tx.CreateSession(ctx, *session); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return session, nil
	}

	session, err := tx.GetSession(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
	}
	switch session.Status {
	case SessionStatusCompleted:
		return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyCompleted, session.ID)
	case SessionStatusCancelled:
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, session.ID)
	}

	startedAt := req.StartedAt
	if startedAt.IsZero() {
		startedAt = session.StartedAt
	}
	if finished.Before(startedAt) {
		return nil, ErrInvalidTimeRange
	}
	session.Status = SessionStatusCompleted
	session.FinishedAt = &finished
	session.DurationSeconds = durationSeconds(startedAt, finished)
	session.TotalXPEarned = 0
	session.TotalCoinsEarned = 0
	session.TotalReps = 0
	session.TotalDurationSeconds = 0
	return session, nil
}

// applyLevel recomputes the cached level and pays the level-up bonus for any
// levels gained since the stored level.
func (p *Processor) applyLevel(user *UserProgression, session *WorkoutSession) {
	level := scoring.LevelFromXP(user.TotalXP)
	if level > user.Level {
		bonus := (level - user.Level) * LevelUpCoinsPerLevel
		user.Coins += bonus
		session.TotalCoinsEarned += bonus
	}
	user.Level = level
}

func (p *Processor) deliver(ctx context.Context, userID string, events []NotificationEvent) {
	if len(events) == 0 {
		return
	}
	if err := p.notifier.Notify(context.WithoutCancel(ctx), events); err != nil {
		observability.RecordNotificationFailure()
		p.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"events":  len(events),
		}).WithError(err).Error("notification delivery failed")
	}
}

func scoreEntry(sessionID string, def ExerciseDefinition, sub ExerciseSubmission, streakDays int, firstToday bool) WorkoutExerciseEntry {
	entry := WorkoutExerciseEntry{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ExerciseSlug:  def.Slug,
		Sets:          append([]int(nil), sub.SetMagnitudes...),
		IsTimed:       sub.IsTimed,
		SetsCompleted: len(sub.SetMagnitudes),
	}
	total := sumOf(sub.SetMagnitudes)
	if sub.IsTimed {
		entry.TotalDurationSeconds = total
	} else {
		entry.TotalReps = total
	}
	for _, magnitude := range sub.SetMagnitudes {
		entry.XPEarned += scoring.SetXP(def.BaseXP, def.Difficulty, magnitude, sub.IsTimed, streakDays, firstToday)
	}
	return entry
}

// mergeSubmissions folds repeated slugs into one entry, keeping first-seen
// order, so each exercise yields exactly one entry per session.
func mergeSubmissions(subs []ExerciseSubmission) []ExerciseSubmission {
	index := make(map[string]int, len(subs))
	merged := make([]ExerciseSubmission, 0, len(subs))
	for _, sub := range subs {
		if i, ok := index[sub.ExerciseSlug]; ok {
			merged[i].SetMagnitudes = append(merged[i].SetMagnitudes, sub.SetMagnitudes...)
			merged[i].IsTimed = merged[i].IsTimed || sub.IsTimed
			continue
		}
		index[sub.ExerciseSlug] = len(merged)
		merged = append(merged, ExerciseSubmission{
			ExerciseSlug:  sub.ExerciseSlug,
			SetMagnitudes: append([]int(nil), sub.SetMagnitudes...),
			IsTimed:       sub.IsTimed,
		})
	}
	return merged
}

func validateRequest(req WorkoutCompletionRequest) error {
	if req.UserID == "" {
		return ErrUserNotFound
	}
	if len(req.Exercises) == 0 {
		return ErrEmptyWorkout
	}
	if !req.StartedAt.IsZero() && req.FinishedAt.Before(req.StartedAt) {
		return ErrInvalidTimeRange
	}
	for _, sub := range req.Exercises {
		for _, m := range sub.SetMagnitudes {
			if m < 0 {
				return fmt.Errorf("%w: %s", ErrInvalidSetMagnitude, sub.ExerciseSlug)
			}
		}
	}
	return nil
}

func durationSeconds(start, finish time.Time) int {
	if start.IsZero() || finish.Before(start) {
		return 0
	}
	return int(finish.Sub(start).Seconds())
}

func isRejection(err error) bool {
	for _, target := range []error{
		ErrEmptyWorkout, ErrUserNotFound, ErrInvalidTimeRange, ErrInvalidSetMagnitude,
		ErrSessionNotFound, ErrSessionNotActive, ErrSessionAlreadyCompleted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
