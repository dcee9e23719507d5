// Package postgres persists progression state with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/domain"
)

// Store opens one pgx transaction per unit of work. Units of work for the same
// user are serialized by a transaction-scoped advisory lock.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ domain.Store = (*Store)(nil)

// WithinUserTx implements domain.Store.
func (s *Store) WithinUserTx(ctx context.Context, userID string, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", userID); err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}

	if err = fn(ctx, &Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Tx implements domain.Tx over a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

var _ domain.Tx = (*Tx)(nil)

const userColumns = `user_id, level, total_xp, coins, current_streak, max_streak, last_activity_date, updated_at`

// GetUser implements domain.UserStore.
func (t *Tx) GetUser(ctx context.Context, userID string) (*domain.UserProgression, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM user_progression WHERE user_id=$1 FOR UPDATE`, userID)
	var u domain.UserProgression
	if err := row.Scan(&u.UserID, &u.Level, &u.TotalXP, &u.Coins, &u.CurrentStreak, &u.MaxStreak, &u.LastActivityDate, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SaveUser implements domain.UserStore. It inserts the record when absent.
func (t *Tx) SaveUser(ctx context.Context, u domain.UserProgression) error {
	const stmt = `INSERT INTO user_progression (` + userColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (user_id) DO UPDATE SET
            level=EXCLUDED.level,
            total_xp=EXCLUDED.total_xp,
            coins=EXCLUDED.coins,
            current_streak=EXCLUDED.current_streak,
            max_streak=EXCLUDED.max_streak,
            last_activity_date=EXCLUDED.last_activity_date,
            updated_at=EXCLUDED.updated_at`

	_, err := t.tx.Exec(ctx, stmt,
		u.UserID, u.Level, u.TotalXP, u.Coins, u.CurrentStreak, u.MaxStreak, u.LastActivityDate, u.UpdatedAt,
	)
	return err
}

const sessionColumns = `session_id, user_id, status, started_at, finished_at, duration_seconds, streak_multiplier,
        total_xp_earned, total_coins_earned, total_reps, total_duration_seconds, created_at`

func scanSession(row pgx.Row) (*domain.WorkoutSession, error) {
	var s domain.WorkoutSession
	if err := row.Scan(&s.ID, &s.UserID, &s.Status, &s.StartedAt, &s.FinishedAt, &s.DurationSeconds, &s.StreakMultiplier,
		&s.TotalXPEarned, &s.TotalCoinsEarned, &s.TotalReps, &s.TotalDurationSeconds, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetSession implements domain.SessionStore.
func (t *Tx) GetSession(ctx context.Context, userID, sessionID string) (*domain.WorkoutSession, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM workout_sessions WHERE session_id=$1 AND user_id=$2 FOR UPDATE`, sessionID, userID)
	return scanSession(row)
}

// CreateSession implements domain.SessionStore.
func (t *Tx) CreateSession(ctx context.Context, s domain.WorkoutSession) error {
	const stmt = `INSERT INTO workout_sessions (` + sessionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := t.tx.Exec(ctx, stmt,
		s.ID, s.UserID, s.Status, s.StartedAt, s.FinishedAt, s.DurationSeconds, s.StreakMultiplier,
		s.TotalXPEarned, s.TotalCoinsEarned, s.TotalReps, s.TotalDurationSeconds, s.CreatedAt,
	)
	return err
}

// SaveSession implements domain.SessionStore.
func (t *Tx) SaveSession(ctx context.Context, s domain.WorkoutSession) error {
	const stmt = `UPDATE workout_sessions SET
            status=$2, started_at=$3, finished_at=$4, duration_seconds=$5, streak_multiplier=$6,
            total_xp_earned=$7, total_coins_earned=$8, total_reps=$9, total_duration_seconds=$10
        WHERE session_id=$1`

	tag, err := t.tx.Exec(ctx, stmt,
		s.ID, s.Status, s.StartedAt, s.FinishedAt, s.DurationSeconds, s.StreakMultiplier,
		s.TotalXPEarned, s.TotalCoinsEarned, s.TotalReps, s.TotalDurationSeconds,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, s.ID)
	}
	return nil
}

// AddExerciseEntry implements domain.SessionStore.
func (t *Tx) AddExerciseEntry(ctx context.Context, e domain.WorkoutExerciseEntry) error {
	const stmt = `INSERT INTO workout_exercise_entries
            (entry_id, session_id, exercise_slug, sets, is_timed, sets_completed, total_reps, total_duration_seconds, xp_earned, coins_earned)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := t.tx.Exec(ctx, stmt,
		e.ID, e.SessionID, e.ExerciseSlug, e.Sets, e.IsTimed, e.SetsCompleted, e.TotalReps, e.TotalDurationSeconds, e.XPEarned, e.CoinsEarned,
	)
	return err
}

// CountCompletedSessions implements domain.SessionStore.
func (t *Tx) CountCompletedSessions(ctx context.Context, userID string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM workout_sessions WHERE user_id=$1 AND status='completed'`, userID).Scan(&count)
	return count, err
}

// LastCompletedSession implements domain.SessionStore.
func (t *Tx) LastCompletedSession(ctx context.Context, userID string) (*domain.WorkoutSession, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM workout_sessions
        WHERE user_id=$1 AND status='completed' AND finished_at IS NOT NULL
        ORDER BY finished_at DESC LIMIT 1`, userID)
	return scanSession(row)
}

const progressColumns = `user_id, exercise_slug, total_reps_ever, best_single_set, times_performed, last_performed_at, recommended_upgrade`

func scanProgress(row pgx.Row) (domain.ExerciseProgress, error) {
	var p domain.ExerciseProgress
	err := row.Scan(&p.UserID, &p.ExerciseSlug, &p.TotalRepsEver, &p.BestSingleSet, &p.TimesPerformed, &p.LastPerformedAt, &p.RecommendedUpgrade)
	return p, err
}

// GetOrCreateProgress implements domain.ProgressStore with an insert-if-absent
// followed by a locked read when the row already existed.
func (t *Tx) GetOrCreateProgress(ctx context.Context, userID, slug string, now time.Time) (domain.ExerciseProgress, bool, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO exercise_progress (user_id, exercise_slug, last_performed_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id, exercise_slug) DO NOTHING
        RETURNING `+progressColumns, userID, slug, now)
	p, err := scanProgress(row)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ExerciseProgress{}, false, err
	}

	p, err = scanProgress(t.tx.QueryRow(ctx, `SELECT `+progressColumns+` FROM exercise_progress
        WHERE user_id=$1 AND exercise_slug=$2 FOR UPDATE`, userID, slug))
	if err != nil {
		return domain.ExerciseProgress{}, false, err
	}
	return p, false, nil
}

// SaveProgress implements domain.ProgressStore.
func (t *Tx) SaveProgress(ctx context.Context, p domain.ExerciseProgress) error {
	const stmt = `UPDATE exercise_progress SET
            total_reps_ever=$3, best_single_set=$4, times_performed=$5, last_performed_at=$6, recommended_upgrade=$7
        WHERE user_id=$1 AND exercise_slug=$2`

	_, err := t.tx.Exec(ctx, stmt, p.UserID, p.ExerciseSlug, p.TotalRepsEver, p.BestSingleSet, p.TimesPerformed, p.LastPerformedAt, p.RecommendedUpgrade)
	return err
}

// ListProgress implements domain.ProgressStore.
func (t *Tx) ListProgress(ctx context.Context, userID string) ([]domain.ExerciseProgress, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+progressColumns+` FROM exercise_progress WHERE user_id=$1 ORDER BY exercise_slug`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ExerciseProgress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListUnlocks implements domain.AchievementStore.
func (t *Tx) ListUnlocks(ctx context.Context, userID string) ([]domain.AchievementUnlock, error) {
	rows, err := t.tx.Query(ctx, `SELECT unlock_id, user_id, achievement_slug, unlocked_at FROM achievement_unlocks WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AchievementUnlock, 0)
	for rows.Next() {
		var u domain.AchievementUnlock
		if err := rows.Scan(&u.ID, &u.UserID, &u.AchievementSlug, &u.UnlockedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// InsertUnlock implements domain.AchievementStore. The unique constraint on
// (user_id, achievement_slug) decides the race; the loser sees inserted=false.
func (t *Tx) InsertUnlock(ctx context.Context, u domain.AchievementUnlock) (bool, error) {
	var id string
	err := t.tx.QueryRow(ctx, `INSERT INTO achievement_unlocks (unlock_id, user_id, achievement_slug, unlocked_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, achievement_slug) DO NOTHING
        RETURNING unlock_id`, u.ID, u.UserID, u.AchievementSlug, u.UnlockedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateGoal implements domain.GoalStore.
func (t *Tx) CreateGoal(ctx context.Context, g domain.Goal) error {
	const stmt = `INSERT INTO goals (goal_id, user_id, goal_type, target_value, current_value, start_date, end_date, completed, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := t.tx.Exec(ctx, stmt,
		g.ID, g.UserID, g.GoalType, g.TargetValue, g.CurrentValue, nullTime(g.StartDate), nullTime(g.EndDate), g.Completed, g.CompletedAt,
	)
	return err
}

// ListGoals implements domain.GoalStore.
func (t *Tx) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	rows, err := t.tx.Query(ctx, `SELECT goal_id, user_id, goal_type, target_value, current_value, start_date, end_date, completed, completed_at
        FROM goals WHERE user_id=$1 ORDER BY end_date ASC NULLS LAST, goal_id`, userID)
	if err != nil {
		return nil, err
	}
	return scanGoals(rows)
}

// ListOpenGoals implements domain.GoalStore.
func (t *Tx) ListOpenGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	rows, err := t.tx.Query(ctx, `SELECT goal_id, user_id, goal_type, target_value, current_value, start_date, end_date, completed, completed_at
        FROM goals WHERE user_id=$1 AND NOT completed ORDER BY goal_id FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}
	return scanGoals(rows)
}

func scanGoals(rows pgx.Rows) ([]domain.Goal, error) {
	defer rows.Close()

	out := make([]domain.Goal, 0)
	for rows.Next() {
		var (
			g          domain.Goal
			start, end *time.Time
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.GoalType, &g.TargetValue, &g.CurrentValue, &start, &end, &g.Completed, &g.CompletedAt); err != nil {
			return nil, err
		}
		if start != nil {
			g.StartDate = *start
		}
		if end != nil {
			g.EndDate = *end
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SaveGoal implements domain.GoalStore.
func (t *Tx) SaveGoal(ctx context.Context, g domain.Goal) error {
	const stmt = `INSERT INTO goals (goal_id, user_id, goal_type, target_value, current_value, start_date, end_date, completed, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (goal_id) DO UPDATE SET
            current_value=EXCLUDED.current_value,
            completed=EXCLUDED.completed,
            completed_at=EXCLUDED.completed_at`

	_, err := t.tx.Exec(ctx, stmt,
		g.ID, g.UserID, g.GoalType, g.TargetValue, g.CurrentValue, nullTime(g.StartDate), nullTime(g.EndDate), g.Completed, g.CompletedAt,
	)
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
