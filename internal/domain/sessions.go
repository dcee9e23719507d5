package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/progression/internal/scoring"
)

// Sessions manages the lifecycle of workouts that are started before they are
// completed.
type Sessions struct {
	store  Store
	locker *UserLocker
	now    func() time.Time
}

// NewSessions constructs Sessions. Pass the Processor's locker so session
// changes serialize with completions.
func NewSessions(store Store, locker *UserLocker) *Sessions {
	if locker == nil {
		locker = NewUserLocker()
	}
	return &Sessions{store: store, locker: locker, now: func() time.Time { return time.Now().UTC() }}
}

// StartWorkout creates an active session carrying the user's current streak
// multiplier.
func (s *Sessions) StartWorkout(ctx context.Context, userID string, startedAt time.Time) (*WorkoutSession, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	now := s.now()
	if startedAt.IsZero() {
		startedAt = now
	}

	unlock := s.locker.Lock(userID)
	defer unlock()

	var session WorkoutSession
	err := s.store.WithinUserTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		session = WorkoutSession{
			ID:               uuid.NewString(),
			UserID:           userID,
			Status:           SessionStatusActive,
			StartedAt:        startedAt.UTC(),
			StreakMultiplier: scoring.StreakMultiplier(user.CurrentStreak),
			CreatedAt:        now,
		}
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CancelWorkout moves an active session to cancelled. Completed sessions are
// immutable.
func (s *Sessions) CancelWorkout(ctx context.Context, userID, sessionID string) error {
	unlock := s.locker.Lock(userID)
	defer unlock()

	return s.store.WithinUserTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		session, err := tx.GetSession(ctx, userID, sessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		switch session.Status {
		case SessionStatusCompleted:
			return fmt.Errorf("%w: %s", ErrSessionAlreadyCompleted, sessionID)
		case SessionStatusCancelled:
			return nil
		}
		finished := s.now()
		session.Status = SessionStatusCancelled
		session.FinishedAt = &finished
		return tx.SaveSession(ctx, *session)
	})
}
