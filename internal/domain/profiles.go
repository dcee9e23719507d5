package domain

import (
	"context"
	"fmt"
	"time"

	"example.com/progression/internal/scoring"
)

// Profile is a read view of a user's progression.
type Profile struct {
	Progression   UserProgression
	XPToNextLevel int
	Achievements  []AchievementUnlock
	Exercises     []ExerciseProgress
}

// Profiles registers users and reads their progression.
type Profiles struct {
	store  Store
	locker *UserLocker
}

// NewProfiles constructs Profiles. Pass the Processor's locker so
// registration serializes with completions.
func NewProfiles(store Store, locker *UserLocker) *Profiles {
	if locker == nil {
		locker = NewUserLocker()
	}
	return &Profiles{store: store, locker: locker}
}

// Register creates a level-1 progression for userID if none exists. The
// boolean reports whether a row was created; an existing progression is
// returned unchanged.
func (p *Profiles) Register(ctx context.Context, userID string, now time.Time) (*UserProgression, bool, error) {
	if userID == "" {
		return nil, false, ErrUserNotFound
	}

	unlock := p.locker.Lock(userID)
	defer unlock()

	var (
		user    UserProgression
		created bool
	)
	err := p.store.WithinUserTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		existing, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if existing != nil {
			user = *existing
			return nil
		}
		user = UserProgression{UserID: userID, Level: 1, UpdatedAt: now.UTC()}
		created = true
		return tx.SaveUser(ctx, user)
	})
	if err != nil {
		return nil, false, err
	}
	return &user, created, nil
}

// Get returns the profile of userID or ErrUserNotFound.
func (p *Profiles) Get(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}

	var profile Profile
	err := p.store.WithinUserTx(ctx, userID, func(ctx context.Context, tx Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		unlocks, err := tx.ListUnlocks(ctx, userID)
		if err != nil {
			return fmt.Errorf("list unlocks: %w", err)
		}
		progress, err := tx.ListProgress(ctx, userID)
		if err != nil {
			return fmt.Errorf("list progress: %w", err)
		}
		profile = Profile{
			Progression:   *user,
			XPToNextLevel: scoring.XPForLevel(user.Level+1) - user.TotalXP,
			Achievements:  unlocks,
			Exercises:     progress,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
