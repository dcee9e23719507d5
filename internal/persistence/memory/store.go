// Package memory provides an in-memory progression store for local
// development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/progression/internal/domain"
)

var (
	// ErrUnlockConflict is returned by a commit that would store a second
	// unlock for the same (user, achievement) pair.
	ErrUnlockConflict = errors.New("achievement unlock already exists")
	// ErrGoalExists is returned when a goal id is created twice.
	ErrGoalExists = errors.New("goal already exists")
)

type progressKey struct {
	userID string
	slug   string
}

type unlockKey struct {
	userID string
	slug   string
}

type state struct {
	users    map[string]domain.UserProgression
	sessions map[string]domain.WorkoutSession
	entries  map[string][]domain.WorkoutExerciseEntry
	progress map[progressKey]domain.ExerciseProgress
	unlocks  map[unlockKey]domain.AchievementUnlock
	goals    map[string]domain.Goal
}

func newState() state {
	return state{
		users:    make(map[string]domain.UserProgression),
		sessions: make(map[string]domain.WorkoutSession),
		entries:  make(map[string][]domain.WorkoutExerciseEntry),
		progress: make(map[progressKey]domain.ExerciseProgress),
		unlocks:  make(map[unlockKey]domain.AchievementUnlock),
		goals:    make(map[string]domain.Goal),
	}
}

// Store keeps committed state in maps. A unit of work stages its writes in an
// overlay that is applied atomically on commit and dropped on rollback.
type Store struct {
	mu     sync.RWMutex
	base   state
	locker *domain.UserLocker
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{base: newState(), locker: domain.NewUserLocker()}
}

// PutUser inserts or replaces a progression record outside of a unit of work.
func (s *Store) PutUser(user domain.UserProgression) {
	if user.Level == 0 {
		user.Level = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.users[user.UserID] = user
}

// PutGoal inserts or replaces a goal outside of a unit of work.
func (s *Store) PutGoal(goal domain.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.goals[goal.ID] = goal
}

// User returns the committed progression record.
func (s *Store) User(userID string) (domain.UserProgression, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.base.users[userID]
	return user, ok
}

// Session returns a committed session.
func (s *Store) Session(sessionID string) (domain.WorkoutSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.base.sessions[sessionID]
	return session, ok
}

// Entries returns the committed exercise entries of a session.
func (s *Store) Entries(sessionID string) []domain.WorkoutExerciseEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.WorkoutExerciseEntry(nil), s.base.entries[sessionID]...)
}

// Progress returns committed exercise progress.
func (s *Store) Progress(userID, slug string) (domain.ExerciseProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.base.progress[progressKey{userID, slug}]
	return p, ok
}

// Unlocks returns the committed unlocks of a user ordered by slug.
func (s *Store) Unlocks(userID string) []domain.AchievementUnlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AchievementUnlock, 0)
	for key, u := range s.base.unlocks {
		if key.userID == userID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementSlug < out[j].AchievementSlug })
	return out
}

// Goal returns a committed goal.
func (s *Store) Goal(goalID string) (domain.Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.base.goals[goalID]
	return g, ok
}

// WithinUserTx implements domain.Store.
func (s *Store) WithinUserTx(ctx context.Context, userID string, fn func(ctx context.Context, tx domain.Tx) error) error {
	unlock := s.locker.Lock(userID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Tx{store: s, staged: newState()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range tx.staged.unlocks {
		if _, exists := s.base.unlocks[key]; exists {
			return fmt.Errorf("%w: %s/%s", ErrUnlockConflict, key.userID, key.slug)
		}
	}

	for id, u := range tx.staged.users {
		s.base.users[id] = u
	}
	for id, session := range tx.staged.sessions {
		s.base.sessions[id] = session
	}
	for id, entries := range tx.staged.entries {
		s.base.entries[id] = append(s.base.entries[id], entries...)
	}
	for key, p := range tx.staged.progress {
		s.base.progress[key] = p
	}
	for key, u := range tx.staged.unlocks {
		s.base.unlocks[key] = u
	}
	for id, g := range tx.staged.goals {
		s.base.goals[id] = g
	}
	return nil
}

// Tx is a unit of work over a Store.
type Tx struct {
	store  *Store
	staged state
}

var _ domain.Tx = (*Tx)(nil)

// GetUser implements domain.UserStore.
func (t *Tx) GetUser(_ context.Context, userID string) (*domain.UserProgression, error) {
	if user, ok := t.staged.users[userID]; ok {
		return &user, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if user, ok := t.store.base.users[userID]; ok {
		return &user, nil
	}
	return nil, nil
}

// SaveUser implements domain.UserStore.
func (t *Tx) SaveUser(_ context.Context, user domain.UserProgression) error {
	t.staged.users[user.UserID] = user
	return nil
}

// GetSession implements domain.SessionStore.
func (t *Tx) GetSession(_ context.Context, userID, sessionID string) (*domain.WorkoutSession, error) {
	session, ok := t.staged.sessions[sessionID]
	if !ok {
		t.store.mu.RLock()
		session, ok = t.store.base.sessions[sessionID]
		t.store.mu.RUnlock()
	}
	if !ok || session.UserID != userID {
		return nil, nil
	}
	return &session, nil
}

// CreateSession implements domain.SessionStore.
func (t *Tx) CreateSession(_ context.Context, session domain.WorkoutSession) error {
	if _, ok := t.staged.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	t.store.mu.RLock()
	_, exists := t.store.base.sessions[session.ID]
	t.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	t.staged.sessions[session.ID] = session
	return nil
}

// SaveSession implements domain.SessionStore. Completed sessions are immutable
// once committed.
func (t *Tx) SaveSession(_ context.Context, session domain.WorkoutSession) error {
	t.store.mu.RLock()
	committed, ok := t.store.base.sessions[session.ID]
	t.store.mu.RUnlock()
	if ok && committed.Status == domain.SessionStatusCompleted {
		return fmt.Errorf("%w: %s", domain.ErrSessionAlreadyCompleted, session.ID)
	}
	t.staged.sessions[session.ID] = session
	return nil
}

// AddExerciseEntry implements domain.SessionStore.
func (t *Tx) AddExerciseEntry(_ context.Context, entry domain.WorkoutExerciseEntry) error {
	t.staged.entries[entry.SessionID] = append(t.staged.entries[entry.SessionID], entry)
	return nil
}

func (t *Tx) userSessions(userID string) []domain.WorkoutSession {
	merged := make(map[string]domain.WorkoutSession)
	t.store.mu.RLock()
	for id, session := range t.store.base.sessions {
		if session.UserID == userID {
			merged[id] = session
		}
	}
	t.store.mu.RUnlock()
	for id, session := range t.staged.sessions {
		if session.UserID == userID {
			merged[id] = session
		}
	}
	out := make([]domain.WorkoutSession, 0, len(merged))
	for _, session := range merged {
		out = append(out, session)
	}
	return out
}

// CountCompletedSessions implements domain.SessionStore.
func (t *Tx) CountCompletedSessions(_ context.Context, userID string) (int, error) {
	count := 0
	for _, session := range t.userSessions(userID) {
		if session.Status == domain.SessionStatusCompleted {
			count++
		}
	}
	return count, nil
}

// LastCompletedSession implements domain.SessionStore.
func (t *Tx) LastCompletedSession(_ context.Context, userID string) (*domain.WorkoutSession, error) {
	var last *domain.WorkoutSession
	for _, session := range t.userSessions(userID) {
		if session.Status != domain.SessionStatusCompleted || session.FinishedAt == nil {
			continue
		}
		if last == nil || session.FinishedAt.After(*last.FinishedAt) {
			s := session
			last = &s
		}
	}
	return last, nil
}

// GetOrCreateProgress implements domain.ProgressStore.
func (t *Tx) GetOrCreateProgress(_ context.Context, userID, slug string, now time.Time) (domain.ExerciseProgress, bool, error) {
	key := progressKey{userID, slug}
	if p, ok := t.staged.progress[key]; ok {
		return p, false, nil
	}
	t.store.mu.RLock()
	p, ok := t.store.base.progress[key]
	t.store.mu.RUnlock()
	if ok {
		return p, false, nil
	}
	p = domain.ExerciseProgress{UserID: userID, ExerciseSlug: slug, LastPerformedAt: now}
	t.staged.progress[key] = p
	return p, true, nil
}

// SaveProgress implements domain.ProgressStore.
func (t *Tx) SaveProgress(_ context.Context, p domain.ExerciseProgress) error {
	t.staged.progress[progressKey{p.UserID, p.ExerciseSlug}] = p
	return nil
}

// ListProgress implements domain.ProgressStore.
func (t *Tx) ListProgress(_ context.Context, userID string) ([]domain.ExerciseProgress, error) {
	merged := make(map[progressKey]domain.ExerciseProgress)
	t.store.mu.RLock()
	for key, p := range t.store.base.progress {
		if key.userID == userID {
			merged[key] = p
		}
	}
	t.store.mu.RUnlock()
	for key, p := range t.staged.progress {
		if key.userID == userID {
			merged[key] = p
		}
	}
	out := make([]domain.ExerciseProgress, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExerciseSlug < out[j].ExerciseSlug })
	return out, nil
}

// ListUnlocks implements domain.AchievementStore.
func (t *Tx) ListUnlocks(_ context.Context, userID string) ([]domain.AchievementUnlock, error) {
	out := make([]domain.AchievementUnlock, 0)
	t.store.mu.RLock()
	for key, u := range t.store.base.unlocks {
		if key.userID == userID {
			out = append(out, u)
		}
	}
	t.store.mu.RUnlock()
	for key, u := range t.staged.unlocks {
		if key.userID == userID {
			out = append(out, u)
		}
	}
	return out, nil
}

// InsertUnlock implements domain.AchievementStore.
func (t *Tx) InsertUnlock(_ context.Context, unlock domain.AchievementUnlock) (bool, error) {
	key := unlockKey{unlock.UserID, unlock.AchievementSlug}
	if _, ok := t.staged.unlocks[key]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, exists := t.store.base.unlocks[key]
	t.store.mu.RUnlock()
	if exists {
		return false, nil
	}
	t.staged.unlocks[key] = unlock
	return true, nil
}

// CreateGoal implements domain.GoalStore.
func (t *Tx) CreateGoal(_ context.Context, g domain.Goal) error {
	if _, ok := t.staged.goals[g.ID]; ok {
		return fmt.Errorf("%w: %s", ErrGoalExists, g.ID)
	}
	t.store.mu.RLock()
	_, exists := t.store.base.goals[g.ID]
	t.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrGoalExists, g.ID)
	}
	t.staged.goals[g.ID] = g
	return nil
}

// ListGoals implements domain.GoalStore.
func (t *Tx) ListGoals(_ context.Context, userID string) ([]domain.Goal, error) {
	out := t.userGoals(userID)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].EndDate, out[j].EndDate
		switch {
		case a.Equal(b):
			return out[i].ID < out[j].ID
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		}
		return a.Before(b)
	})
	return out, nil
}

// ListOpenGoals implements domain.GoalStore.
func (t *Tx) ListOpenGoals(_ context.Context, userID string) ([]domain.Goal, error) {
	out := make([]domain.Goal, 0)
	for _, g := range t.userGoals(userID) {
		if !g.Completed {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *Tx) userGoals(userID string) []domain.Goal {
	merged := make(map[string]domain.Goal)
	t.store.mu.RLock()
	for id, g := range t.store.base.goals {
		if g.UserID == userID {
			merged[id] = g
		}
	}
	t.store.mu.RUnlock()
	for id, g := range t.staged.goals {
		if g.UserID == userID {
			merged[id] = g
		}
	}
	out := make([]domain.Goal, 0, len(merged))
	for _, g := range merged {
		out = append(out, g)
	}
	return out
}

// SaveGoal implements domain.GoalStore.
func (t *Tx) SaveGoal(_ context.Context, g domain.Goal) error {
	t.staged.goals[g.ID] = g
	return nil
}
