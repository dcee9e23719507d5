package domain

import (
	"context"
	"fmt"
	"time"
)

// UpgradeRepsThreshold is the lifetime rep count after which a harder
// variant is recommended.
const UpgradeRepsThreshold = 100

// ExerciseProgressUpdater folds one session entry into the lifetime counters.
type ExerciseProgressUpdater struct {
	store ProgressStore
}

// NewExerciseProgressUpdater constructs an ExerciseProgressUpdater.
func NewExerciseProgressUpdater(store ProgressStore) *ExerciseProgressUpdater {
	return &ExerciseProgressUpdater{store: store}
}

// Apply updates the progress row for entry, creating it on first performance.
// RecommendedUpgrade is one-way: it is set once the threshold is crossed and
// a harder variant exists, and never cleared here.
func (u *ExerciseProgressUpdater) Apply(ctx context.Context, userID string, exercise ExerciseDefinition, entry WorkoutExerciseEntry, now time.Time) (ExerciseProgress, error) {
	progress, _, err := u.store.GetOrCreateProgress(ctx, userID, exercise.Slug, now)
	if err != nil {
		return ExerciseProgress{}, fmt.Errorf("load progress for %s: %w", exercise.Slug, err)
	}

	progress.TotalRepsEver += entry.TotalReps
	progress.TimesPerformed++
	if !entry.IsTimed {
		if best := maxOf(entry.Sets); best > progress.BestSingleSet {
			progress.BestSingleSet = best
		}
	}
	progress.LastPerformedAt = now
	if progress.TotalRepsEver >= UpgradeRepsThreshold && exercise.HarderVariant != "" {
		progress.RecommendedUpgrade = true
	}

	if err := u.store.SaveProgress(ctx, progress); err != nil {
		return ExerciseProgress{}, fmt.Errorf("save progress for %s: %w", exercise.Slug, err)
	}
	return progress, nil
}

func maxOf(values []int) int {
	best := 0
	for _, v := range values {
		if v > best {
			best = v
		}
	}
	return best
}

func sumOf(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
