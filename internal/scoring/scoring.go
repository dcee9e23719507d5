// Package scoring holds the pure progression formulas: XP per set, coin yield,
// the level curve and the streak multiplier.
//
// Every function is deterministic. Intermediate float products are wrapped in
// explicit float64 conversions so the compiler cannot fuse them into FMA
// instructions on platforms that support it; results must be bit-identical
// everywhere.
package scoring

import "math"

const (
	// MaxStreakBonusDays caps the days that count towards the streak multiplier.
	MaxStreakBonusDays = 30
	// FirstWorkoutBonus multiplies XP for the first completed workout of a day.
	FirstWorkoutBonus = 1.2

	streakStep          = 0.0167
	difficultyStep      = 0.25
	volumeKnee          = 20
	secondsPerRep       = 10
	coinXPThreshold     = 500
	coinLongWorkoutMins = 45
	maxStreakCoins      = 4
	streakCoinPeriod    = 7
)

// DifficultyMultiplier maps difficulty 1..5 onto 1.0..2.0.
func DifficultyMultiplier(difficulty int) float64 {
	return 1 + float64(float64(difficulty-1)*difficultyStep)
}

// VolumeMultiplier applies diminishing returns above 20 reps.
func VolumeMultiplier(magnitude int) float64 {
	if magnitude <= volumeKnee {
		return 1 + float64(float64(magnitude)*0.02)
	}
	return 1.4 + float64(float64(magnitude-volumeKnee)*0.01)
}

// StreakMultiplier returns the bonus multiplier for a streak, capped at day 30
// (about 1.5).
func StreakMultiplier(streakDays int) float64 {
	days := streakDays
	if days < 0 {
		days = 0
	}
	if days > MaxStreakBonusDays {
		days = MaxStreakBonusDays
	}
	return 1 + float64(float64(days)*streakStep)
}

// RepEquivalent converts a set magnitude into the value fed to XPForSet.
// Timed sets count one rep per ten seconds, never less than one.
func RepEquivalent(magnitude int, timed bool) int {
	if !timed {
		return magnitude
	}
	equivalent := magnitude / secondsPerRep
	if equivalent < 1 {
		return 1
	}
	return equivalent
}

// XPForSet computes the XP earned for exactly one set. The product is
// truncated, not rounded.
func XPForSet(baseXP, difficulty, magnitude, streakDays int, firstWorkoutToday bool) int {
	firstBonus := 1.0
	if firstWorkoutToday {
		firstBonus = FirstWorkoutBonus
	}

	xp := float64(baseXP)
	xp = float64(xp * DifficultyMultiplier(difficulty))
	xp = float64(xp * VolumeMultiplier(magnitude))
	xp = float64(xp * StreakMultiplier(streakDays))
	xp = float64(xp * firstBonus)
	return int(math.Floor(xp))
}

// SetXP scores one submitted set of reps or seconds. An empty set earns
// nothing.
func SetXP(baseXP, difficulty, magnitude int, timed bool, streakDays int, firstWorkoutToday bool) int {
	if magnitude <= 0 {
		return 0
	}
	return XPForSet(baseXP, difficulty, RepEquivalent(magnitude, timed), streakDays, firstWorkoutToday)
}

// CoinsForWorkout returns the coins yielded by a workout before level-up,
// goal and achievement bonuses.
func CoinsForWorkout(xpEarned, streakDays, durationMinutes int) int {
	coins := 0
	if xpEarned >= coinXPThreshold {
		coins++
	}
	if streakDays > 0 {
		coins += min(streakDays/streakCoinPeriod, maxStreakCoins)
	}
	if durationMinutes >= coinLongWorkoutMins {
		coins++
	}
	return coins
}

// XPForLevel returns the total XP needed to reach level: 100*(level-1)^2.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	l := level - 1
	return 100 * l * l
}

// LevelFromXP returns the largest level whose threshold does not exceed
// totalXP.
func LevelFromXP(totalXP int) int {
	if totalXP <= 0 {
		return 1
	}
	level := int(math.Sqrt(float64(totalXP)/100)) + 1
	for level > 1 && XPForLevel(level) > totalXP {
		level--
	}
	for XPForLevel(level+1) <= totalXP {
		level++
	}
	return level
}
