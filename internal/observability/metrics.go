// Package observability registers the progression engine's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	completionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "completion",
		Name:      "workouts_total",
		Help:      "Workout completions processed, labeled by outcome.",
	}, []string{"outcome"})

	completionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "progression_service",
		Subsystem: "completion",
		Name:      "duration_seconds",
		Help:      "Time spent processing one workout completion, lock wait included.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	xpAwardedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "rewards",
		Name:      "xp_awarded_total",
		Help:      "XP awarded by committed completions, achievement rewards included.",
	})

	coinsAwardedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "rewards",
		Name:      "coins_awarded_total",
		Help:      "Coins awarded by committed completions, all bonuses included.",
	})

	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "rewards",
		Name:      "level_ups_total",
		Help:      "Completions that raised the user's level.",
	})

	achievementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "rewards",
		Name:      "achievements_unlocked_total",
		Help:      "Achievement unlocks, labeled by achievement slug.",
	}, []string{"achievement"})

	goalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "rewards",
		Name:      "goals_completed_total",
		Help:      "Goals completed by workouts.",
	})

	skippedExerciseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "completion",
		Name:      "skipped_exercises_total",
		Help:      "Submitted exercises skipped because their slug is not in the catalog.",
	})

	notificationFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progression_service",
		Subsystem: "notifications",
		Name:      "delivery_failures_total",
		Help:      "Notification batches the sink failed to accept after a commit.",
	})

	lastCompletionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "progression_service",
		Subsystem: "completion",
		Name:      "last_committed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed completion.",
	})
)

func init() {
	prometheus.MustRegister(
		completionsCounter,
		completionDuration,
		xpAwardedCounter,
		coinsAwardedCounter,
		levelUpCounter,
		achievementCounter,
		goalCounter,
		skippedExerciseCounter,
		notificationFailureCounter,
		lastCompletionGauge,
	)
}

// Reward summarizes what a committed completion granted.
type Reward struct {
	XP           int
	Coins        int
	LevelUp      bool
	Achievements []string
	Goals        int
}

// RecordCompletion records a committed completion.
func RecordCompletion(start time.Time, reward Reward) {
	completionsCounter.WithLabelValues("committed").Inc()
	completionDuration.Observe(time.Since(start).Seconds())
	xpAwardedCounter.Add(float64(reward.XP))
	coinsAwardedCounter.Add(float64(reward.Coins))
	if reward.LevelUp {
		levelUpCounter.Inc()
	}
	for _, slug := range reward.Achievements {
		achievementCounter.WithLabelValues(slug).Inc()
	}
	goalCounter.Add(float64(reward.Goals))
	lastCompletionGauge.Set(float64(time.Now().Unix()))
}

// RecordCompletionFailure records a completion that was rejected or rolled back.
func RecordCompletionFailure(start time.Time, outcome string) {
	completionsCounter.WithLabelValues(outcome).Inc()
	completionDuration.Observe(time.Since(start).Seconds())
}

// RecordSkippedExercise counts a submitted exercise missing from the catalog.
func RecordSkippedExercise() {
	skippedExerciseCounter.Inc()
}

// RecordNotificationFailure counts a notification batch the sink rejected.
func RecordNotificationFailure() {
	notificationFailureCounter.Inc()
}
