// Package catalog loads the read-only exercise and achievement definitions.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/progression/internal/domain"
)

const (
	exercisesFile    = "exercises.yaml"
	achievementsFile = "achievements.yaml"
)

//go:embed defaults/*.yaml
var defaults embed.FS

type exerciseDoc struct {
	Exercises []exerciseRecord `yaml:"exercises"`
}

type exerciseRecord struct {
	Slug          string `yaml:"slug"`
	Name          string `yaml:"name"`
	BaseXP        int    `yaml:"base_xp"`
	Difficulty    int    `yaml:"difficulty"`
	IsTimed       bool   `yaml:"is_timed"`
	HarderVariant string `yaml:"harder_variant"`
}

type achievementDoc struct {
	Achievements []achievementRecord `yaml:"achievements"`
}

type achievementRecord struct {
	Slug        string          `yaml:"slug"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Condition   conditionRecord `yaml:"condition"`
	XPReward    int             `yaml:"xp_reward"`
	CoinReward  int             `yaml:"coin_reward"`
}

type conditionRecord struct {
	Type     string `yaml:"type"`
	Value    int    `yaml:"value"`
	Exercise string `yaml:"exercise"`
	Before   string `yaml:"before"`
	After    string `yaml:"after"`
}

// Catalog is an immutable table of exercise and achievement definitions. It
// satisfies domain.ExerciseCatalog and domain.AchievementCatalog.
type Catalog struct {
	exercises    map[string]domain.ExerciseDefinition
	achievements []domain.AchievementDefinition
}

var (
	_ domain.ExerciseCatalog    = (*Catalog)(nil)
	_ domain.AchievementCatalog = (*Catalog)(nil)
)

// New validates the definitions and builds a Catalog.
func New(exercises []domain.ExerciseDefinition, achievements []domain.AchievementDefinition) (*Catalog, error) {
	c := &Catalog{
		exercises:    make(map[string]domain.ExerciseDefinition, len(exercises)),
		achievements: make([]domain.AchievementDefinition, 0, len(achievements)),
	}

	var errs []error
	for _, ex := range exercises {
		if err := validateExercise(ex); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.exercises[ex.Slug]; dup {
			errs = append(errs, fmt.Errorf("exercise %s: duplicate slug", ex.Slug))
			continue
		}
		c.exercises[ex.Slug] = ex
	}
	for _, ex := range c.exercises {
		if ex.HarderVariant != "" {
			if _, ok := c.exercises[ex.HarderVariant]; !ok {
				errs = append(errs, fmt.Errorf("exercise %s: unknown harder variant %s", ex.Slug, ex.HarderVariant))
			}
		}
	}

	seen := make(map[string]struct{}, len(achievements))
	for _, a := range achievements {
		if err := validateAchievement(a); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[a.Slug]; dup {
			errs = append(errs, fmt.Errorf("achievement %s: duplicate slug", a.Slug))
			continue
		}
		seen[a.Slug] = struct{}{}
		c.achievements = append(c.achievements, a)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads exercises.yaml and achievements.yaml from dir. An empty dir
// selects the embedded default catalog.
func Load(dir string) (*Catalog, error) {
	var fsys fs.FS
	if strings.TrimSpace(dir) == "" {
		sub, err := fs.Sub(defaults, "defaults")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(filepath.Clean(dir))
	}
	return LoadFS(fsys)
}

// LoadFS reads the catalog files from fsys.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	var exDoc exerciseDoc
	if err := decodeFile(fsys, exercisesFile, &exDoc); err != nil {
		return nil, err
	}
	var achDoc achievementDoc
	if err := decodeFile(fsys, achievementsFile, &achDoc); err != nil {
		return nil, err
	}

	exercises := make([]domain.ExerciseDefinition, 0, len(exDoc.Exercises))
	for _, r := range exDoc.Exercises {
		exercises = append(exercises, domain.ExerciseDefinition{
			Slug:          strings.TrimSpace(r.Slug),
			Name:          r.Name,
			BaseXP:        r.BaseXP,
			Difficulty:    r.Difficulty,
			IsTimed:       r.IsTimed,
			HarderVariant: strings.TrimSpace(r.HarderVariant),
		})
	}
	achievements := make([]domain.AchievementDefinition, 0, len(achDoc.Achievements))
	for _, r := range achDoc.Achievements {
		achievements = append(achievements, domain.AchievementDefinition{
			Slug:        strings.TrimSpace(r.Slug),
			Name:        r.Name,
			Description: r.Description,
			Condition: domain.AchievementCondition{
				Type:     domain.ConditionType(r.Condition.Type),
				Value:    r.Condition.Value,
				Exercise: r.Condition.Exercise,
				Before:   r.Condition.Before,
				After:    r.Condition.After,
			},
			XPReward:   r.XPReward,
			CoinReward: r.CoinReward,
		})
	}
	return New(exercises, achievements)
}

func decodeFile(fsys fs.FS, name string, out any) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Exercise implements domain.ExerciseCatalog.
func (c *Catalog) Exercise(slug string) (domain.ExerciseDefinition, bool) {
	ex, ok := c.exercises[slug]
	return ex, ok
}

// Exercises returns every exercise ordered by slug.
func (c *Catalog) Exercises() []domain.ExerciseDefinition {
	out := make([]domain.ExerciseDefinition, 0, len(c.exercises))
	for _, ex := range c.exercises {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Achievements implements domain.AchievementCatalog. The returned slice is a
// copy.
func (c *Catalog) Achievements() []domain.AchievementDefinition {
	return append([]domain.AchievementDefinition(nil), c.achievements...)
}

func validateExercise(ex domain.ExerciseDefinition) error {
	switch {
	case ex.Slug == "":
		return errors.New("exercise: missing slug")
	case ex.Difficulty < 1 || ex.Difficulty > 5:
		return fmt.Errorf("exercise %s: difficulty %d outside 1..5", ex.Slug, ex.Difficulty)
	case ex.BaseXP < 0:
		return fmt.Errorf("exercise %s: negative base_xp", ex.Slug)
	}
	return nil
}

func validateAchievement(a domain.AchievementDefinition) error {
	if a.Slug == "" {
		return errors.New("achievement: missing slug")
	}
	if a.XPReward < 0 || a.CoinReward < 0 {
		return fmt.Errorf("achievement %s: negative reward", a.Slug)
	}
	cond := a.Condition
	switch cond.Type {
	case domain.ConditionTotalWorkouts, domain.ConditionStreak, domain.ConditionLevel, domain.ConditionTotalXP:
	case domain.ConditionExerciseReps:
		if strings.TrimSpace(cond.Exercise) == "" {
			return fmt.Errorf("achievement %s: exercise_reps needs an exercise", a.Slug)
		}
	case domain.ConditionTimeOfDay:
		if (cond.Before == "") == (cond.After == "") {
			return fmt.Errorf("achievement %s: time_of_day needs exactly one of before/after", a.Slug)
		}
		cutoff := cond.Before
		if cutoff == "" {
			cutoff = cond.After
		}
		if _, err := domain.ParseClock(cutoff); err != nil {
			return fmt.Errorf("achievement %s: %w", a.Slug, err)
		}
	default:
		return fmt.Errorf("achievement %s: unknown condition type %q", a.Slug, cond.Type)
	}
	return nil
}
