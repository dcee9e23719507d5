package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"example.com/progression/internal/scoring"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestLevelsGolden(t *testing.T) {
	out, err := run(t, "levels", "--max", "5")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "levels", []byte(out))
}

func TestLevelsRejectsBadMax(t *testing.T) {
	_, err := run(t, "levels", "--max", "0")
	require.ErrorContains(t, err, "--max")
}

func TestCatalogEmbeddedJSON(t *testing.T) {
	out, err := run(t, "--format", "json", "catalog")
	require.NoError(t, err)

	var summary catalogSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.True(t, summary.Valid)
	require.Equal(t, 16, summary.Exercises)
	require.Equal(t, 14, summary.Achievements)
	require.Contains(t, summary.Slugs, "push_up")
}

func TestCatalogReportsInvalidDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exercises.yaml"), []byte("exercises:\n  - slug: bad\n    name: Bad\n    base_xp: 1\n    difficulty: 9\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "achievements.yaml"), []byte("achievements: []\n"), 0o600))

	_, err := run(t, "--catalog-dir", dir, "catalog")
	require.Error(t, err)
}

func TestXPPreviewMatchesScoring(t *testing.T) {
	out, err := run(t, "--format", "json", "xp", "push_up", "--sets", "10,25", "--streak", "3", "--first-today")
	require.NoError(t, err)

	var preview xpPreview
	require.NoError(t, json.Unmarshal([]byte(out), &preview))
	first := scoring.XPForSet(10, 2, 10, 3, true)
	second := scoring.XPForSet(10, 2, 25, 3, true)
	require.Equal(t, []int{first, second}, preview.SetXP)
	require.Equal(t, first+second, preview.Total)
}

func TestXPPreviewErrors(t *testing.T) {
	_, err := run(t, "xp", "moon_walk", "--sets", "10")
	require.ErrorContains(t, err, "unknown exercise")

	_, err = run(t, "xp", "push_up")
	require.ErrorContains(t, err, "--sets")

	_, err = run(t, "--format", "yaml", "levels")
	require.ErrorContains(t, err, "invalid format")
}
