package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestGetLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		" WARN ":  logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"trace":   logrus.TraceLevel,
		"":        logrus.InfoLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, GetLevel(in), in)
	}
}

func TestConfigureWritesJSONToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.New()

	entry := configure(logger, Params{
		Level:      "debug",
		FormatJSON: true,
		FileName:   filepath.Join(dir, "progression"),
		Service:    "api",
	})
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
	require.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	entry.WithField("user_id", "u1").Info("workout completed")

	data, err := os.ReadFile(filepath.Join(dir, "progression.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"service":"api"`)
	require.Contains(t, string(data), `"user_id":"u1"`)
}
