// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Params struct {
	Level       string
	FormatJSON  bool
	FileName    string
	LogToStdout bool
	Service     string
}

// Setup configures the standard logger and returns it tagged with the
// service name.
func Setup(params Params) *logrus.Entry {
	return configure(logrus.StandardLogger(), params)
}

func configure(logger *logrus.Logger, params Params) *logrus.Entry {
	if params.FormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetLevel(GetLevel(params.Level))
	logger.SetOutput(output(params))

	entry := logrus.NewEntry(logger)
	if params.Service != "" {
		return entry.WithField("service", params.Service)
	}
	return entry
}

func output(params Params) io.Writer {
	if params.FileName == "" {
		return os.Stdout
	}
	if !strings.HasSuffix(params.FileName, ".log") {
		params.FileName += ".log"
	}
	file := &lumberjack.Logger{
		Filename:  params.FileName,
		MaxSize:   50, // megabytes
		LocalTime: false,
		Compress:  true,
	}
	if params.LogToStdout {
		return io.MultiWriter(os.Stdout, file)
	}
	return file
}

// GetLevel parses a level name. Unknown names fall back to info.
func GetLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
