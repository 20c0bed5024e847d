package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields carries structured context for a log entry.
type Fields = map[string]any

var std = newLogger(os.Stdout)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(levelFromEnv())
	return l
}

func levelFromEnv() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// Logger exposes the underlying logrus logger.
func Logger() *logrus.Logger { return std }

func Log(level logrus.Level, msg string, fields Fields) {
	std.WithFields(logrus.Fields(fields)).Log(level, msg)
}

func Debug(msg string, fields Fields) { Log(logrus.DebugLevel, msg, fields) }
func Info(msg string, fields Fields)  { Log(logrus.InfoLevel, msg, fields) }
func Warn(msg string, fields Fields)  { Log(logrus.WarnLevel, msg, fields) }
func Error(msg string, fields Fields) { Log(logrus.ErrorLevel, msg, fields) }
