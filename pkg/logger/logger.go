package logger

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Init configures the standard logger. verbosity maps to Info (0),
// Debug (1) and Trace (2+). When logFilePath is set, output is mirrored
// to a size-rotated log file.
func Init(verbosity int, logFilePath string) error {
	switch {
	case verbosity == 1:
		logrus.SetLevel(logrus.DebugLevel)
	case verbosity > 1:
		logrus.SetLevel(logrus.TraceLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.SetFormatter(&prefixed.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	})

	if logFilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    5,
			MaxBackups: 2,
			MaxAge:     30,
		}
		logrus.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		logrus.SetOutput(os.Stderr)
	}

	return nil
}

// GetLogger returns a component scoped log entry.
func GetLogger(prefix string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"prefix": prefix})
}

// ShowTimeTaken logs the duration since start at info level.
func ShowTimeTaken(log *logrus.Entry, start time.Time) {
	log.Infof("Time taken: %s", time.Since(start).Truncate(time.Millisecond))
}
