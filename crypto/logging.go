package crypto

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// keyPreviewBytes bounds how much of a public key reaches the logs.
const keyPreviewBytes = 8

// LoggerHelper accumulates structured fields for one crypto operation and
// emits them through the global logrus logger.
type LoggerHelper struct {
	entry *logrus.Entry
}

// NewLogger starts a log context tagged with the package and the calling
// function name.
func NewLogger(function string) *LoggerHelper {
	return &LoggerHelper{entry: logrus.WithFields(logrus.Fields{
		"package":  "crypto",
		"function": function,
	})}
}

func (l *LoggerHelper) WithField(key string, value interface{}) *LoggerHelper {
	l.entry = l.entry.WithField(key, value)
	return l
}

func (l *LoggerHelper) WithFields(fields logrus.Fields) *LoggerHelper {
	l.entry = l.entry.WithFields(fields)
	return l
}

// WithError records err together with a coarse classification and the step
// of the exchange that failed.
func (l *LoggerHelper) WithError(err error, errorType, operation string) *LoggerHelper {
	return l.WithFields(logrus.Fields{
		"error":      err.Error(),
		"error_type": errorType,
		"operation":  operation,
	})
}

func (l *LoggerHelper) Debug(message string) { l.entry.Debug(message) }

func (l *LoggerHelper) Info(message string) { l.entry.Info(message) }

func (l *LoggerHelper) Warn(message string) { l.entry.Warn(message) }

// SecureFieldHash renders a truncated hex preview of public key material
// under <name>_preview and its length under <name>_size. Symmetric keys
// must never be passed here.
func SecureFieldHash(data []byte, name string) logrus.Fields {
	preview := "nil"
	switch {
	case len(data) > keyPreviewBytes:
		preview = hex.EncodeToString(data[:keyPreviewBytes]) + "..."
	case len(data) > 0:
		preview = hex.EncodeToString(data)
	}
	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}
