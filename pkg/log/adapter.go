package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogger implements badger.Logger on top of a logrus entry.
// Badger reports routine compaction and replay progress at info level; those lines are demoted to debug
// so a normal generation run only shows the sitemap output.
type BadgerLogger struct {
	entry *logrus.Entry
}

// NewBadgerLogger creates a new adapter
func NewBadgerLogger(entry *logrus.Entry) *BadgerLogger {
	return &BadgerLogger{entry: entry}
}

// Errorf logs an error message
func (l *BadgerLogger) Errorf(f string, v ...interface{}) { l.entry.Error(trimMessage(f, v)) }

// Warningf logs a warning message
func (l *BadgerLogger) Warningf(f string, v ...interface{}) { l.entry.Warn(trimMessage(f, v)) }

// Infof logs at debug level
func (l *BadgerLogger) Infof(f string, v ...interface{}) { l.entry.Debug(trimMessage(f, v)) }

// Debugf logs at trace level
func (l *BadgerLogger) Debugf(f string, v ...interface{}) { l.entry.Trace(trimMessage(f, v)) }

// badger terminates most messages with a newline, logrus adds its own
func trimMessage(f string, v []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(f, v...), "\n")
}
