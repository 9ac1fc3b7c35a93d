package logging

import (
	"os"

	"github.com/jabolina/go-dlock/internal/types"
	"github.com/sirupsen/logrus"
)

// Logrus adapts a *logrus.Logger to the narrow types.Logger interface
// used across the repository. This replaces the teacher's
// DefaultLogger, which wrapped the standard library's log.Logger;
// here we wrap logrus so every peer emits structured, leveled
// records instead of a single formatted string.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogger builds a Logrus-backed logger tagged with the given
// peer name, writing to stderr through logrus's text formatter with
// full timestamps.
func NewLogger(peer string) *Logrus {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return &Logrus{entry: base.WithField("peer", peer)}
}

func (l *Logrus) Info(v ...interface{})                    { l.entry.Info(v...) }
func (l *Logrus) Infof(format string, v ...interface{})     { l.entry.Infof(format, v...) }
func (l *Logrus) Warn(v ...interface{})                     { l.entry.Warn(v...) }
func (l *Logrus) Warnf(format string, v ...interface{})     { l.entry.Warnf(format, v...) }
func (l *Logrus) Error(v ...interface{})                    { l.entry.Error(v...) }
func (l *Logrus) Errorf(format string, v ...interface{})    { l.entry.Errorf(format, v...) }
func (l *Logrus) Debug(v ...interface{})                    { l.entry.Debug(v...) }
func (l *Logrus) Debugf(format string, v ...interface{})    { l.entry.Debugf(format, v...) }
func (l *Logrus) Fatal(v ...interface{})                    { l.entry.Fatal(v...) }
func (l *Logrus) Fatalf(format string, v ...interface{})    { l.entry.Fatalf(format, v...) }

func (l *Logrus) ToggleDebug(value bool) bool {
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

var _ types.Logger = (*Logrus)(nil)
