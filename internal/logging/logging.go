// Package logging configures the process-wide logrus logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger = logrus.New()

// LineFormatter implements the logrus.Formatter interface with one
// single-line entry per event: timestamp, level, message, then fields
// in key=value form sorted by key.
type LineFormatter struct{}

func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	b.WriteString(entry.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	b.WriteString(" ")
	b.WriteString(levelTag(entry.Level))
	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelTag(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Init sets level, formatter and output on the shared logger. When file is
// non-empty the log also goes to a size-rotated file next to stdout.
func Init(level, file string) {
	Logger.SetFormatter(&LineFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	Logger.SetLevel(parsed)

	var out io.Writer = os.Stdout
	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
	}
	Logger.SetOutput(out)
}

// Component returns a child logger tagged with the originating subsystem.
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
