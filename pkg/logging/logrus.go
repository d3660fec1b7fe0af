// Package logging builds the logrus loggers used across the tracker.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logrus creates context-tagged logrus entries sharing one level and output.
type Logrus struct {
	level  string
	output io.Writer
	json   bool
}

// NewLogrus creates a factory. An unknown level falls back to info and a nil
// output to stderr.
func NewLogrus(level string, output io.Writer) *Logrus {
	if output == nil {
		output = os.Stderr
	}
	return &Logrus{level: level, output: output}
}

// WithJSON switches the formatter to JSON.
func (l *Logrus) WithJSON(enabled bool) *Logrus {
	l.json = enabled
	return l
}

// Get returns a logger entry tagged with the given context name.
func (l *Logrus) Get(context string) *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(l.level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if l.json {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	log.SetOutput(l.output)
	return log.WithFields(logrus.Fields{
		"Context": context,
	})
}
