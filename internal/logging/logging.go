// Package logging builds the logrus logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w at level ("debug", "info", ...) in
// format "text" or "json".
func New(level, format string, w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)

	lvl := logrus.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		if lvl, err = logrus.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	log.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log, nil
}

// Batch logs the attempted vs produced summary every command ends with.
func Batch(log logrus.FieldLogger, what string, attempted, produced, failed int) {
	log.WithFields(logrus.Fields{
		"attempted": attempted,
		"produced":  produced,
		"failed":    failed,
	}).Infof("%s done", what)
}
