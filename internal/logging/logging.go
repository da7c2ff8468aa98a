// Package logging configures the process-wide logrus logger with the
// field conventions the rest of this module relies on: conn_id on every
// per-connection line and follower_id on the leader's per-follower lines.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Setup installs a text formatter (full timestamps, no color forced so
// output stays greppable when redirected to a file) and the given level.
// Call once from main.
func Setup(level logrus.Level) {
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// ParseLevel wraps logrus.ParseLevel with a safe fallback to Info, so a
// typo'd --log-level flag degrades instead of refusing to start.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		logrus.WithField("value", s).Warn("logging: unknown level, defaulting to info")
		return logrus.InfoLevel
	}
	return lvl
}
