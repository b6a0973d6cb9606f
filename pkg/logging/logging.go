// Package logging constructs the structured logger shared by the node's
// components. The logger is always passed in explicitly by callers (see
// internal/node.Node), never read from a package-level global, so tests can
// run with an isolated logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to stderr at the given level name
// ("debug", "info", "warning", "error"). An unrecognized level falls back to
// info, matching the teacher's permissive config loading.
func New(levelName string) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	lg.SetLevel(level)
	return lg
}
