package queuebacca

import (
	"log/slog"

	"github.com/chris-alexander-pop/queuebacca/logging"
)

// defaultLogger returns the package-wide logger every engine component
// logs through, so a host application only has to call logging.Init once.
func defaultLogger() *slog.Logger {
	return logging.L()
}
