package processor

import (
	"fmt"
	"log/slog"
)

// poolLogger adapts slog to the ants logger interface.
type poolLogger struct {
	logger *slog.Logger
}

func (l poolLogger) Printf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
