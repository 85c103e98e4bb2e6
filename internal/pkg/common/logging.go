package common

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/samber/do/v2"
)

func NewLogger(level string) *slog.Logger {
	var programLevel slog.Level
	if err := (&programLevel).UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v, using info\n", level, err)
		programLevel = slog.LevelInfo
	}

	leveler := &slog.LevelVar{}
	leveler.Set(programLevel)

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     leveler,
	})

	return slog.New(h)
}

// Logger returns the injected logger, or slog's default when none was provided.
func Logger(i do.Injector) *slog.Logger {
	logger, err := do.InvokeNamed[*slog.Logger](i, "logger")
	if err != nil {
		return slog.Default()
	}

	return logger
}
