// Package logging installs the process logger and bridges third-party
// loggers into it.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// NameKey is the attribute naming the component that logged a record
const NameKey = "logger"

var discordgoLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogInformational: slog.LevelInfo,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogError:         slog.LevelError,
}

// NewHandler returns the tint handler used by every logger in the process
func NewHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(w),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Setup installs a tint logger at level as the slog default and returns it
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(NewHandler(w, level))
	slog.SetDefault(logger)
	return logger
}

// Named derives a component logger
func Named(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(NameKey, name)
}

// Err attaches err to a record in tint's format
func Err(err error) slog.Attr {
	return tint.Err(err)
}

// BridgeDiscordgo routes discordgo's internal log output into a tint
// handler filtered at level.
func BridgeDiscordgo(ctx context.Context, w io.Writer, level slog.Level) {
	discordgo.Logger = discordgoLoggerFunc(ctx, NewHandler(w, level))
}

// DiscordgoLevel maps level onto the session LogLevel that makes discordgo
// emit records at level and above.
func DiscordgoLevel(level slog.Level) int {
	switch {
	case level <= slog.LevelDebug:
		return discordgo.LogDebug
	case level <= slog.LevelInfo:
		return discordgo.LogInformational
	case level <= slog.LevelWarn:
		return discordgo.LogWarning
	default:
		return discordgo.LogError
	}
}

func discordgoLoggerFunc(ctx context.Context, handler slog.Handler) func(msgL, caller int, format string, args ...any) {
	log := slog.New(handler).With(NameKey, "discordgo")
	return func(msgL int, _ int, format string, args ...any) {
		level, ok := discordgoLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		log.LogAttrs(ctx, level, strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", ""))
	}
}
