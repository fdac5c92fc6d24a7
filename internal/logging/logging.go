// Package logging provides the server's coloured, leveled console logger.
// It reproduces the four-severity, colour-coded scheme of the original
// reference logger (cyan DEBUG, green INFO, yellow WARNING, red ERROR) on
// top of zerolog rather than hand-rolling one, per the ambient-stack
// design in SPEC_FULL.md.
//
// A Logger is a value threaded through constructors, never a package
// global: two servers in the same process (as in tests) get independent,
// independently-leveled loggers.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Level mirrors the four severities spec.md §6 requires.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to LevelInfo on
// anything unrecognised.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warning", "warn":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

const (
	colorReset  = "\033[0m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

// Logger wraps a zerolog.Logger configured with the reference colour
// scheme and a runtime-fixed minimum severity.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing to w (normally os.Stdout) at minLevel and
// above.
func New(w io.Writer, minLevel Level) Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    false,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			lvl, _ := i.(string)
			switch lvl {
			case "debug":
				return colorCyan + "[DEBUG]" + colorReset
			case "info":
				return colorGreen + "[INFO]" + colorReset
			case "warn":
				return colorYellow + "[WARNING]" + colorReset
			case "error":
				return colorRed + "[ERROR]" + colorReset
			default:
				return "[" + strings.ToUpper(lvl) + "]"
			}
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("%v", i)
		},
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
	}

	z := zerolog.New(cw).Level(minLevel.zerolog()).With().Timestamp().Logger()
	return Logger{z: z}
}

// With returns a Logger with a connection correlation id attached to every
// subsequent line, so interleaved log output from concurrent connections
// (all funnelled through the same single-threaded loop) stays legible.
func (l Logger) With(connID uuid.UUID) Logger {
	return Logger{z: l.z.With().Str("conn", connID.String()[:8]).Logger()}
}

func (l Logger) Debug(msg string)   { l.z.Debug().Msg(msg) }
func (l Logger) Info(msg string)    { l.z.Info().Msg(msg) }
func (l Logger) Warn(msg string)    { l.z.Warn().Msg(msg) }
func (l Logger) Error(msg string)   { l.z.Error().Msg(msg) }
func (l Logger) Debugf(format string, args ...interface{}) { l.z.Debug().Msg(fmt.Sprintf(format, args...)) }
func (l Logger) Infof(format string, args ...interface{})  { l.z.Info().Msg(fmt.Sprintf(format, args...)) }
func (l Logger) Warnf(format string, args ...interface{})  { l.z.Warn().Msg(fmt.Sprintf(format, args...)) }
func (l Logger) Errorf(format string, args ...interface{}) { l.z.Error().Msg(fmt.Sprintf(format, args...)) }
