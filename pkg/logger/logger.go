package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogMode selects the output format and level of the process logger.
type LogMode string

const (
	LogModeDebug  LogMode = "debug"
	LogModePretty LogMode = "pretty"
	LogModeInfo   LogMode = "info"
	LogModeProd   LogMode = "prod"
	LogModeTest   LogMode = "test"
)

// Logs go to stderr so that stdout only carries the command's JSON result.
var log = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitWithMode configures the logger for the given mode on stderr.
func InitWithMode(mode LogMode) {
	InitWithWriter(mode, os.Stderr)
}

// InitWithWriter configures the logger for the given mode on w.
func InitWithWriter(mode LogMode, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch mode {
	case LogModeProd:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log = zerolog.New(w).With().Timestamp().Logger()
	case LogModeTest:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		log = zerolog.New(consoleWriter(w, true)).With().Timestamp().Logger()
	case LogModeDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log = zerolog.New(consoleWriter(w, false)).With().Timestamp().Caller().Logger()
	case LogModeInfo:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log = zerolog.New(consoleWriter(w, true)).With().Timestamp().Logger()
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log = zerolog.New(consoleWriter(w, false)).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log
}

// ParseMode maps a --log flag value to a LogMode, falling back to pretty.
func ParseMode(s string) LogMode {
	switch LogMode(s) {
	case LogModeDebug, LogModePretty, LogModeInfo, LogModeProd, LogModeTest:
		return LogMode(s)
	default:
		return LogModePretty
	}
}

func consoleWriter(w io.Writer, noColor bool) zerolog.ConsoleWriter {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    noColor,
	}
	if noColor {
		return output
	}

	output.FormatLevel = func(i interface{}) string {
		s, _ := i.(string)
		return colorizeLevel(s)
	}
	output.FormatMessage = func(i interface{}) string {
		s, _ := i.(string)
		return colorize(s, cyan)
	}
	output.FormatFieldName = func(i interface{}) string {
		return colorize(fmt.Sprint(i)+":", gray)
	}
	output.FormatFieldValue = func(i interface{}) string {
		switch v := i.(type) {
		case string:
			return colorize(v, blue)
		case json.Number:
			return colorize(v.String(), blue)
		default:
			return colorize(fmt.Sprint(v), blue)
		}
	}
	return output
}

// ANSI color codes
const (
	gray  = "\x1b[37m"
	blue  = "\x1b[34m"
	cyan  = "\x1b[36m"
	red   = "\x1b[31m"
	reset = "\x1b[0m"
)

func colorize(s, color string) string {
	return color + s + reset
}

func colorizeLevel(level string) string {
	switch level {
	case "debug":
		return colorize("DBG", gray)
	case "info":
		return colorize("INF", blue)
	case "warn":
		return colorize("WRN", cyan)
	case "error":
		return colorize("ERR", red)
	default:
		return colorize(level, blue)
	}
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
