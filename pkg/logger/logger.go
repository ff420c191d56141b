package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Setup(os.Getenv("GEMCHAT_LOG_LEVEL"))
}

// Setup configures the global logger. Level is one of zerolog's level
// strings ("debug", "info", ...); empty or unknown falls back to info.
func Setup(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func Debug(msg string) { log.Debug().Msg(msg) }
func Info(msg string)  { log.Info().Msg(msg) }
func Warn(msg string)  { log.Warn().Msg(msg) }
func Error(msg string) { log.Error().Msg(msg) }

// InfoCF logs at info level with a component tag and structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	withFields(log.Info(), component, fields).Msg(msg)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	withFields(log.Warn(), component, fields).Msg(msg)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	withFields(log.Error(), component, fields).Msg(msg)
}

func DebugCF(component, msg string, fields map[string]interface{}) {
	withFields(log.Debug(), component, fields).Msg(msg)
}

func withFields(ev *zerolog.Event, component string, fields map[string]interface{}) *zerolog.Event {
	ev = ev.Str("component", component)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}
