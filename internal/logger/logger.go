// Package logger configures the process-wide zerolog logger and exposes
// component-scoped child loggers.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide logger, populated by Initialize.
var Log zerolog.Logger

// Initialize configures the global logger from the given level and format.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "cs2kz-api").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger { return &Log }

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Auth returns a logger scoped to the authentication subsystem.
func Auth() *zerolog.Logger { return component("auth") }

// WebSocket returns a logger scoped to the game-server WebSocket protocol.
func WebSocket() *zerolog.Logger { return component("websocket") }

// Ingest returns a logger scoped to record ingestion.
func Ingest() *zerolog.Logger { return component("ingest") }

// Points returns a logger scoped to the points/rating pipeline.
func Points() *zerolog.Logger { return component("points") }

// ScriptHost returns a logger scoped to the external statistics host.
func ScriptHost() *zerolog.Logger { return component("scripthost") }

// Database returns a logger scoped to database operations.
func Database() *zerolog.Logger { return component("database") }

// A2S returns a logger scoped to the game-server info poller.
func A2S() *zerolog.Logger { return component("a2s") }

// HTTP returns a logger scoped to HTTP request handling.
func HTTP() *zerolog.Logger { return component("http") }
