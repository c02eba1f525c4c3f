package testlog

import (
	"testing"

	"github.com/danmuck/matterctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Msgf("test=%s", t.Name())
}

// Logger returns the configured test logger tagged with the test name.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	return log.Logger.With().Str("test", t.Name()).Logger()
}
