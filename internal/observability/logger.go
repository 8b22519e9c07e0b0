package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger derives an app-scoped logger from the global one configured by
// internal/logging.
func Logger(app string) zerolog.Logger {
	return log.With().Str("app", app).Logger()
}
