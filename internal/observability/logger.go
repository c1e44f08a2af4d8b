package observability

import (
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags base with the app name and a fresh run id, installs it as
// the global logger and returns it with the run id.
func InitLogger(base zerolog.Logger, app string) (zerolog.Logger, string) {
	runID := xid.New().String()
	logger := base.With().Str("app", app).Str("run", runID).Logger()
	log.Logger = logger
	return logger, runID
}
