package audit

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	apiContext "ontohub/internal/api/context"
	"ontohub/internal/platform/auth"
)

// Logger records operator actions on webhooks and packages as structured
// log events.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger() *Logger {
	return &Logger{logger: log.With().Str("component", "audit").Logger()}
}

func (l *Logger) Log(r *http.Request, action, resourceType, resourceID string, metadata map[string]interface{}) {
	operator := "anonymous"
	if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok && claims.Operator != "" {
		operator = claims.Operator
	}

	event := l.logger.Info().
		Str("operator", operator).
		Str("action", action).
		Str("resource_type", resourceType).
		Str("resource_id", resourceID).
		Str("ip_address", r.RemoteAddr).
		Str("user_agent", r.UserAgent())
	if len(metadata) > 0 {
		event = event.Fields(metadata)
	}
	event.Msg("Operator action")
}
