package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys shared by the middleware and the loggers.
const (
	LoggerKey  = "logger"
	TraceIDKey = "traceID"
	EventIDKey = "event_id"
)

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(LoggerKey); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns a logger from context if set, otherwise attempts to enrich
// base with trace_id/event_id from context values.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value(LoggerKey).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	var fields []interface{}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok && tid != "" {
		fields = append(fields, "trace_id", tid)
	}
	if eid, ok := ctx.Value(EventIDKey).(string); ok && eid != "" {
		fields = append(fields, "event_id", eid)
	}
	if len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

// WithEvent returns a context whose logger carries the provider event id and
// type, so every line written while reconciling one event can be grouped.
func WithEvent(ctx context.Context, base *zap.SugaredLogger, eventID, eventType string) context.Context {
	lg := FromCtx(ctx, base).With("event_id", eventID, "event_type", eventType)
	ctx = context.WithValue(ctx, EventIDKey, eventID)
	return context.WithValue(ctx, LoggerKey, lg)
}
