package adapters

import (
	"context"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/rs/zerolog"
)

// ZerologTracer implements the Tracer port as structured log spans.
type ZerologTracer struct {
	logger zerolog.Logger
}

// NewZerologTracer creates a new zerolog tracer.
func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// StartSpan logs span_start and returns a finish func that logs span_end with the duration.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	spanLogger := t.logger.With().Str("span", name).Fields(attrs).Logger()
	ctx = spanLogger.WithContext(ctx)

	start := time.Now()
	spanLogger.Debug().Str("event", "span_start").Msg("span started")

	finish := func(err error) {
		event := spanLogger.Debug()
		if err != nil {
			event = spanLogger.Warn().Err(err)
		}
		event.Str("event", "span_end").Dur("duration", time.Since(start)).Msg("span ended")
	}
	return ctx, finish
}

// Event logs against the span logger carried by ctx, or the root logger outside a span.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled || logger == zerolog.DefaultContextLogger {
		logger = &t.logger
	}
	logger.Info().Fields(attrs).Str("event", name).Msg("trace event")
}

var _ ports.Tracer = (*ZerologTracer)(nil)
