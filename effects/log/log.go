package log

import (
	"context"
	"maps"

	"github.com/on-the-ground/saga_ive_go/effects"
	effectmodel "github.com/on-the-ground/saga_ive_go/effects/internal/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	// LogError is for failures the process survives, such as a failed fork.
	LogError LogLevel = "error"
)

var zapLevels = map[LogLevel]zapcore.Level{
	LogDebug: zapcore.DebugLevel,
	LogInfo:  zapcore.InfoLevel,
	LogWarn:  zapcore.WarnLevel,
	LogError: zapcore.ErrorLevel,
}

// LogPayload is what a log effect carries to its handler.
type LogPayload struct {
	Level   LogLevel
	Message string
	Fields  map[string]interface{}
}

// WithZapEffectHandler registers a log effect handler writing to logger.
// Unknown levels are written at info. The returned teardown syncs the
// logger and gives back ctx.
func WithZapEffectHandler(
	ctx context.Context,
	bufferSize int,
	logger *zap.Logger,
) (context.Context, func() context.Context) {
	return effects.WithFireAndForgetEffectHandler(
		ctx,
		bufferSize,
		effectmodel.EffectLog,
		func(_ context.Context, payload LogPayload) {
			level, ok := zapLevels[payload.Level]
			if !ok {
				level = zapcore.InfoLevel
			}
			fields := make([]zap.Field, 0, len(payload.Fields))
			for k, v := range payload.Fields {
				fields = append(fields, zap.Any(k, v))
			}
			logger.Log(level, payload.Message, fields...)
		},
		func() {
			// stdout/stderr sinks report EINVAL on sync; nothing to do about it.
			_ = logger.Sync()
		},
	)
}

type fieldsKey struct{}

// WithFields returns a context whose log effects carry fields, merged under
// the fields of each call. Nested calls accumulate.
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	merged := maps.Clone(fieldsFrom(ctx))
	if merged == nil {
		merged = make(map[string]interface{}, len(fields))
	}
	maps.Copy(merged, fields)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func fieldsFrom(ctx context.Context) map[string]interface{} {
	fields, _ := ctx.Value(fieldsKey{}).(map[string]interface{})
	return fields
}

// Effect emits a structured log through the handler registered in ctx.
// Without a handler the message is dropped.
func Effect(ctx context.Context, level LogLevel, msg string, fields map[string]interface{}) {
	if base := fieldsFrom(ctx); len(base) > 0 {
		merged := maps.Clone(base)
		maps.Copy(merged, fields)
		fields = merged
	}
	_ = effects.FireAndForgetEffect(ctx, effectmodel.EffectLog, LogPayload{
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}
