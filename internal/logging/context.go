package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

type requestCtxKey struct{}
type noteCtxKey struct{}
type extractionCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := NoteIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("note.id", id))
	}
	if id := ExtractionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("extraction.id", id))
	}

	return fields
}

// validID reports whether id is safe to emit as a correlation field.
// IDs come from HTTP headers and note sources, so anything unexpected is
// dropped instead of written into the log stream.
func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

func withID(ctx context.Context, key any, id string) context.Context {
	if !validID(id) {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds an HTTP request ID to context. Invalid IDs are ignored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return idFrom(ctx, requestCtxKey{})
}

// WithNoteID adds the source note ID to context. Invalid IDs are ignored.
func WithNoteID(ctx context.Context, id string) context.Context {
	return withID(ctx, noteCtxKey{}, id)
}

// NoteIDFromContext extracts the note ID from context.
func NoteIDFromContext(ctx context.Context) string {
	return idFrom(ctx, noteCtxKey{})
}

// WithExtractionID adds an extraction run ID to context. Invalid IDs are ignored.
func WithExtractionID(ctx context.Context, id string) context.Context {
	return withID(ctx, extractionCtxKey{}, id)
}

// ExtractionIDFromContext extracts the extraction run ID from context.
func ExtractionIDFromContext(ctx context.Context) string {
	return idFrom(ctx, extractionCtxKey{})
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger if none is set.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
