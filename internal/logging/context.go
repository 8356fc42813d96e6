package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// validID reports whether id is safe to echo into log fields.
func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

type requestCtxKey struct{}
type documentCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields returns correlation fields carried by ctx: the OTel trace
// and span ids, the request id and the document id.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := DocumentIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("document_id", id))
	}
	return fields
}

// WithRequestID stores a request id in ctx. Ids that are empty, too long or
// contain characters outside [A-Za-z0-9_.:-] are ignored, since request ids
// may come from client headers.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithDocumentID stores the document being ingested in ctx. Invalid ids are
// ignored like in WithRequestID.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	if !validID(documentID) {
		return ctx
	}
	return context.WithValue(ctx, documentCtxKey{}, documentID)
}

// DocumentIDFromContext returns the document id, or "".
func DocumentIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(documentCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
