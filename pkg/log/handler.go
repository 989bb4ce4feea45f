package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

type requestIDContextKey struct{}

// ContextWithRequestID returns ctx carrying id. Records logged through a
// ContextHandler with that context get a RequestIDKey attribute.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id stored by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// ContextHandler decorates slog records with the request id found in the
// context and with the cockroachdb/errors stack of an ErrAttr.
type ContextHandler struct {
	next slog.Handler
}

// WrapByErrFmtHandler wraps handler in a ContextHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ContextHandler{next: handler}
}

func (h *ContextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(RequestIDKey, id))
	}

	var stack string
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		if err, ok := attr.Value.Any().(error); ok {
			stack = stackOf(err)
		}
		return false
	})
	if stack != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stack))
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(g string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(g)}
}

// stackOf returns the first safe detail, which is the formatted stack for
// errors built with errors.WithStack.
func stackOf(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}
