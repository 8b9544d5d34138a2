package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// Audit records a security-relevant account event (registration,
// verification, login, password rotation). Event names follow the same
// account.* taxonomy as the flow metrics so log and metric queries line up,
// and the trace ids land as attributes for correlation in the backend.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", r.RemoteAddr,
		"request_id", chimiddleware.GetReqID(r.Context()),
	}
	if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
		base = append(base,
			"trace_id", sc.TraceID().String(),
			"span_id", sc.SpanID().String(),
		)
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}
