package audit

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry represents a single audit log entry with structured fields
type Entry struct {
	Timestamp    time.Time
	Action       string
	Actor        string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Status       string // "success" or "failure"
	Details      map[string]string
}

// Logger records security-relevant account and data operations.
type Logger struct {
	output zerolog.Logger
}

func NewLogger(w io.Writer) *Logger {
	return &Logger{
		output: zerolog.New(w).With().Str("log", "audit").Logger(),
	}
}

// FromZerolog derives an audit logger from an application logger so that
// audit lines share its output and format.
func FromZerolog(logger zerolog.Logger) *Logger {
	return &Logger{output: logger.With().Str("log", "audit").Logger()}
}

func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	event := l.output.Log().
		Time("timestamp", entry.Timestamp).
		Str("action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status)
	if entry.ResourceType != "" {
		event = event.Str("resource_type", entry.ResourceType)
	}
	if entry.ResourceID != "" {
		event = event.Str("resource_id", entry.ResourceID)
	}
	if entry.IPAddress != "" {
		event = event.Str("ip_address", entry.IPAddress)
	}
	if len(entry.Details) > 0 {
		dict := zerolog.Dict()
		for k, v := range entry.Details {
			dict = dict.Str(k, v)
		}
		event = event.Dict("details", dict)
	}
	event.Send()
}

func (l *Logger) LogSuccess(ctx context.Context, action, actor, resourceType, resourceID string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ClientIP(ctx),
		Status:       "success",
		Details:      details,
	})
}

func (l *Logger) LogFailure(ctx context.Context, action, actor string, details map[string]string) {
	l.Log(Entry{
		Action:    action,
		Actor:     actor,
		IPAddress: ClientIP(ctx),
		Status:    "failure",
		Details:   details,
	})
}

type contextKey string

const clientIPKey contextKey = "auditClientIP"

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}

// ExtractClientIP prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the connection's remote address.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware stores the client address on the request context for services
// that write audit entries.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientIP(r.Context(), ExtractClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
