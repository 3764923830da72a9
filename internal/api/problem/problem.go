package problem

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://lgn.dev/problems/"

const (
	TypeValidation      = typeBase + "validation-error"
	TypeNotFound        = typeBase + "not-found"
	TypeUnauthorized    = typeBase + "unauthorized"
	TypeForbidden       = typeBase + "forbidden"
	TypeConflict        = typeBase + "conflict"
	TypePayloadTooLarge = typeBase + "payload-too-large"
	TypeRateLimited     = typeBase + "rate-limited"
	TypeServerError     = typeBase + "server-error"
)

type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

// Write renders an RFC 7807 response. Outside development and test the raw
// error text is replaced with the status text unless a detail is given.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if problem.Instance == "" && r != nil {
		problem.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if event != nil {
			event.
				Err(err).
				Int("status", status).
				Str("type", typ).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg(title)
		}
	}

	WriteProblem(w, problem)
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}

func BadRequest(w http.ResponseWriter, r *http.Request, err error, env string, opts ...Option) {
	Write(w, r, http.StatusBadRequest, TypeValidation, "Invalid request", err, env, opts...)
}

func NotFound(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusNotFound, TypeNotFound, "Not found", err, env)
}

func Unauthorized(w http.ResponseWriter, r *http.Request, err error, env string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="lgn"`)
	Write(w, r, http.StatusUnauthorized, TypeUnauthorized, "Unauthorized", err, env)
}

func Forbidden(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusForbidden, TypeForbidden, "Forbidden", err, env)
}

func Conflict(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusConflict, TypeConflict, "Conflict", err, env)
}

func ServerError(w http.ResponseWriter, r *http.Request, err error, env string) {
	Write(w, r, http.StatusInternalServerError, TypeServerError, "Server error", err, env)
}
