package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
)

var (
	ErrMissingID = errors.New("missing id")
	ErrInvalidID = errors.New("id must be a positive integer")
	ErrEmptyBody = errors.New("request body is empty")
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON document into dst. On failure it writes the
// problem response itself and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, env string) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxErr):
			problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypePayloadTooLarge, "Payload too large", err, env)
		case errors.Is(err, io.EOF):
			problem.BadRequest(w, r, ErrEmptyBody, env)
		case errors.As(err, &typeErr):
			problem.BadRequest(w, r, err, env, problem.WithErrors(map[string]any{
				typeErr.Field: fmt.Sprintf("must be %s", typeErr.Type),
			}))
		case errors.As(err, &syntaxErr):
			problem.BadRequest(w, r, fmt.Errorf("malformed JSON at offset %d", syntaxErr.Offset), env)
		default:
			problem.BadRequest(w, r, err, env)
		}
		return false
	}
	if dec.More() {
		problem.BadRequest(w, r, errors.New("request body must contain a single JSON object"), env)
		return false
	}
	return true
}

// pathID parses the {id} wildcard of the matched route.
func pathID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	if raw == "" {
		return 0, ErrMissingID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// requireID extracts the path id, writing a 400 when it is malformed.
func requireID(w http.ResponseWriter, r *http.Request, env string) (int64, bool) {
	id, err := pathID(r)
	if err != nil {
		problem.BadRequest(w, r, err, env, problem.WithErrors(map[string]any{"id": err.Error()}))
		return 0, false
	}
	return id, true
}
