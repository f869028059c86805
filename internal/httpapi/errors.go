package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/imagegen"
	"inferd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known generation errors to HTTP status codes.
// Bad parameters are the caller's fault; a missing model means the daemon
// has not finished fetching assets; subprocess trouble is a 503 because a
// retry may succeed once the machine is less loaded.
func statusForError(err error) int {
	switch {
	case imagegen.IsInvalidParams(err):
		return http.StatusBadRequest
	case imagegen.IsNotFound(err):
		return http.StatusConflict
	case imagegen.IsSubprocessFailure(err), imagegen.IsOutputTimeout(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
