package v1

import (
    "encoding/json"
    "errors"
    "net/http"

    chimw "github.com/go-chi/chi/v5/middleware"

    "github.com/tinoosan/payments/internal/errs"
)

type errorResponse struct {
    Error string `json:"error"`
    Code  string `json:"code,omitempty"`
}

func toJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
    toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "bad_request") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func unprocessable(w http.ResponseWriter, msg, code string) {
    writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// busy answers 503 with a retry hint.
func busy(w http.ResponseWriter) {
    w.Header().Set("Retry-After", "1")
    writeErr(w, http.StatusServiceUnavailable, "contention", "contention")
}

// internalError logs err and answers with an opaque 500.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
    s.log.Error("internal error", "req_id", chimw.GetReqID(r.Context()), "path", r.URL.Path, "err", err)
    writeErr(w, http.StatusInternalServerError, "internal_error", "internal_error")
}

// writeQueryError maps read-side errors onto HTTP statuses.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
    switch {
    case errors.Is(err, errs.ErrNotFound):
        notFound(w)
    case errors.Is(err, errs.ErrContention):
        busy(w)
    default:
        s.internalError(w, r, err)
    }
}
