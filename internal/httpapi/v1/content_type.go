package v1

import (
    "net/http"
    "strings"
)

// requireJSON rejects requests that declare a non-JSON Content-Type with 415.
// A missing Content-Type is accepted since some bank gateways omit it.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
    ct := r.Header.Get("Content-Type")
    if ct == "" { return true }
    mime := strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
    if mime != "application/json" { writeErr(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "unsupported_media_type"); return false }
    return true
}
