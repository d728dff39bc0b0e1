package v1

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/tinoosan/payments/internal/service/payment"
)

type ctxKey string

const ctxKeyWebhook ctxKey = "validatedWebhook"

// maxWebhookBody caps webhook payloads.
const maxWebhookBody = 1 << 20

// webhookRequest mirrors the bank payload. amount may be a JSON string or
// number and is kept as raw text so it can be parsed exactly.
type webhookRequest struct {
    OperationID    string          `json:"operation_id"`
    Amount         json.RawMessage `json:"amount"`
    PayerINN       string          `json:"payer_inn"`
    DocumentNumber string          `json:"document_number"`
    DocumentDate   string          `json:"document_date"`
}

var documentDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// validateWebhook decodes the bank payload into a payment.Event and stores it
// in the request context. Field presence and amount rules are left to the
// service so the outcome reasons stay in one place. Unknown fields are ignored.
func (s *Server) validateWebhook() func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            if !requireJSON(w, r) { return }
            var req webhookRequest
            dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody))
            if err := dec.Decode(&req); err != nil {
                badRequest(w, "invalid JSON: "+err.Error())
                return
            }
            amount, err := rawAmount(req.Amount)
            if err != nil { badRequest(w, err.Error()); return }
            date, err := parseDocumentDate(req.DocumentDate)
            if err != nil { badRequest(w, err.Error()); return }

            ev := payment.Event{
                OperationID:    req.OperationID,
                Amount:         amount,
                PayerINN:       req.PayerINN,
                DocumentNumber: req.DocumentNumber,
                DocumentDate:   date,
            }
            ctx := context.WithValue(r.Context(), ctxKeyWebhook, ev)
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

// rawAmount returns the textual amount of a JSON string or number. null and
// absent values yield "".
func rawAmount(raw json.RawMessage) (string, error) {
    raw = bytes.TrimSpace(raw)
    if len(raw) == 0 || bytes.Equal(raw, []byte("null")) { return "", nil }
    switch raw[0] {
    case '"':
        var s string
        if err := json.Unmarshal(raw, &s); err != nil { return "", fmt.Errorf("invalid amount: %w", err) }
        return s, nil
    default:
        // numbers keep their literal text; anything else fails amount parsing later
        return string(raw), nil
    }
}

// parseDocumentDate accepts RFC3339 timestamps and plain dates. Empty yields the zero time.
func parseDocumentDate(s string) (time.Time, error) {
    s = strings.TrimSpace(s)
    if s == "" { return time.Time{}, nil }
    for _, layout := range documentDateLayouts {
        if t, err := time.Parse(layout, s); err == nil { return t.UTC(), nil }
    }
    return time.Time{}, fmt.Errorf("invalid document_date %q", s)
}
