package v1

import (
    "net/http"

    chimw "github.com/go-chi/chi/v5/middleware"

    "github.com/tinoosan/payments/internal/ledger"
    "github.com/tinoosan/payments/internal/service/payment"
)

// postBankWebhook applies a bank notification. Lock contention is retried with
// backoff before answering 503.
func (s *Server) postBankWebhook(w http.ResponseWriter, r *http.Request) {
    ev, ok := r.Context().Value(ctxKeyWebhook).(payment.Event)
    if !ok { badRequest(w, "missing webhook payload"); return }

    var out payment.Outcome
    _ = s.retry.Retry(r.Context(), func() error {
        out = s.payments.Ingest(r.Context(), ev)
        if out.Retryable() { return out.Err }
        return nil
    })
    webhookOutcomes.WithLabelValues(outcomeLabel(out)).Inc()

    reqID := chimw.GetReqID(r.Context())
    switch {
    case out.Accepted():
        s.log.Info("payment accepted",
            "req_id", reqID,
            "operation_id", out.Payment.OperationID,
            "inn", out.Organization.INN,
            "amount", ledger.FormatAmount(out.Payment.Amount),
            "balance", ledger.FormatAmount(out.Organization.Balance),
        )
        toJSON(w, http.StatusOK, webhookResponse{Status: "success", OperationID: out.Payment.OperationID, Balance: ledger.FormatAmount(out.Organization.Balance)})
    case out.Duplicate():
        s.log.Info("payment already processed", "req_id", reqID, "operation_id", ev.OperationID)
        toJSON(w, http.StatusOK, webhookResponse{Status: "already_processed", OperationID: ev.OperationID})
    case out.Reason == payment.ReasonMissingFields, out.Reason == payment.ReasonInvalidAmount:
        s.log.Warn("payment rejected", "req_id", reqID, "operation_id", ev.OperationID, "reason", out.Reason, "err", out.Err)
        unprocessable(w, out.Err.Error(), string(out.Reason))
    case out.Retryable():
        s.log.Warn("payment contention", "req_id", reqID, "operation_id", ev.OperationID, "err", out.Err)
        busy(w)
    default:
        s.internalError(w, r, out.Err)
    }
}

func outcomeLabel(out payment.Outcome) string {
    if out.Accepted() { return string(payment.StatusAccepted) }
    if out.Retryable() { return "contention" }
    return string(out.Reason)
}
