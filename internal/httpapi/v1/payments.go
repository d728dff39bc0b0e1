package v1

import (
    "net/http"

    "github.com/tinoosan/payments/internal/service/query"
)

func (s *Server) searchPayments(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    payments, err := s.queries.Payments(r.Context(), query.PaymentFilter{
        OperationID:    q.Get("operation_id"),
        PayerINN:       q.Get("payer_inn"),
        DocumentNumber: q.Get("document_number"),
        Limit:          s.queries.Limits().Parse(q.Get("limit")),
    })
    if err != nil { s.writeQueryError(w, r, err); return }
    items := make([]paymentResponse, 0, len(payments))
    for _, p := range payments { items = append(items, toPaymentResponse(p)) }
    toJSON(w, http.StatusOK, listResponse[paymentResponse]{Items: items})
}
