package v1

import (
    "net/http"

    chi "github.com/go-chi/chi/v5"

    "github.com/tinoosan/payments/internal/ledger"
    "github.com/tinoosan/payments/internal/service/query"
)

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
    org, err := s.queries.Balance(r.Context(), chi.URLParam(r, "inn"))
    if err != nil { s.writeQueryError(w, r, err); return }
    toJSON(w, http.StatusOK, balanceResponse{INN: org.INN, Balance: ledger.FormatAmount(org.Balance), BalanceMinor: ledger.Minor(org.Balance)})
}

// getBalanceHistory lists balance changes newest first. limit defaults to 10
// and is clamped; non-numeric values fall back to the default.
func (s *Server) getBalanceHistory(w http.ResponseWriter, r *http.Request) {
    inn := chi.URLParam(r, "inn")
    limit := s.queries.Limits().Parse(r.URL.Query().Get("limit"))
    entries, err := s.queries.History(r.Context(), inn, limit)
    if err != nil { s.writeQueryError(w, r, err); return }
    toJSON(w, http.StatusOK, historyResponse{INN: inn, Items: toHistoryItems(entries)})
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    orgs, err := s.queries.Organizations(r.Context(), query.OrganizationFilter{
        INN:   q.Get("inn"),
        Limit: s.queries.Limits().Parse(q.Get("limit")),
    })
    if err != nil { s.writeQueryError(w, r, err); return }
    items := make([]organizationResponse, 0, len(orgs))
    for _, o := range orgs { items = append(items, toOrganizationResponse(o)) }
    toJSON(w, http.StatusOK, listResponse[organizationResponse]{Items: items})
}
