package v1

import (
    "time"

    "github.com/google/uuid"

    "github.com/tinoosan/payments/internal/ledger"
)

// webhookResponse acknowledges a bank notification. Duplicates are acknowledged
// with status already_processed so the sender stops redelivering.
type webhookResponse struct {
    Status      string `json:"status"`
    OperationID string `json:"operation_id"`
    Balance     string `json:"balance,omitempty"`
}

type balanceResponse struct {
    INN          string `json:"inn"`
    Balance      string `json:"balance"`
    BalanceMinor int64  `json:"balance_minor"`
}

type historyItem struct {
    Amount       string    `json:"amount"`
    CreatedAt    time.Time `json:"created_at"`
    BalanceAfter string    `json:"balance_after"`
}

type historyResponse struct {
    INN   string        `json:"inn"`
    Items []historyItem `json:"items"`
}

type organizationResponse struct {
    ID        uuid.UUID `json:"id"`
    INN       string    `json:"inn"`
    Balance   string    `json:"balance"`
    CreatedAt time.Time `json:"created_at"`
}

type paymentResponse struct {
    ID             uuid.UUID `json:"id"`
    OperationID    string    `json:"operation_id"`
    Amount         string    `json:"amount"`
    PayerINN       string    `json:"payer_inn"`
    DocumentNumber string    `json:"document_number"`
    DocumentDate   time.Time `json:"document_date"`
    CreatedAt      time.Time `json:"created_at"`
}

type listResponse[T any] struct {
    Items []T `json:"items"`
}

func toHistoryItems(entries []ledger.HistoryEntry) []historyItem {
    out := make([]historyItem, 0, len(entries))
    for _, e := range entries {
        out = append(out, historyItem{Amount: ledger.FormatAmount(e.Amount), CreatedAt: e.CreatedAt, BalanceAfter: ledger.FormatAmount(e.BalanceAfter)})
    }
    return out
}

func toOrganizationResponse(o ledger.Organization) organizationResponse {
    return organizationResponse{ID: o.ID, INN: o.INN, Balance: ledger.FormatAmount(o.Balance), CreatedAt: o.CreatedAt}
}

func toPaymentResponse(p ledger.Payment) paymentResponse {
    return paymentResponse{
        ID:             p.ID,
        OperationID:    p.OperationID,
        Amount:         ledger.FormatAmount(p.Amount),
        PayerINN:       p.PayerINN,
        DocumentNumber: p.DocumentNumber,
        DocumentDate:   p.DocumentDate,
        CreatedAt:      p.CreatedAt,
    }
}
