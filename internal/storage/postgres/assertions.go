package postgres

import (
    "github.com/tinoosan/payments/internal/service/payment"
    "github.com/tinoosan/payments/internal/service/query"
)

var (
    _ payment.Store = (*Store)(nil)
    _ payment.Tx    = (*pgTx)(nil)
    _ query.Repo    = (*Store)(nil)
)
