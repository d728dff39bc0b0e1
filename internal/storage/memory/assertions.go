package memory

import (
    "github.com/tinoosan/payments/internal/service/payment"
    "github.com/tinoosan/payments/internal/service/query"
)

// Compile-time assertions that Store implements the service-facing interfaces.
var (
    _ payment.Store = (*Store)(nil)
    _ payment.Tx    = (*tx)(nil)
    _ query.Repo    = (*Store)(nil)
)
