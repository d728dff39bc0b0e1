package payment_test

import "github.com/tinoosan/payments/internal/service/query"

func queryAll() query.PaymentFilter { return query.PaymentFilter{} }

func orgFilter(inn string) query.OrganizationFilter { return query.OrganizationFilter{INN: inn} }
