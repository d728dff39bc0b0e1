package cache

import (
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/payments/internal/ledger"
)

// BalanceSnapshot is the cached form of an organization balance. Version is
// the id of the latest balance log entry, so a newer snapshot always has a
// higher version.
type BalanceSnapshot struct {
	ID           uuid.UUID `json:"id"`
	INN          string    `json:"inn"`
	BalanceMinor int64     `json:"balance_minor"`
	CreatedAt    time.Time `json:"created_at"`
	Version      int64     `json:"version"`
}

// SnapshotOf captures o for caching.
func SnapshotOf(o ledger.Organization) BalanceSnapshot {
	return BalanceSnapshot{ID: o.ID, INN: o.INN, BalanceMinor: ledger.Minor(o.Balance), CreatedAt: o.CreatedAt, Version: o.Version}
}

// Organization restores the cached organization.
func (b BalanceSnapshot) Organization() ledger.Organization {
	return ledger.Organization{ID: b.ID, INN: b.INN, Balance: ledger.FromMinor(b.BalanceMinor), CreatedAt: b.CreatedAt, Version: b.Version}
}

func (b BalanceSnapshot) CacheVersion() int64 { return b.Version }
