package cloudsync

import (
	"context"
	"encoding/json"

	"pharmastore/backend/internal/audit"
	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/inventory"
	"pharmastore/backend/internal/ledger"
	"pharmastore/backend/internal/storage"
	"pharmastore/backend/internal/users"
)

// DefaultCollections wires the four synced collections to their owning
// components. The adapter names double as the remote document names.
func DefaultCollections(inv *inventory.Store, led *ledger.Ledger, usr *users.Store, trail *audit.Trail) []Collection {
	return []Collection{
		{
			Name:   storage.KeyDrugs,
			Export: func() any { return inv.List() },
			Replace: func(ctx context.Context, data json.RawMessage) error {
				var drugs []domain.Drug
				if err := json.Unmarshal(data, &drugs); err != nil {
					return err
				}
				inv.Replace(ctx, drugs)
				return nil
			},
		},
		{
			Name:   storage.KeySales,
			Export: func() any { return led.List() },
			Replace: func(ctx context.Context, data json.RawMessage) error {
				var sales []domain.Sale
				if err := json.Unmarshal(data, &sales); err != nil {
					return err
				}
				led.Replace(ctx, sales)
				return nil
			},
		},
		{
			Name:   storage.KeyUsers,
			Export: func() any { return usr.Export() },
			Replace: func(ctx context.Context, data json.RawMessage) error {
				var accounts []domain.User
				if err := json.Unmarshal(data, &accounts); err != nil {
					return err
				}
				usr.Replace(ctx, accounts)
				return nil
			},
		},
		{
			Name:   storage.KeyAuditLog,
			Export: func() any { return trail.List() },
			Replace: func(ctx context.Context, data json.RawMessage) error {
				var entries []domain.AuditEntry
				if err := json.Unmarshal(data, &entries); err != nil {
					return err
				}
				trail.Replace(ctx, entries)
				return nil
			},
		},
	}
}
