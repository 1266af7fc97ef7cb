// Package storage is the local persistence collaborator. Collections and
// settings are stored as JSON values under a stable key namespace so that
// any backend (in-memory, single file, Postgres) is interchangeable.
package storage

import "context"

const keyPrefix = "pharmastore_"

const (
	KeyDrugs            = "drugs"
	KeySales            = "sales"
	KeyUsers            = "users"
	KeyAuditLog         = "auditLog"
	KeyLanguage         = "language"
	KeyCloudSyncEnabled = "cloudSyncEnabled"
	KeyLastSyncTime     = "lastSyncTime"
)

// Store loads and saves JSON-encoded values. Load reports false when the key
// has never been written; dest is left untouched in that case.
type Store interface {
	Load(ctx context.Context, key string, dest any) (bool, error)
	Save(ctx context.Context, key string, value any) error
	Close() error
}

// Namespaced returns the storage key for a collection or setting name.
func Namespaced(key string) string {
	return keyPrefix + key
}
