package store

import (
	"context"
	"database/sql"
	"time"
)

// StoreState represents the schema state of the datastore relative to the
// binary's migration registry.
type StoreState int

const (
	StateMissing       StoreState = iota // File doesn't exist
	StateUninitialized                   // File exists but no schema marker
	StateBehind                          // Marker below the registry maximum
	StateAhead                           // Marker above the registry maximum
	StateReady                           // Marker equals the registry maximum
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateBehind:
		return "behind"
	case StateAhead:
		return "ahead"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// AppliedMigration is a row of the migration history.
type AppliedMigration struct {
	Version     int
	Description string
	Checksum    string
	AppliedAt   time.Time
}

// Store defines the Hakawati datastore contract.
// Implementations must be safe for concurrent use once migrated.
type Store interface {
	// Open opens the datastore connection, creating the file if absent
	Open(ctx context.Context) error

	// Close closes the datastore connection
	Close() error

	// DB returns the open handle published to the front-end
	DB() *sql.DB

	// CheckState compares the schema marker to the registry maximum
	CheckState(ctx context.Context, registryMax int) (StoreState, error)

	// GetSchemaVersion returns the schema marker, or 0 if uninitialized
	GetSchemaVersion(ctx context.Context) (int, error)

	// AppliedMigrations returns the migration history in version order
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}
