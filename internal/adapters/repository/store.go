// Package repository holds the shared aggregate store of user records.
package repository

import (
	"context"

	"github.com/okian/snackboard/internal/domain/types"
)

// Store provides read/write access to the aggregate collection.
type Store interface {
	// ReadAll returns every record in storage order. It never fails: a
	// missing or unreadable backing document reads as an empty collection.
	ReadAll(ctx context.Context) []types.UserRecord

	// Upsert replaces the name and count of the record with id, or appends a
	// new record, stamping LastUpdated with the current time. It returns the
	// stored record.
	Upsert(ctx context.Context, id, name string, count int) (types.UserRecord, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context) int
}
