package storage

import (
	"context"

	"github.com/mselser95/mempool-engine/pkg/types"
)

// AuditLog is the append-only record of scored candidates and plan outcomes.
type AuditLog interface {
	// RecordCandidate appends one scored candidate, accepted or not.
	RecordCandidate(ctx context.Context, rec *types.AuditRecord) error

	// RecordSubmission appends the terminal outcome of a plan.
	RecordSubmission(ctx context.Context, res *types.SubmissionResult) error

	// Close closes the storage connection.
	Close() error
}
