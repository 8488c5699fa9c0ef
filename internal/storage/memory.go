package storage

import (
	"context"
	"sync"

	"github.com/mselser95/mempool-engine/pkg/types"
)

// MemoryStorage keeps the most recent records in bounded rings.
type MemoryStorage struct {
	mu          sync.Mutex
	capacity    int
	candidates  []*types.AuditRecord
	submissions []*types.SubmissionResult
	total       int
}

// NewMemoryStorage creates a memory audit log holding up to capacity records of each kind.
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStorage{capacity: capacity}
}

// RecordCandidate appends a candidate record.
func (m *MemoryStorage) RecordCandidate(_ context.Context, rec *types.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.candidates = append(m.candidates, rec)
	if len(m.candidates) > m.capacity {
		m.candidates = m.candidates[len(m.candidates)-m.capacity:]
	}
	m.total++
	return nil
}

// RecordSubmission appends a submission result.
func (m *MemoryStorage) RecordSubmission(_ context.Context, res *types.SubmissionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submissions = append(m.submissions, res)
	if len(m.submissions) > m.capacity {
		m.submissions = m.submissions[len(m.submissions)-m.capacity:]
	}
	return nil
}

// Candidates returns a copy of the held candidate records, oldest first.
func (m *MemoryStorage) Candidates() []*types.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.AuditRecord, len(m.candidates))
	copy(out, m.candidates)
	return out
}

// Submissions returns a copy of the held submission results, oldest first.
func (m *MemoryStorage) Submissions() []*types.SubmissionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.SubmissionResult, len(m.submissions))
	copy(out, m.submissions)
	return out
}

// Total returns the number of candidates ever recorded.
func (m *MemoryStorage) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}
