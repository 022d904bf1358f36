package upload

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/convsync/internal/model"
)

// Orphan is an uploaded file whose message was never sent.
type Orphan struct {
	Digest     string
	Name       string
	Attachment model.Attachment
	RecordedAt time.Time
}

// OrphanLedger stores orphans. Implemented by cache.Store and MemoryOrphans.
type OrphanLedger interface {
	RecordOrphan(ctx context.Context, o Orphan) error
	// ClaimOrphan removes and returns the orphan with digest recorded at or
	// after notBefore.
	ClaimOrphan(ctx context.Context, digest string, notBefore time.Time) (Orphan, bool, error)
}

// MemoryOrphans is an in-process OrphanLedger.
type MemoryOrphans struct {
	mu      sync.Mutex
	orphans map[string]Orphan
}

// NewMemoryOrphans creates an empty ledger.
func NewMemoryOrphans() *MemoryOrphans {
	return &MemoryOrphans{orphans: make(map[string]Orphan)}
}

// RecordOrphan stores o, replacing any orphan with the same digest.
func (m *MemoryOrphans) RecordOrphan(_ context.Context, o Orphan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphans[o.Digest] = o
	return nil
}

// ClaimOrphan implements OrphanLedger.
func (m *MemoryOrphans) ClaimOrphan(_ context.Context, digest string, notBefore time.Time) (Orphan, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orphans[digest]
	if !ok {
		return Orphan{}, false, nil
	}
	delete(m.orphans, digest)
	if o.RecordedAt.Before(notBefore) {
		return Orphan{}, false, nil
	}
	return o, true, nil
}

// Len returns the number of stored orphans.
func (m *MemoryOrphans) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orphans)
}
