package store

import (
	"context"
	"sort"
	"sync"

	"github.com/XavierBriggs/Pythia/pkg/contracts"
	"github.com/XavierBriggs/Pythia/pkg/errkind"
)

// Memory is an in-process store with the same CAS semantics as Postgres.
// Tests and the coordinator's unit suite run against it.
type Memory struct {
	mu      sync.Mutex
	records map[string]*contracts.Record
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*contracts.Record)}
}

func key(kind contracts.EntityKind, id string) string {
	return string(kind) + "/" + id
}

// Get returns a copy of the current record, or contracts.ErrNotFound
func (m *Memory) Get(ctx context.Context, kind contracts.EntityKind, id string) (*contracts.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key(kind, id)]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	return &contracts.Record{Data: data, Version: rec.Version}, nil
}

// PutIfVersion writes conditionally on the stored version, matching the
// Postgres implementation's semantics exactly
func (m *Memory) PutIfVersion(ctx context.Context, kind contracts.EntityKind, id string, expectedVersion int64, data []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(kind, id)
	rec, exists := m.records[k]

	if expectedVersion == 0 {
		if exists {
			return 0, errkind.New(errkind.StateConflict, "store.put", "%s/%s already exists", kind, id)
		}
		stored := make([]byte, len(data))
		copy(stored, data)
		m.records[k] = &contracts.Record{Data: stored, Version: 1}
		return 1, nil
	}

	if !exists || rec.Version != expectedVersion {
		return 0, errkind.New(errkind.StateConflict, "store.put", "version mismatch on %s/%s (expected %d)", kind, id, expectedVersion)
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	rec.Data = stored
	rec.Version++
	return rec.Version, nil
}

// ListIDs enumerates ids of a kind in stable order
func (m *Memory) ListIDs(ctx context.Context, kind contracts.EntityKind) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := string(kind) + "/"
	var ids []string
	for k := range m.records {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			ids = append(ids, k[len(prefix):])
		}
	}
	sort.Strings(ids)
	return ids, nil
}
