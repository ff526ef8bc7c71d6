package devices

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/herpsync/internal/record"
)

type MemoryRepository struct {
	mu      sync.Mutex
	devices map[string]record.Device
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: map[string]record.Device{}}
}

func (m *MemoryRepository) Upsert(_ context.Context, d record.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.devices[d.DeviceID]; ok {
		if d.LastSyncAt.IsZero() {
			d.LastSyncAt = cur.LastSyncAt
		}
		if cur.SyncVersion > d.SyncVersion {
			d.SyncVersion = cur.SyncVersion
		}
	}
	m.devices[d.DeviceID] = d
	return nil
}

func (m *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]record.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []record.Device
	for _, d := range m.devices {
		if d.OwnerID == ownerID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DeviceID < result[j].DeviceID })
	return result, nil
}
