// Package memory holds an in-memory record store for demos and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

// TelemetryStore implements both the repository and query interfaces
// over a map keyed by (deviceId, timestamp).
type TelemetryStore struct {
	mu     sync.RWMutex
	data   map[telemetry.Key]telemetry.Record
	absent bool
}

// NewTelemetryStore constructs an empty store.
func NewTelemetryStore() *TelemetryStore {
	return &TelemetryStore{data: make(map[telemetry.Key]telemetry.Record)}
}

// NewAbsentStore constructs a store that reports itself missing, the
// way a dropped table would. Used to exercise not-found handling.
func NewAbsentStore() *TelemetryStore {
	return &TelemetryStore{absent: true}
}

// Upsert stores the record, overwriting a prior record with the same key.
func (s *TelemetryStore) Upsert(ctx context.Context, record telemetry.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.absent {
		return telemetry.ErrStoreNotFound
	}
	s.data[record.Key()] = record
	return nil
}

// ScanPage returns up to limit records in key order after the cursor.
func (s *TelemetryStore) ScanPage(ctx context.Context, after telemetry.Key, limit int) ([]telemetry.Record, telemetry.Key, error) {
	_ = ctx
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.absent {
		return nil, telemetry.Key{}, telemetry.ErrStoreNotFound
	}

	all := s.sortedLocked()
	page := make([]telemetry.Record, 0, limit)
	for _, record := range all {
		key := record.Key()
		if !after.IsZero() && !keyLess(after, key) {
			continue
		}
		page = append(page, record)
		if len(page) == limit {
			break
		}
	}

	next := telemetry.Key{}
	if len(page) == limit {
		next = page[len(page)-1].Key()
	}
	return page, next, nil
}

// ListByDevice returns one device's records ordered by timestamp.
func (s *TelemetryStore) ListByDevice(ctx context.Context, deviceID string) ([]telemetry.Record, error) {
	return s.ListByAttribute(ctx, telemetry.AttrDeviceID, deviceID)
}

// ListByAttribute returns records matching a secondary attribute,
// ordered by timestamp.
func (s *TelemetryStore) ListByAttribute(ctx context.Context, attr telemetry.Attribute, value any) ([]telemetry.Record, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.absent {
		return nil, telemetry.ErrStoreNotFound
	}

	matched := make([]telemetry.Record, 0)
	for _, record := range s.data {
		if attributeMatches(record, attr, value) {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp < matched[j].Timestamp
	})
	return matched, nil
}

// Len reports the number of stored records.
func (s *TelemetryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *TelemetryStore) sortedLocked() []telemetry.Record {
	all := make([]telemetry.Record, 0, len(s.data))
	for _, record := range s.data {
		all = append(all, record)
	}
	sort.Slice(all, func(i, j int) bool {
		return keyLess(all[i].Key(), all[j].Key())
	})
	return all
}

func keyLess(a, b telemetry.Key) bool {
	if a.DeviceID != b.DeviceID {
		return a.DeviceID < b.DeviceID
	}
	return a.Timestamp < b.Timestamp
}

func attributeMatches(record telemetry.Record, attr telemetry.Attribute, value any) bool {
	switch attr {
	case telemetry.AttrDeviceID:
		v, ok := value.(string)
		return ok && record.DeviceID == v
	case telemetry.AttrStatus:
		v, ok := value.(string)
		return ok && record.Status == v
	case telemetry.AttrBatteryHealthStatus:
		v, ok := value.(string)
		return ok && record.BatteryHealthStatus == v
	case telemetry.AttrBatteryLevel:
		v, ok := value.(float64)
		return ok && record.BatteryLevel == v
	default:
		return false
	}
}
