package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Location is a pair of coordinates reported by a device.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Record is one timestamped telemetry observation from a device.
// (DeviceID, Timestamp) is the primary key; a write with a duplicate
// key overwrites the prior record.
type Record struct {
	DeviceID            string   `json:"deviceId"`
	Timestamp           string   `json:"timestamp"`
	BatteryLevel        float64  `json:"batteryLevel"`
	Location            Location `json:"location"`
	Speed               float64  `json:"speed"`
	Temperature         float64  `json:"temperature"`
	Status              string   `json:"status"`
	BatteryHealthStatus string   `json:"batteryHealthStatus"`
}

// Key identifies a stored record and doubles as the scan cursor.
type Key struct {
	DeviceID  string
	Timestamp string
}

// IsZero reports whether the key is the start-of-scan cursor.
func (k Key) IsZero() bool {
	return k.DeviceID == "" && k.Timestamp == ""
}

// Key returns the record's primary key.
func (r Record) Key() Key {
	return Key{DeviceID: r.DeviceID, Timestamp: r.Timestamp}
}

// Repository persists telemetry records.
type Repository interface {
	// Upsert stores the record, overwriting any prior record with the
	// same (deviceId, timestamp) key.
	Upsert(ctx context.Context, record Record) error
}

// Attribute names a secondary access path over the record set.
type Attribute string

const (
	AttrDeviceID            Attribute = "deviceId"
	AttrStatus              Attribute = "status"
	AttrBatteryLevel        Attribute = "batteryLevel"
	AttrBatteryHealthStatus Attribute = "batteryHealthStatus"
)

// Query loads telemetry records.
type Query interface {
	// ScanPage returns up to limit records in key order starting after
	// the given cursor, plus the cursor for the next page. A zero next
	// cursor means the scan is complete.
	ScanPage(ctx context.Context, after Key, limit int) ([]Record, Key, error)

	// ListByDevice returns one device's records ordered by timestamp.
	ListByDevice(ctx context.Context, deviceID string) ([]Record, error)

	// ListByAttribute returns records matching a secondary attribute,
	// ordered by timestamp. One method serves every indexed attribute.
	ListByAttribute(ctx context.Context, attr Attribute, value any) ([]Record, error)
}

// flexFloat decodes a JSON number or a numeric string. Anything else
// fails the record it belongs to.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("value is not numeric")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("value %q is not numeric", s)
		}
		*f = flexFloat(parsed)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("value is not numeric")
	}
	*f = flexFloat(v)
	return nil
}

type rawLocation struct {
	Latitude  *flexFloat `json:"latitude"`
	Longitude *flexFloat `json:"longitude"`
}

type rawRecord struct {
	DeviceID            string       `json:"deviceId"`
	Timestamp           string       `json:"timestamp"`
	BatteryLevel        *flexFloat   `json:"batteryLevel"`
	Location            *rawLocation `json:"location"`
	Speed               *flexFloat   `json:"speed"`
	Temperature         *flexFloat   `json:"temperature"`
	Status              string       `json:"status"`
	BatteryHealthStatus string       `json:"batteryHealthStatus"`
}

// ParseRecord validates and coerces one telemetry payload. Numeric
// fields accept JSON numbers or numeric strings; a malformed or missing
// field fails this record only.
func ParseRecord(data []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if raw.DeviceID == "" {
		return Record{}, fmt.Errorf("%w: missing deviceId", ErrInvalidRecord)
	}
	if raw.Timestamp == "" {
		return Record{}, fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}
	if raw.BatteryLevel == nil {
		return Record{}, fmt.Errorf("%w: missing batteryLevel", ErrInvalidRecord)
	}
	if raw.Speed == nil {
		return Record{}, fmt.Errorf("%w: missing speed", ErrInvalidRecord)
	}
	if raw.Temperature == nil {
		return Record{}, fmt.Errorf("%w: missing temperature", ErrInvalidRecord)
	}
	if raw.Location == nil || raw.Location.Latitude == nil || raw.Location.Longitude == nil {
		return Record{}, fmt.Errorf("%w: missing location", ErrInvalidRecord)
	}
	if raw.Status == "" {
		return Record{}, fmt.Errorf("%w: missing status", ErrInvalidRecord)
	}
	if raw.BatteryHealthStatus == "" {
		return Record{}, fmt.Errorf("%w: missing batteryHealthStatus", ErrInvalidRecord)
	}

	return Record{
		DeviceID:            raw.DeviceID,
		Timestamp:           raw.Timestamp,
		BatteryLevel:        float64(*raw.BatteryLevel),
		Location:            Location{Latitude: float64(*raw.Location.Latitude), Longitude: float64(*raw.Location.Longitude)},
		Speed:               float64(*raw.Speed),
		Temperature:         float64(*raw.Temperature),
		Status:              raw.Status,
		BatteryHealthStatus: raw.BatteryHealthStatus,
	}, nil
}

// SplitItems decodes a payload that is either one telemetry object or a
// JSON array of them, returning each item as an independent raw payload.
func SplitItems(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return items, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: not valid json", ErrInvalidPayload)
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}
