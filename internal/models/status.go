package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a relationship record. The numeric values
// are persisted and must not be reordered.
type Status int16

const (
	StatusPending Status = iota
	StatusAccepted
	StatusDenied
	StatusBlocked
)

// Statuses lists every valid status in persisted order.
var Statuses = []Status{StatusPending, StatusAccepted, StatusDenied, StatusBlocked}

var statusNames = map[Status]string{
	StatusPending:  "pending",
	StatusAccepted: "accepted",
	StatusDenied:   "denied",
	StatusBlocked:  "blocked",
}

// ParseStatus converts a status name into a Status.
func ParseStatus(s string) (Status, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for status, candidate := range statusNames {
		if candidate == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown relationship status %q", s)
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int16(s))
}

// MarshalJSON renders the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal invalid relationship status %d", int16(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer so the status is stored as a small integer.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("store invalid relationship status %d", int16(s))
	}
	return int64(s), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src any) error {
	var raw int64
	switch v := src.(type) {
	case int64:
		raw = v
	case int32:
		raw = int64(v)
	case int16:
		raw = int64(v)
	case int:
		raw = int64(v)
	case []byte:
		if _, err := fmt.Sscan(string(v), &raw); err != nil {
			return fmt.Errorf("scan relationship status %q: %w", v, err)
		}
	default:
		return fmt.Errorf("scan relationship status: unsupported type %T", src)
	}
	status := Status(raw)
	if !status.Valid() {
		return fmt.Errorf("scan relationship status: unknown value %d", raw)
	}
	*s = status
	return nil
}
