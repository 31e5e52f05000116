package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used in the store and on the wire.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// parseLayouts are accepted on input, most specific first. SQLite's
// datetime('now') output and bare dates come from older field devices.
var parseLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Time is a UTC timestamp with a fixed-width text encoding. The zero value
// is stored as NULL and encoded as JSON null.
type Time struct {
	time.Time
}

// NewTime truncates t to microseconds and converts it to UTC.
func NewTime(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	return Time{t.UTC().Truncate(time.Microsecond)}
}

// ParseTime accepts any of the supported layouts.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Time{}, nil
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTime(t), nil
		}
	}
	return Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// String returns the fixed-width encoding, or "" for the zero value.
func (t Time) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// Before compares at microsecond precision.
func (t Time) Before(u Time) bool { return t.Time.Before(u.Time) }

// After compares at microsecond precision.
func (t Time) After(u Time) bool { return t.Time.After(u.Time) }

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.String(), nil
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Time{}
		return nil
	case string:
		parsed, err := ParseTime(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	case time.Time:
		*t = NewTime(v)
		return nil
	}
	return fmt.Errorf("cannot scan %T into Time", src)
}

// Flags is a set of tags persisted as a JSON array.
type Flags []string

// Has reports whether flag is present.
func (f Flags) Has(flag string) bool {
	for _, v := range f {
		if v == flag {
			return true
		}
	}
	return false
}

func (f Flags) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(f))
}

// UnmarshalJSON accepts either an array or a string holding a JSON array;
// older hubs forwarded the column text unchanged.
func (f *Flags) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = Flags{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = Flags{}
			return nil
		}
		trimmed = []byte(s)
	}
	var out []string
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	*f = Flags(out)
	return nil
}

func (f Flags) Value() (driver.Value, error) {
	data, err := f.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (f *Flags) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = Flags{}
		return nil
	case string:
		return f.UnmarshalJSON([]byte(v))
	case []byte:
		return f.UnmarshalJSON(v)
	}
	return fmt.Errorf("cannot scan %T into Flags", src)
}

// DistributionItem is one line of a distribution. InventoryID and NeedID are
// set when the distribution was produced from an allocation suggestion.
type DistributionItem struct {
	Category    Category `json:"category"`
	ItemName    string   `json:"item_name"`
	Quantity    int      `json:"quantity"`
	InventoryID string   `json:"inventory_id,omitempty"`
	NeedID      string   `json:"need_id,omitempty"`
}

// DistributionItems is persisted as a JSON array.
type DistributionItems []DistributionItem

// Total returns the summed quantity.
func (items DistributionItems) Total() int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}

func (items DistributionItems) MarshalJSON() ([]byte, error) {
	if items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]DistributionItem(items))
}

// UnmarshalJSON accepts an array or a string holding a JSON array.
func (items *DistributionItems) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*items = DistributionItems{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		trimmed = []byte(s)
	}
	var out []DistributionItem
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return fmt.Errorf("distribution items: %w", err)
	}
	*items = DistributionItems(out)
	return nil
}

func (items DistributionItems) Value() (driver.Value, error) {
	data, err := items.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (items *DistributionItems) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*items = DistributionItems{}
		return nil
	case string:
		return items.UnmarshalJSON([]byte(v))
	case []byte:
		return items.UnmarshalJSON(v)
	}
	return fmt.Errorf("cannot scan %T into DistributionItems", src)
}
