package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DayOfWeek is either a specific weekday (0=Sunday) or every day.
// The zero value means every day.
type DayOfWeek struct {
	specific bool
	day      time.Weekday
}

func EveryDay() DayOfWeek { return DayOfWeek{} }

func OnDay(day time.Weekday) DayOfWeek {
	return DayOfWeek{specific: true, day: day}
}

// DayOfWeekFromInt validates a stored 0..6 weekday number.
func DayOfWeekFromInt(n int) (DayOfWeek, error) {
	if n < 0 || n > 6 {
		return DayOfWeek{}, fmt.Errorf("day of week out of range: %d", n)
	}
	return OnDay(time.Weekday(n)), nil
}

// IsEvery reports whether the value applies to all days.
func (d DayOfWeek) IsEvery() bool { return !d.specific }

// Weekday returns the specific day and true, or false for every day.
func (d DayOfWeek) Weekday() (time.Weekday, bool) {
	return d.day, d.specific
}

func (d DayOfWeek) Matches(day time.Weekday) bool {
	return !d.specific || d.day == day
}

func (d DayOfWeek) String() string {
	if !d.specific {
		return "every day"
	}
	return d.day.String()
}

func (d DayOfWeek) MarshalJSON() ([]byte, error) {
	if !d.specific {
		return []byte("null"), nil
	}
	return json.Marshal(int(d.day))
}

func (d *DayOfWeek) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = EveryDay()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("day of week: %w", err)
	}
	v, err := DayOfWeekFromInt(n)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Value stores every day as NULL.
func (d DayOfWeek) Value() (driver.Value, error) {
	if !d.specific {
		return nil, nil
	}
	return int64(d.day), nil
}

func (d *DayOfWeek) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = EveryDay()
		return nil
	case int64:
		day, err := DayOfWeekFromInt(int(v))
		if err != nil {
			return err
		}
		*d = day
		return nil
	case int32:
		return d.Scan(int64(v))
	case int16:
		return d.Scan(int64(v))
	default:
		return fmt.Errorf("cannot scan %T into DayOfWeek", src)
	}
}

// Ptr returns the weekday number or nil for every day.
func (d DayOfWeek) Ptr() *int16 {
	if !d.specific {
		return nil
	}
	n := int16(d.day)
	return &n
}
