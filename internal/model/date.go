package model

import (
	"fmt"
	"strconv"
	"strings"
)

// DatePrecision follows the wikibase time precision numbering for the
// granularities this system handles
type DatePrecision int

const (
	PrecisionYear  DatePrecision = 9
	PrecisionMonth DatePrecision = 10
	PrecisionDay   DatePrecision = 11
)

func (p DatePrecision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	default:
		return "unknown"
	}
}

// Date is a possibly truncated calendar date. Month and Day are zero when
// below the stated precision.
type Date struct {
	Year      int           `json:"year"`
	Month     int           `json:"month,omitempty"`
	Day       int           `json:"day,omitempty"`
	Precision DatePrecision `json:"precision"`
}

// ParseDate parses "2006", "2006-01" or "2006-01-02" into a Date with the
// matching precision
func ParseDate(s string) (*Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) < 1 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid date %q", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", s, err)
		}
		nums[i] = n
	}

	d := &Date{Year: nums[0], Precision: PrecisionYear}
	if len(nums) >= 2 {
		if nums[1] < 1 || nums[1] > 12 {
			return nil, fmt.Errorf("invalid month in %q", s)
		}
		d.Month = nums[1]
		d.Precision = PrecisionMonth
	}
	if len(nums) == 3 {
		if nums[2] < 1 || nums[2] > 31 {
			return nil, fmt.Errorf("invalid day in %q", s)
		}
		d.Day = nums[2]
		d.Precision = PrecisionDay
	}
	return d, nil
}

// String renders the date at its own precision
func (d *Date) String() string {
	switch d.Precision {
	case PrecisionDay:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	case PrecisionMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d", d.Year)
	}
}

// CompareDates orders dates by precision descending, then chronologically.
// A day-precision date sorts before a year-precision one regardless of the
// calendar values; nil dates sort last. Returns <0, 0, >0.
func CompareDates(a, b *Date) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	if a.Precision != b.Precision {
		// Higher precision first
		return int(b.Precision) - int(a.Precision)
	}
	if a.Year != b.Year {
		return a.Year - b.Year
	}
	if a.Month != b.Month {
		return a.Month - b.Month
	}
	return a.Day - b.Day
}
