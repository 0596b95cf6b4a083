package model

import "testing"

func TestParseDate(t *testing.T) {
	tests := []struct {
		in        string
		year      int
		month     int
		day       int
		precision DatePrecision
		wantErr   bool
	}{
		{in: "1969", year: 1969, precision: PrecisionYear},
		{in: "1969-05", year: 1969, month: 5, precision: PrecisionMonth},
		{in: "1969-05-12", year: 1969, month: 5, day: 12, precision: PrecisionDay},
		{in: "1969-13", wantErr: true},
		{in: "1969-05-40", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1969-05-12-01", wantErr: true},
	}

	for _, tt := range tests {
		d, err := ParseDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDate(%q): expected error, got %v", tt.in, d)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDate(%q): unexpected error %v", tt.in, err)
			continue
		}
		if d.Year != tt.year || d.Month != tt.month || d.Day != tt.day || d.Precision != tt.precision {
			t.Errorf("ParseDate(%q) = %+v", tt.in, d)
		}
	}
}

func TestDateString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1969", "1969"},
		{"1969-05", "1969-05"},
		{"1969-05-12", "1969-05-12"},
	}
	for _, tt := range tests {
		d, err := ParseDate(tt.in)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tt.in, err)
		}
		if d.String() != tt.want {
			t.Errorf("String() = %q, want %q", d.String(), tt.want)
		}
	}
}

func TestCompareDates_PrecisionBeforeChronology(t *testing.T) {
	day, _ := ParseDate("1980-06-01")
	year, _ := ParseDate("1950")

	// A day-precision date sorts before a year-precision one even when the
	// year-precision date is earlier
	if CompareDates(day, year) >= 0 {
		t.Errorf("expected day precision to sort first")
	}
	if CompareDates(year, day) <= 0 {
		t.Errorf("expected year precision to sort last")
	}
}

func TestCompareDates_ChronologyWithinPrecision(t *testing.T) {
	a, _ := ParseDate("1950-01-02")
	b, _ := ParseDate("1950-01-03")

	if CompareDates(a, b) >= 0 {
		t.Errorf("expected earlier date to sort first")
	}
	if CompareDates(a, a) != 0 {
		t.Errorf("expected equal dates to compare 0")
	}
}

func TestCompareDates_NilSortsLast(t *testing.T) {
	d, _ := ParseDate("1950")

	if CompareDates(nil, d) <= 0 {
		t.Errorf("nil should sort after any date")
	}
	if CompareDates(d, nil) >= 0 {
		t.Errorf("any date should sort before nil")
	}
	if CompareDates(nil, nil) != 0 {
		t.Errorf("two nils should compare 0")
	}
}
