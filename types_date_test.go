package espp

import (
	"encoding/json"
	"testing"
	"time"
)

// TestTime asserts that time() is canonical and gives comparable times.
func TestTime(t *testing.T) {
	d1 := NewDate(2025, 7, 31)
	d2 := NewDate(2025, 7, 31)

	if d1.time() != d2.time() {
		// Note that usually time.Time are not comparable (there is a pointer for the timezone) this
		// tests also checks that the property remain true
		t.Errorf("invalid time() function same day gives two different time")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		expected Date
		err      bool
	}{
		{"2025-01-15", NewDate(2025, time.January, 15), false},
		{"2025-7-1", NewDate(2025, time.July, 1), false},
		{" 2024-12-31 ", NewDate(2024, time.December, 31), false},
		// some broker exports carry a full timestamp
		{"2024-05-21T00:00:00Z", NewDate(2024, time.May, 21), false},
		{"invalid-date", Date{}, true},
		{"", Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.err {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.err)
				return
			}
			if !tt.err && got != tt.expected {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.March, 1)
	if got := d.Add(14); got != NewDate(2024, time.March, 15) {
		t.Errorf("Add(14) = %v, want 2024-03-15", got)
	}
	if got := d.Add(-1); got != NewDate(2024, time.February, 29) {
		t.Errorf("Add(-1) = %v, want 2024-02-29 (leap year)", got)
	}
	if got := NewDate(2024, time.March, 15).DaysSince(d); got != 14 {
		t.Errorf("DaysSince = %d, want 14", got)
	}
	if got := d.EndOfYear(); got != NewDate(2024, time.December, 31) {
		t.Errorf("EndOfYear = %v, want 2024-12-31", got)
	}
	if !d.Before(d.Add(1)) || !d.Add(1).After(d) {
		t.Error("Before/After ordering broken")
	}
}

func TestDate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected Date
		wantErr  bool
	}{
		{
			name:     "Non-Zero Date",
			json:     `"2024-05-21"`,
			expected: NewDate(2024, 5, 21),
			wantErr:  false,
		},
		{
			name:    "Invalid Date",
			json:    `"not-a-date"`,
			wantErr: true,
		},
		{
			name:    "Empty String",
			json:    `""`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			err := json.Unmarshal([]byte(tt.json), &d)
			if (err != nil) != tt.wantErr {
				t.Errorf("json.Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d != tt.expected {
				t.Errorf("json.Unmarshal() got = %v, want %v", d, tt.expected)
			}
		})
	}
}

func TestDate_MarshalJSON(t *testing.T) {
	got, err := json.Marshal(NewDate(2024, 5, 21))
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if want := `"2024-05-21"`; string(got) != want {
		t.Errorf("json.Marshal() = %s, want %s", got, want)
	}
}
