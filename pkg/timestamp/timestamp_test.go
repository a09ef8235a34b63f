package timestamp

import (
	"testing"
	"time"
)

// Test constants
var (
	testTime       = time.Date(2026, 1, 15, 12, 30, 45, 123000000, time.UTC) // Use exact milliseconds
	testTimeMs     = int64(1768480245123)                                    // Correct timestamp for the date above
	testTimeString = "2026-01-15T12:30:45Z"
)

func TestNow(t *testing.T) {
	before := time.Now().UnixMilli()
	ts := Now()
	after := time.Now().UnixMilli()

	if ts < before || ts > after {
		t.Errorf("Now() = %d, expected between %d and %d", ts, before, after)
	}
}

func TestToUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected int64
	}{
		{
			name:     "normal time",
			input:    testTime,
			expected: testTimeMs,
		},
		{
			name:     "zero time",
			input:    time.Time{},
			expected: 0,
		},
		{
			name:     "unix epoch",
			input:    time.Unix(0, 0),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToUnixMs(tt.input)
			if result != tt.expected {
				t.Errorf("ToUnixMs(%v) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFromUnixMs(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected time.Time
	}{
		{
			name:     "normal timestamp",
			input:    testTimeMs,
			expected: time.UnixMilli(testTimeMs),
		},
		{
			name:     "zero timestamp",
			input:    0,
			expected: time.Time{},
		},
		{
			name:     "negative timestamp",
			input:    -1000,
			expected: time.UnixMilli(-1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromUnixMs(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("FromUnixMs(%d) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{
			name:     "normal timestamp",
			input:    1768480245000, // Without milliseconds for clean RFC3339
			expected: testTimeString,
		},
		{
			name:     "zero timestamp",
			input:    0,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(tt.input)
			if result != tt.expected {
				t.Errorf("Format(%d) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{"nil input", nil, 0},
		{"int64 milliseconds", testTimeMs, testTimeMs},
		{"int64 seconds", int64(1768480245), 1768480245000},
		{"int64 zero", int64(0), 0},
		{"float64 milliseconds", float64(testTimeMs), testTimeMs},
		{"float64 seconds", float64(1768480245), 1768480245000},
		{"int seconds", int(1768480245), 1768480245000},
		{"RFC3339 string", testTimeString, 1768480245000},
		{"RFC3339 with millis", "2026-01-15T12:30:45.123Z", testTimeMs},
		{"RFC3339 with offset", "2026-01-15T13:30:45+01:00", 1768480245000},
		{"numeric string seconds", "1768480245", 1768480245000},
		{"numeric string millis", "1768480245123", testTimeMs},
		{"empty string", "", 0},
		{"garbage string", "not-a-timestamp", 0},
		{"time.Time", testTime, testTimeMs},
		{"zero time.Time", time.Time{}, 0},
		{"nil pointer time", (*time.Time)(nil), 0},
		{"unsupported type", struct{}{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.input)
			if result != tt.expected {
				t.Errorf("Parse(%v) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParse_PointerTime(t *testing.T) {
	result := Parse(&testTime)
	if result != testTimeMs {
		t.Errorf("Parse(&testTime) = %d, expected %d", result, testTimeMs)
	}
}

func TestMax(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int64
		expected int64
	}{
		{"a later", 2000, 1000, 2000},
		{"b later", 1000, 2000, 2000},
		{"equal", 1500, 1500, 1500},
		{"a zero", 0, 1000, 1000},
		{"b zero", 1000, 0, 1000},
		{"both zero", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Max(tt.a, tt.b); got != tt.expected {
				t.Errorf("Max(%d, %d) = %d, expected %d", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   int64
		wantErr bool
	}{
		{"valid timestamp", testTimeMs, false},
		{"zero timestamp", 0, false},
		{"negative timestamp", -1, true},
		{"year 3000", 32503680000001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%d) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	original := Now()
	viaTime := ToUnixMs(FromUnixMs(original))
	if viaTime != original {
		t.Errorf("round trip through time.Time changed %d to %d", original, viaTime)
	}

	viaString := Parse(Format(original))
	// Format truncates to seconds, so allow sub-second loss
	if viaString/1000 != original/1000 {
		t.Errorf("round trip through string changed %d to %d", original, viaString)
	}
}
