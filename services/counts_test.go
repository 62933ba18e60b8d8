package services

import "testing"

func TestParseCount(t *testing.T) {
	tests := []struct {
		text   string
		want   int64
		wantOK bool
	}{
		{"1.2M", 1_200_000, true},
		{"45,000", 45_000, true},
		{"123K", 123_000, true},
		{"123k", 123_000, true},
		{"2.5B", 2_500_000_000, true},
		{"1,234,567", 1_234_567, true},
		{" 987 654 ", 987_654, true},
		{"1234.6", 1235, true},
		{"1.23456789M", 1_234_567, true},
		{"12 M", 12_000_000, true},
		{"3,141,592 plays", 3_141_592, true},
		{"no digits", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseCount(tt.text)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseCount(%q) = (%d, %v); want (%d, %v)", tt.text, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsPlausible(t *testing.T) {
	tests := []struct {
		count int64
		want  bool
	}{
		{0, false},
		{999, false},
		{1000, true},
		{10_000_000_000, true},
		{10_000_000_001, false},
		{100_000_000_001, false},
		{200_000_000_000, false},
	}

	for _, tt := range tests {
		if got := IsPlausible(tt.count); got != tt.want {
			t.Errorf("IsPlausible(%d) = %v; want %v", tt.count, got, tt.want)
		}
	}
}

func TestParsePlausible(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"1,609,946,000,000", false},
		{"42", false},
		{"no digits", false},
		{"88,214,003", true},
	}

	for _, tt := range tests {
		if _, ok := ParsePlausible(tt.text); ok != tt.want {
			t.Errorf("ParsePlausible(%q) ok = %v; want %v", tt.text, ok, tt.want)
		}
	}
}

func TestHasDigit(t *testing.T) {
	if HasDigit("plays") {
		t.Error("HasDigit(\"plays\") should be false")
	}
	if !HasDigit("3:45") {
		t.Error("HasDigit(\"3:45\") should be true")
	}
}
