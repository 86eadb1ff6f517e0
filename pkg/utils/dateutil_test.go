package utils

import (
	"testing"
	"time"
)

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)
	inputs := []string{
		"2023-03-31",
		"2023-03-31T00:00:00Z",
		"2023-03-31T10:30:00",
		"03/31/2023",
		"3/31/2023",
		" 2023-03-31 ",
	}
	for _, in := range inputs {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseDate(""); err == nil {
		t.Error("empty date should fail")
	}
	if _, err := ParseDate("Q1 2023"); err == nil {
		t.Error("unrecognized format should fail")
	}
}

func TestParseEndDate(t *testing.T) {
	for _, in := range []string{"", "null", "NULL", "9999-12-31"} {
		got, err := ParseEndDate(in)
		if err != nil {
			t.Errorf("ParseEndDate(%q): %v", in, err)
		}
		if got != nil {
			t.Errorf("ParseEndDate(%q) = %v, want nil (open-ended)", in, got)
		}
	}

	got, err := ParseEndDate("2020-12-31")
	if err != nil || got == nil {
		t.Fatalf("ParseEndDate closed window: %v, %v", got, err)
	}
	if !got.Equal(time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}

	if _, err := ParseEndDate("not-a-date"); err == nil {
		t.Error("garbage end date should fail")
	}
}

func TestQuarterEnd(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2023-01-15", "2023-03-31"},
		{"2023-03-31", "2023-03-31"},
		{"2023-05-01", "2023-06-30"},
		{"2023-12-31", "2023-12-31"},
		{"2024-02-29", "2024-03-31"},
	}
	for _, tt := range tests {
		d, err := ParseDate(tt.in)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", tt.in, err)
		}
		if got := FormatDate(QuarterEnd(d)); got != tt.want {
			t.Errorf("QuarterEnd(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}

	d, _ := ParseDate("2023-06-30")
	if !IsQuarterEnd(d) {
		t.Error("2023-06-30 is a quarter end")
	}
	d, _ = ParseDate("2023-06-29")
	if IsQuarterEnd(d) {
		t.Error("2023-06-29 is not a quarter end")
	}
}
