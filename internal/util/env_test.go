package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("KWLQ_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("KWLQ_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 8},
		{"12", 12},
		{" 3 ", 3},
		{"0", 8},
		{"-1", 8},
		{"x", 8},
	}
	for _, tt := range tests {
		t.Setenv("KWLQ_TEST_INT", tt.value)
		if got := ParseIntEnv("KWLQ_TEST_INT", 8); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 8 * time.Second},
		{"5", 5 * time.Second},
		{"1500ms", 1500 * time.Millisecond},
		{"-2s", 8 * time.Second},
		{"soon", 8 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("KWLQ_TEST_DUR", tt.value)
		if got := ParseDurationEnv("KWLQ_TEST_DUR", 8*time.Second); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestStringEnv(t *testing.T) {
	t.Setenv("KWLQ_TEST_STR", "  ")
	if got := StringEnv("KWLQ_TEST_STR", "def"); got != "def" {
		t.Errorf("got %q", got)
	}
	t.Setenv("KWLQ_TEST_STR", " val ")
	if got := StringEnv("KWLQ_TEST_STR", "def"); got != "val" {
		t.Errorf("got %q", got)
	}
}
