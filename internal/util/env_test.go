package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   bool
		want  bool
	}{
		{"unset uses default", "", true, true},
		{"true", "true", false, true},
		{"yes uppercase", "YES", false, true},
		{"one", "1", false, true},
		{"off", "off", true, false},
		{"invalid uses default", "maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FORGE_TEST_BOOL", tt.value)
			if got := ParseBoolEnv("FORGE_TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"unset uses default", "", 5},
		{"valid", "12", 12},
		{"trimmed", " 7 ", 7},
		{"zero uses default", "0", 5},
		{"negative uses default", "-3", 5},
		{"garbage uses default", "five", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FORGE_TEST_INT", tt.value)
			if got := ParseIntEnv("FORGE_TEST_INT", 5); got != tt.want {
				t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	def := 800 * time.Millisecond
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset uses default", "", def},
		{"go duration", "60s", time.Minute},
		{"bare milliseconds", "250", 250 * time.Millisecond},
		{"zero disables", "0", 0},
		{"negative uses default", "-1s", def},
		{"garbage uses default", "soon", def},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FORGE_TEST_DURATION", tt.value)
			if got := ParseDurationEnv("FORGE_TEST_DURATION", def); got != tt.want {
				t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
