package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		defaultVal bool
		want       bool
	}{
		{"unset uses default true", "", true, true},
		{"unset uses default false", "", false, false},
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"yes with spaces", "  yes ", false, true},
		{"on uppercase", "ON", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"off", "off", true, false},
		{"garbage uses default", "definitely", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("CALMBOT_TEST_BOOL", tt.value)
			}
			if got := ParseBoolEnv("CALMBOT_TEST_BOOL", tt.defaultVal); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defaultVal, got, tt.want)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"unset uses default", "", 24 * time.Hour, 24 * time.Hour},
		{"minutes", "30m", time.Hour, 30 * time.Minute},
		{"hours with spaces", " 12h ", time.Hour, 12 * time.Hour},
		{"garbage uses default", "tomorrow", time.Hour, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("CALMBOT_TEST_DURATION", tt.value)
			}
			if got := ParseDurationEnv("CALMBOT_TEST_DURATION", tt.defaultVal); got != tt.want {
				t.Errorf("ParseDurationEnv(%q, %v) = %v, want %v", tt.value, tt.defaultVal, got, tt.want)
			}
		})
	}
}
