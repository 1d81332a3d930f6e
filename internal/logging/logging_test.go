package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelFromEnv(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  zerolog.Level
	}{
		{name: "default", value: "", want: zerolog.InfoLevel},
		{name: "debug", value: "debug", want: zerolog.DebugLevel},
		{name: "warn", value: "warn", want: zerolog.WarnLevel},
		{name: "error", value: "error", want: zerolog.ErrorLevel},
		{name: "mixed case", value: "DeBuG", want: zerolog.DebugLevel},
		{name: "whitespace", value: "  warn  ", want: zerolog.WarnLevel},
		{name: "unknown falls back", value: "verbose", want: zerolog.InfoLevel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(envLogLevel, tc.value)
			if got := levelFromEnv(); got != tc.want {
				t.Fatalf("levelFromEnv() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewRespectsLevel(t *testing.T) {
	t.Setenv(envLogLevel, "error")
	logger := New()
	if logger.GetLevel() != zerolog.ErrorLevel {
		t.Fatalf("logger level = %v, want error", logger.GetLevel())
	}
}
