package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/asride/kessler/internal/conjunction"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestLoadEngineConfigWindow(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"7.5", 7.5},
		{"90", 90},
		{"0", conjunction.DefaultWindowMinutes},
		{"-5", conjunction.DefaultWindowMinutes},
		{"NaN", conjunction.DefaultWindowMinutes},
		{"+Inf", conjunction.DefaultWindowMinutes},
		{"an hour", conjunction.DefaultWindowMinutes},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("KESSLER_SEARCH_WINDOW_MINUTES", tt.value)
			t.Setenv("KESSLER_MATCH_STRATEGY", "")

			cfg, err := loadEngineConfig(discardLogger())
			if err != nil {
				t.Fatalf("loadEngineConfig: %v", err)
			}
			if cfg.Search.WindowMinutes != tt.want {
				t.Errorf("WindowMinutes = %v, want %v", cfg.Search.WindowMinutes, tt.want)
			}
			if cfg.Search.Samples != conjunction.DefaultSamples {
				t.Errorf("Samples = %d, want %d", cfg.Search.Samples, conjunction.DefaultSamples)
			}
		})
	}
}

func TestLoadEngineConfigRejectsMatchStrategy(t *testing.T) {
	t.Setenv("KESSLER_MATCH_STRATEGY", "fuzzy")
	if _, err := loadEngineConfig(discardLogger()); err == nil {
		t.Fatal("expected error for unknown match strategy")
	}
}
