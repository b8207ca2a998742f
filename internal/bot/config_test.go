package bot

import (
	"log/slog"
	"testing"
)

func TestLoadConfig_WithValidToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token-123")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DiscordToken != "test-token-123" {
		t.Errorf("expected token %q, got %q", "test-token-123", cfg.DiscordToken)
	}
}

func TestLoadConfig_WithEmptyToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for missing token, got nil")
	}
}

func TestLoadConfig_LogLevel(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{name: "debug", value: "DEBUG", want: slog.LevelDebug},
		{name: "warn", value: "WARN", want: slog.LevelWarn},
		{name: "lowercase error", value: "error", want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "test-token")
			t.Setenv("LOG_LEVEL", tt.value)

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.LogLevel != tt.want {
				t.Errorf("expected level %v, got %v", tt.want, cfg.LogLevel)
			}
		})
	}
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("LOG_LEVEL", "LOUD")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for invalid log level, got nil")
	}
}
