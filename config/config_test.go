package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("STORAGE_DRIVER", StorageMemory)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dispatch.PendingPageSize != 10 || cfg.Dispatch.MaxRadiusKm != 50 {
		t.Fatalf("unexpected dispatch defaults: %+v", cfg.Dispatch)
	}
	if cfg.Events.Enabled {
		t.Fatalf("events should be disabled by default")
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": "", "STORAGE_DRIVER": StorageMemory}, "JWT_SECRET is required"},
		{"memory in production", map[string]string{"APP_ENV": "production", "STORAGE_DRIVER": StorageMemory}, "not allowed in production"},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "sqlite"}, "not one of memory, postgres"},
		{"radius above max", map[string]string{"STORAGE_DRIVER": StorageMemory, "DISPATCH_DEFAULT_RADIUS_KM": "80"}, "DISPATCH_DEFAULT_RADIUS_KM"},
		{"events without topic", map[string]string{"STORAGE_DRIVER": StorageMemory, "EVENTS_ENABLED": "true", "KAFKA_TOPIC": ""}, "KAFKA_TOPIC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
