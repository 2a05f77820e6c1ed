package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fchat.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
endpoints:
  chat: wss://test.example/chat2
client:
  name: my-client
timing:
  ping_interval: 10s
  backoff_max: 2m
events:
  subscriber_buffer: 32
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ChatURL != "wss://test.example/chat2" {
		t.Errorf("chat url: got %q", cfg.ChatURL)
	}
	if cfg.ClientName != "my-client" {
		t.Errorf("client name: got %q", cfg.ClientName)
	}
	if cfg.PingInterval != 10*time.Second {
		t.Errorf("ping interval: got %v", cfg.PingInterval)
	}
	if cfg.BackoffMax != 2*time.Minute {
		t.Errorf("backoff max: got %v", cfg.BackoffMax)
	}
	if cfg.SubscriberBuffer != 32 {
		t.Errorf("subscriber buffer: got %d", cfg.SubscriberBuffer)
	}

	// Untouched fields keep their defaults.
	if cfg.TicketURL != "https://www.f-list.net/json/getApiTicket.php" {
		t.Errorf("ticket url: got %q", cfg.TicketURL)
	}
	if cfg.BackoffInitial != 2*time.Second {
		t.Errorf("backoff initial: got %v", cfg.BackoffInitial)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChatURL != "wss://chat.f-list.net/chat2" {
		t.Errorf("chat url: got %q", cfg.ChatURL)
	}
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("handshake timeout: got %v", cfg.HandshakeTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "timing: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
