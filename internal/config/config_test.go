package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{"DOMAIN", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD", "HUDDLE_PAYLOAD_ENCODING", "HUDDLE_FORCE_RELAY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Domain != DefaultDomain || cfg.STUNServer != DefaultSTUN {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.WebSocketURL() != "wss://"+DefaultDomain+"/ws" {
		t.Fatalf("unexpected ws url %s", cfg.WebSocketURL())
	}
	if cfg.GetTURNServers() != nil {
		t.Fatalf("expected no TURN servers by default")
	}
	if cfg.Relay.RateInterval != DefaultRateInterval {
		t.Fatalf("unexpected rate interval %v", cfg.Relay.RateInterval)
	}
}

func TestLoadPrecedence(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "domain: file.example.com\nstun_server: stun:file.example.com:3478\npayload_encoding: msgpack\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("STUN_SERVER", "stun:env.example.com:3478")

	cfg, err := Load(Options{ConfigPath: path, Domain: "flag.example.com"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Domain != "flag.example.com" {
		t.Fatalf("flag should win, got domain %s", cfg.Domain)
	}
	if cfg.STUNServer != "stun:env.example.com:3478" {
		t.Fatalf("env should beat file, got %s", cfg.STUNServer)
	}
	if cfg.PayloadEncoding != PayloadMsgpack {
		t.Fatalf("file value should beat default, got %s", cfg.PayloadEncoding)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	if _, err := Load(Options{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidate(t *testing.T) {
	isolate(t)

	if _, err := Load(Options{ForceRelay: true}); err == nil {
		t.Fatal("force relay without TURN must fail")
	}
	if _, err := Load(Options{PayloadEncoding: "xml"}); err == nil {
		t.Fatal("unknown payload encoding must fail")
	}
	cfg, err := Load(Options{ForceRelay: true, TURNServer: "turn:relay.example.com"})
	if err != nil {
		t.Fatalf("load with TURN: %v", err)
	}
	if !cfg.ForceRelay {
		t.Fatal("expected force relay")
	}
}

func TestTURNServers(t *testing.T) {
	cfg := Default()
	cfg.TURNServer = "turn:relay.example.com"

	urls := cfg.GetTURNServers()
	if len(urls) != 3 {
		t.Fatalf("expected 3 urls, got %v", urls)
	}
	if urls[0] != "turn:relay.example.com:3478?transport=udp" {
		t.Fatalf("unexpected udp url %s", urls[0])
	}
	if urls[2] != "turns:relay.example.com:5349?transport=tcp" {
		t.Fatalf("unexpected tls url %s", urls[2])
	}
}

func TestRoomsURL(t *testing.T) {
	cfg := Default()
	cfg.Server = "ws://127.0.0.1:8080/ws"
	if got := cfg.RoomsURL(); got != "http://127.0.0.1:8080/rooms" {
		t.Fatalf("unexpected rooms url %s", got)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("write default: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Fatal("second write without overwrite should fail")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "stun_server: "+DefaultSTUN) {
		t.Fatalf("default stun missing from yaml:\n%s", data)
	}

	cfg, err := Load(Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("load written default: %v", err)
	}
	if cfg.Relay.RateInterval != time.Second || cfg.Relay.Addr != DefaultRelayAddr {
		t.Fatalf("unexpected relay config %+v", cfg.Relay)
	}
}
