package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" INFO ":  zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"prod":    zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"verbose": zerolog.TraceLevel,
	}
	for name, want := range cases {
		if got := ParseLevel(name, zerolog.TraceLevel); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestInitLevelPrecedence(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	log := Init("", &buf)
	log.Debug().Msg("from env")
	if !strings.Contains(buf.String(), "from env") {
		t.Fatalf("LOG_LEVEL should enable debug, got %q", buf.String())
	}

	buf.Reset()
	log = Init("error", &buf)
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("explicit level should win over LOG_LEVEL, got %q", buf.String())
	}
}

func TestModuleTagsChild(t *testing.T) {
	var buf bytes.Buffer
	child := Module(zerolog.New(&buf), "signaling")
	child.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"module":"signaling"`) {
		t.Fatalf("module field missing: %s", buf.String())
	}
}
