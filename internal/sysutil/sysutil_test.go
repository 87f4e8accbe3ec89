package sysutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetupLogger_FileSink(t *testing.T) {
	origLevel, origLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
	})

	path := filepath.Join(t.TempDir(), "bot.log")
	closer, err := SetupLogger(LogOptions{Level: "info", File: path})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	log.Info().Str("k", "v").Msg("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"message":"hello file"`) {
		t.Fatalf("file sink missing entry: %s", b)
	}
}

func TestSetupLogger_NoFile_AndBadPath(t *testing.T) {
	origLevel, origLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
	})

	closer, err := SetupLogger(LogOptions{Level: "debug", Pretty: true})
	if err != nil || closer == nil {
		t.Fatalf("console-only setup failed: closer=%v err=%v", closer, err)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("level not applied")
	}

	bad := filepath.Join(t.TempDir(), "missing-dir", "bot.log")
	closer, err = SetupLogger(LogOptions{File: bad})
	if err == nil {
		t.Fatalf("expected error for unwritable path")
	}
	if closer == nil || closer.Close() != nil {
		t.Fatalf("closer must be usable even on error")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want \"\"", got)
	}
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(empties) = %q; want \"\"", got)
	}
	if got := FirstNonEmpty("   ", "  hello  ", "world"); got != "  hello  " {
		t.Fatalf("FirstNonEmpty(...) = %q; want %q", got, "  hello  ")
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"":                           "",
		"plain_username":             "plain_username",
		"mail me at a.b@example.com": "mail me at [REDACTED:email]",
		"call 212-555-1212 now":      "call [REDACTED:phone] now",
		"id 123e4567-e89b-12d3-a456-426614174000": "id [REDACTED:id]",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q) = %q; want %q", in, got, want)
		}
	}
}
