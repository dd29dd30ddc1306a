package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/jwebster45206/roleplay-agent/internal/config"
)

func TestSetup_SetsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	l := Setup(&config.Config{Environment: "production", LogLevel: slog.LevelWarn})
	if slog.Default() != l {
		t.Error("Expected Setup to install the default logger")
	}
	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Expected info to be disabled at warn level")
	}
}

func TestHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithError(WithSession(WithRequestID(base, "req-1"), "sess-1", "user-1"), errors.New("boom")).Info("hello")

	out := buf.String()
	for _, want := range []string{"request_id=req-1", "session_id=sess-1", "owner_id=user-1", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}

	if WithError(base, nil) != base {
		t.Error("Expected nil error to return the same logger")
	}
}
