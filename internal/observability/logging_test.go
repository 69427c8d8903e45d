package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deskflow/helpdesk-assistant/internal/config"
)

func logToFile(t *testing.T, cfg config.LoggerConfig, write func(*zap.Logger)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := buildLogger(cfg, []string{path})
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	write(logger)
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(raw)
}

func TestJSONLoggerCarriesServiceFields(t *testing.T) {
	out := logToFile(t, config.LoggerConfig{Level: "info", Service: "helpdesk-assistant", Env: "staging"}, func(l *zap.Logger) {
		l.Info("chat turn", zap.String("conversation_id", "c1"))
	})

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("expected one json entry, got %q: %v", out, err)
	}
	if entry["service"] != "helpdesk-assistant" || entry["env"] != "staging" {
		t.Fatalf("expected service and env fields, got %v", entry)
	}
	if entry["level"] != "info" || entry["message"] != "chat turn" || entry["conversation_id"] != "c1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := buildLogger(config.LoggerConfig{Level: "chatty"}, []string{filepath.Join(t.TempDir(), "out.log")})
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug to be disabled")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info to be enabled")
	}
}

func TestConsoleFormat(t *testing.T) {
	out := logToFile(t, config.LoggerConfig{Level: "debug", Format: "console"}, func(l *zap.Logger) {
		l.Debug("handshake stored")
	})
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got %q", out)
	}
	if !strings.Contains(out, "DEBUG") || !strings.Contains(out, "handshake stored") {
		t.Fatalf("unexpected console line %q", out)
	}
}
