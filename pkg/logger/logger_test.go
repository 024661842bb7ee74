package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	for _, format := range []string{"", FormatText, FormatJSON, "JSON"} {
		if err := InitWithFormat(format); err != nil {
			t.Fatalf("InitWithFormat(%q): %v", format, err)
		}
		if Get() == nil {
			t.Fatalf("logger is nil after InitWithFormat(%q)", format)
		}
	}
	if err := InitWithFormat("xml"); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
	if err := Sync(); err != nil {
		t.Errorf("failed to sync logger: %v", err)
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := initWriter(&buf, FormatJSON); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	SetLevel(0)

	Named("worker").Info(context.Background(), "appended", String("column_id", "diameter"), Int("points", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record is not JSON: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "appended" || rec["component"] != "worker" || rec["column_id"] != "diameter" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if src, _ := rec["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Fatalf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := initWriter(&buf, FormatText); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("SetLevelString: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Info(ctx, "hidden")
	Get().Warn(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
	if err := SetLevelString("loud"); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
