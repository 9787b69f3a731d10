package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("not-a-level")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
	if New("debug").GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
}

func TestLogErrorWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info")
	logger.SetOutput(&buf)

	LogError(logger, "service", "CommitSale", "record sale", map[string]int{"lines": 2}, errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["module"] != "service" || entry["funcName"] != "CommitSale" || entry["msg"] != "boom" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["data"] == nil {
		t.Fatalf("expected data field")
	}
}
