package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/types"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	if err := configure(l, &buf, "debug", "json"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	l.WithField("session_id", "abcd1234").Debug("session started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "session started" || line["session_id"] != "abcd1234" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	if err := configure(l, &buf, "warn", "text"); err != nil {
		t.Fatalf("configure: %v", err)
	}
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
}

func TestRejectsBadSettings(t *testing.T) {
	l := logrus.New()
	if err := configure(l, &bytes.Buffer{}, "loud", "text"); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("expected config error for level, got %v", err)
	}
	if err := configure(l, &bytes.Buffer{}, "info", "xml"); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("expected config error for format, got %v", err)
	}
}
