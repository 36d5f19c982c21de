package seed_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-seed/internal/seed"
)

func TestMemoryReporter(t *testing.T) {
	r := seed.NewMemoryReporter()
	r.Report(seed.Event{Kind: seed.EventCreated, Count: 3})
	r.Report(seed.Event{Kind: seed.EventWarning, Key: "go-basics/m2"})
	r.Report(seed.Event{Kind: seed.EventCreated, Count: 1})

	if got := len(r.Events()); got != 3 {
		t.Fatalf("Events() = %d, want 3", got)
	}
	created := r.Kind(seed.EventCreated)
	if len(created) != 2 || created[1].Count != 1 {
		t.Errorf("Kind(created) = %+v", created)
	}
	if r.Events()[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestSlogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := seed.NewSlogReporter(slog.New(slog.NewJSONHandler(&buf, nil)))

	r.Report(seed.Event{Routine: "templates", Kind: seed.EventWarning, Entity: "task", Key: "go-basics/m2", Message: "task under go-basics/m2: position 1 repeated"})
	r.Report(seed.Event{Routine: "translations", Kind: seed.EventSummary, Message: "translations created 0 rows"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}

	var warn, summary map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &warn); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &summary); err != nil {
		t.Fatal(err)
	}
	if warn["level"] != "WARN" || warn["key"] != "go-basics/m2" {
		t.Errorf("warning record = %v", warn)
	}
	if summary["level"] != "INFO" || summary["count"] != float64(0) {
		t.Errorf("summary record = %v, want count logged even when zero", summary)
	}
}
