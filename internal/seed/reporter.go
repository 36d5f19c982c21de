package seed

import (
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-seed/internal/store"
)

// Event kinds emitted while a routine runs.
const (
	EventCreated  = "created"
	EventDeleted  = "deleted"
	EventWarning  = "warning"
	EventSkipped  = "skipped"
	EventSummary  = "summary"
	EventRecount  = "recount"
	EventRollback = "rollback"
)

// Event is one progress report from a routine.
type Event struct {
	Routine   string
	Kind      string
	Entity    string
	Key       string
	Count     int
	Message   string
	CreatedAt time.Time
}

// Reporter receives progress events. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(event Event)
}

// NopReporter ignores all events.
type NopReporter struct{}

func (NopReporter) Report(Event) {}

// MemoryReporter stores events in memory for tests.
type MemoryReporter struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryReporter() *MemoryReporter {
	return &MemoryReporter{events: []Event{}}
}

func (r *MemoryReporter) Report(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *MemoryReporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

// Kind returns the events of one kind in the order they were reported.
func (r *MemoryReporter) Kind(kind string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// SlogReporter writes events through a slog.Logger. Warnings are logged at
// warn level, everything else at info.
type SlogReporter struct {
	logger *slog.Logger
}

func NewSlogReporter(logger *slog.Logger) *SlogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogReporter{logger: logger}
}

func (r *SlogReporter) Report(event Event) {
	attrs := []any{"routine", event.Routine, "kind", event.Kind}
	if event.Entity != "" {
		attrs = append(attrs, "entity", event.Entity)
	}
	if event.Key != "" {
		attrs = append(attrs, "key", event.Key)
	}
	if event.Count != 0 || event.Kind == EventSummary || event.Kind == EventDeleted {
		attrs = append(attrs, "count", event.Count)
	}

	msg := event.Message
	if msg == "" {
		msg = "seed " + event.Kind
	}
	if event.Kind == EventWarning {
		r.logger.Warn(msg, attrs...)
		return
	}
	r.logger.Info(msg, attrs...)
}

// RunContext is passed explicitly into every routine: where to write and
// where to report.
type RunContext struct {
	Routine  string
	Store    store.Store
	Reporter Reporter
	// StrictOrdering rejects sibling collections whose positions repeat or
	// descend instead of reporting them as warnings.
	StrictOrdering bool
}

// WithStore returns a copy of rc that writes to s, typically a transaction.
func (rc RunContext) WithStore(s store.Store) RunContext {
	rc.Store = s
	return rc
}

func (rc RunContext) report(event Event) {
	if rc.Reporter == nil {
		return
	}
	if event.Routine == "" {
		event.Routine = rc.Routine
	}
	rc.Reporter.Report(event)
}
