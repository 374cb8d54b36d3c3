package observability

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edwh/otk/internal/core"
)

func newTestLog(t *testing.T) (EventLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log, path
}

func writeEvents(t *testing.T, log EventLog, events ...Event) {
	t.Helper()
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}
}

func TestEventLog_WriteAndRead(t *testing.T) {
	log, _ := newTestLog(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	writeEvents(t, log,
		Event{
			Time:    now,
			Level:   LevelInfo,
			Type:    core.EventTaskMoved,
			Message: "task 4 moved under 1",
			Data:    map[string]any{"task_id": 4, "new_parent_id": 1},
		},
		Event{
			Time:    now.Add(time.Second),
			Level:   LevelWarn,
			Type:    core.EventMoveFailed,
			Message: "task 1 not moved",
			Data:    map[string]any{"task_id": 1, "kind": core.KindCycle},
		},
	)

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result))
	}
	if result[0].Type != core.EventTaskMoved {
		t.Errorf("expected type %s, got %s", core.EventTaskMoved, result[0].Type)
	}
	if result[1].Level != LevelWarn {
		t.Errorf("expected level WARN, got %s", result[1].Level)
	}
	if result[1].Data["kind"] != core.KindCycle {
		t.Errorf("expected kind cycle, got %v", result[1].Data["kind"])
	}
}

func TestEventLog_AssignsIDAndTime(t *testing.T) {
	log, _ := newTestLog(t)
	writeEvents(t, log, Event{Type: core.EventTaskPromoted}, Event{Type: core.EventTaskPromoted})

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result))
	}
	for _, e := range result {
		if _, err := uuid.Parse(e.ID); err != nil {
			t.Errorf("event ID %q is not a UUID: %v", e.ID, err)
		}
		if e.Time.IsZero() {
			t.Error("expected time to be set")
		}
	}
	if result[0].ID == result[1].ID {
		t.Error("expected distinct event IDs")
	}
}

func TestEventLog_KeepsExplicitID(t *testing.T) {
	log, _ := newTestLog(t)
	writeEvents(t, log, Event{ID: "fixed", Time: time.Now().UTC(), Type: core.EventTaskMoved})

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if result[0].ID != "fixed" {
		t.Errorf("ID = %q, want fixed", result[0].ID)
	}
}

func TestEventLog_FilterByType(t *testing.T) {
	log, _ := newTestLog(t)

	now := time.Now().UTC()
	writeEvents(t, log,
		Event{Time: now, Level: LevelInfo, Type: core.EventTaskMoved, Message: "moved"},
		Event{Time: now.Add(time.Second), Level: LevelInfo, Type: core.EventHierarchyBuilt, Message: "built"},
		Event{Time: now.Add(2 * time.Second), Level: LevelInfo, Type: core.EventTaskMoved, Message: "moved again"},
	)

	result, err := log.Read(EventFilter{Type: core.EventTaskMoved})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events of type %s, got %d", core.EventTaskMoved, len(result))
	}
	for _, e := range result {
		if e.Type != core.EventTaskMoved {
			t.Errorf("expected type %s, got %s", core.EventTaskMoved, e.Type)
		}
	}
}

func TestEventLog_FilterByTimeRange(t *testing.T) {
	log, _ := newTestLog(t)

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	writeEvents(t, log,
		Event{Time: base, Level: LevelInfo, Type: core.EventTaskMoved, Message: "first"},
		Event{Time: base.Add(time.Hour), Level: LevelInfo, Type: core.EventTaskMoved, Message: "second"},
		Event{Time: base.Add(2 * time.Hour), Level: LevelInfo, Type: core.EventTaskMoved, Message: "third"},
		Event{Time: base.Add(3 * time.Hour), Level: LevelInfo, Type: core.EventTaskMoved, Message: "fourth"},
	)

	since := base.Add(30 * time.Minute)
	until := base.Add(2*time.Hour + 30*time.Minute)
	result, err := log.Read(EventFilter{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events in time range, got %d", len(result))
	}
	if result[0].Message != "second" || result[1].Message != "third" {
		t.Errorf("unexpected events: %q, %q", result[0].Message, result[1].Message)
	}
}

func TestEventLog_FilterByLevel(t *testing.T) {
	log, _ := newTestLog(t)

	now := time.Now().UTC()
	writeEvents(t, log,
		Event{Time: now, Level: LevelInfo, Type: core.EventTaskMoved},
		Event{Time: now.Add(time.Second), Level: LevelWarn, Type: core.EventMoveFailed},
		Event{Time: now.Add(2 * time.Second), Level: LevelError, Type: core.EventMoveFailed},
		Event{Time: now.Add(3 * time.Second), Level: LevelWarn, Type: core.EventMoveFailed},
	)

	result, err := log.Read(EventFilter{Level: LevelWarn})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 WARN events, got %d", len(result))
	}
}

func TestEventLog_EmptyLog(t *testing.T) {
	log, _ := newTestLog(t)

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading empty log: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected 0 events from empty log, got %d", len(result))
	}
}

func TestEventLog_SkipsMalformedLines(t *testing.T) {
	log, path := newTestLog(t)
	writeEvents(t, log, Event{Type: core.EventTaskMoved})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	w := bufio.NewWriter(f)
	_, _ = w.WriteString("{not json\n\n")
	_ = w.Flush()
	_ = f.Close()

	writeEvents(t, log, Event{Type: core.EventTaskPromoted})

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 events, got %d", len(result))
	}
}

func TestEventLog_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	defer log.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestEventLog_ConcurrentWrites(t *testing.T) {
	log, _ := newTestLog(t)

	const goroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < eventsPerGoroutine; i++ {
				event := Event{
					Level: LevelInfo,
					Type:  core.EventHierarchyBuilt,
					Data:  map[string]any{"goroutine": id, "index": i},
				}
				if err := log.Write(event); err != nil {
					t.Errorf("concurrent write error: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events after concurrent writes: %v", err)
	}
	if expected := goroutines * eventsPerGoroutine; len(result) != expected {
		t.Errorf("expected %d events, got %d", expected, len(result))
	}
}

func TestRecorder_LevelsAndMessages(t *testing.T) {
	log, _ := newTestLog(t)
	rec := NewRecorder(log)

	if err := rec.LogEvent(core.EventTaskMoved, map[string]any{"task_id": 4, "new_parent_id": 1}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := rec.LogEvent(core.EventMoveFailed, map[string]any{"task_id": 1, "error": "boom"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result))
	}
	if result[0].Level != LevelInfo || result[0].Message != "task 4 moved under 1" {
		t.Errorf("unexpected move event: %+v", result[0])
	}
	if result[1].Level != LevelWarn || result[1].Message != "task 1 not moved: boom" {
		t.Errorf("unexpected failure event: %+v", result[1])
	}
}

type failingLog struct{ EventLog }

func (failingLog) Write(Event) error { return errors.New("disk full") }

func TestRecorder_PropagatesWriteErrors(t *testing.T) {
	rec := NewRecorder(failingLog{})
	if err := rec.LogEvent(core.EventTaskPromoted, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestJSONLEventLog_ConcurrentHandlesSameFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	a, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	const perLog = 50
	var wg sync.WaitGroup
	for _, l := range []EventLog{a, b} {
		wg.Add(1)
		go func(l EventLog) {
			defer wg.Done()
			for i := 0; i < perLog; i++ {
				if err := l.Write(Event{Type: "task.moved", Data: map[string]any{"task_id": i}}); err != nil {
					t.Errorf("Write: %v", err)
					return
				}
			}
		}(l)
	}
	wg.Wait()

	events, err := a.Read(EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2*perLog {
		t.Errorf("read %d events, want %d", len(events), 2*perLog)
	}
}
