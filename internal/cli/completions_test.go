package cli

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/internal/observability"
	"github.com/edwh/otk/pkg/models"
)

func withEventLog(t *testing.T, events ...observability.Event) {
	t.Helper()
	log, err := observability.NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("NewJSONLEventLog: %v", err)
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	orig := EventLog
	EventLog = log
	t.Cleanup(func() {
		EventLog = orig
		_ = log.Close()
	})
}

func builtEvent(typ models.HierarchyType, rootID int64, nodes int, at time.Time) observability.Event {
	return observability.Event{
		Time:  at,
		Level: observability.LevelInfo,
		Type:  core.EventHierarchyBuilt,
		Data: map[string]any{
			"type":    string(typ),
			"root_id": rootID,
			"nodes":   nodes,
		},
	}
}

func completionIDs(values []string) []string {
	ids := make([]string, len(values))
	for i, v := range values {
		ids[i], _, _ = strings.Cut(v, "\t")
	}
	return ids
}

func TestCompleteRecentRoots_NilEventLog(t *testing.T) {
	orig := EventLog
	defer func() { EventLog = orig }()
	EventLog = nil

	ids, directive := completeRecentRoots(models.HierarchyProject)(&cobra.Command{}, nil, "")
	if ids != nil {
		t.Errorf("expected nil ids, got %v", ids)
	}
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected NoFileComp directive, got %d", directive)
	}
}

func TestCompleteRecentRoots_NewestFirstAndDeduplicated(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	withEventLog(t,
		builtEvent(models.HierarchyProject, 10, 4, base),
		builtEvent(models.HierarchyTask, 7, 2, base.Add(time.Minute)),
		builtEvent(models.HierarchyProject, 12, 9, base.Add(2*time.Minute)),
		builtEvent(models.HierarchyProject, 10, 5, base.Add(3*time.Minute)),
	)

	values, _ := completeRecentRoots(models.HierarchyProject)(&cobra.Command{}, nil, "")
	got := completionIDs(values)
	if strings.Join(got, ",") != "10,12" {
		t.Fatalf("ids = %v, want [10 12]", got)
	}
	if !strings.Contains(values[0], "5 nodes") {
		t.Errorf("first completion should describe the newest build: %q", values[0])
	}

	values, _ = completeRecentRoots(models.HierarchyTask)(&cobra.Command{}, nil, "")
	if got := completionIDs(values); strings.Join(got, ",") != "7" {
		t.Errorf("task ids = %v, want [7]", got)
	}
}

func TestCompleteRecentRoots_PrefixAndArgs(t *testing.T) {
	now := time.Now().UTC()
	withEventLog(t,
		builtEvent(models.HierarchyProject, 10, 1, now),
		builtEvent(models.HierarchyProject, 21, 1, now),
		builtEvent(models.HierarchyProject, 105, 1, now),
	)

	values, _ := completeRecentRoots(models.HierarchyProject)(&cobra.Command{}, nil, "10")
	if got := completionIDs(values); strings.Join(got, ",") != "105,10" {
		t.Errorf("prefix ids = %v, want [105 10]", got)
	}

	values, _ = completeRecentRoots(models.HierarchyProject)(&cobra.Command{}, []string{"10"}, "")
	if values != nil {
		t.Errorf("no completions expected after the ID argument, got %v", values)
	}
}

func TestCompleteRecentRoots_Capped(t *testing.T) {
	now := time.Now().UTC()
	var events []observability.Event
	for i := int64(1); i <= maxRecentCompletions+5; i++ {
		events = append(events, builtEvent(models.HierarchyTask, i, 1, now))
	}
	withEventLog(t, events...)

	values, _ := completeRecentRoots(models.HierarchyTask)(&cobra.Command{}, nil, "")
	if len(values) != maxRecentCompletions {
		t.Errorf("got %d completions, want %d", len(values), maxRecentCompletions)
	}
}

func TestCompletePriorities(t *testing.T) {
	values, directive := completePriorities(&cobra.Command{}, nil, "")
	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected NoFileComp directive, got %d", directive)
	}
	if got := completionIDs(values); strings.Join(got, ",") != "0,1,2,3" {
		t.Errorf("priority levels = %v, want [0 1 2 3]", got)
	}
	if !strings.Contains(values[3], models.PriorityFor(3).Name) {
		t.Errorf("level 3 should carry its name: %q", values[3])
	}
}

func TestCompleteProtocols(t *testing.T) {
	values, _ := completeProtocols(&cobra.Command{}, nil, "")
	got := completionIDs(values)
	if len(got) != 2 || got[0] != core.ProtocolXMLRPCS || got[1] != core.ProtocolXMLRPC {
		t.Errorf("protocols = %v", got)
	}
}
