package core

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/edwh/otk/pkg/models"
)

func TestRenderJSON_FilterDataDeduplicatedAndSorted(t *testing.T) {
	root := models.NewProjectNode(&models.Project{ID: 10, Name: "P"})
	root.Children = []*models.HierarchyNode{
		taskNode(&models.Task{ID: 1, Name: "a", StageName: "Waiting", Priority: 2},
			taskNode(&models.Task{ID: 2, Name: "b", StageName: "Done"})),
		taskNode(&models.Task{ID: 3, Name: "c", StageName: "Done", Priority: 2}),
	}
	h := &models.Hierarchy{Type: models.HierarchyProject, Root: root, TotalTasks: 3, MainTaskCount: 2}

	doc := NewTreePresenter("https://erp.example.com").RenderJSON(h)

	want := FilterData{Stages: []string{"Done", "Waiting"}, Priorities: []int{0, 2}}
	if diff := cmp.Diff(want, doc.FilterData); diff != "" {
		t.Errorf("filter data mismatch (-want +got):\n%s", diff)
	}
	if doc.Root.Metadata["total_tasks"] != 3 || doc.Root.Metadata["main_tasks"] != 2 {
		t.Errorf("unexpected project metadata: %v", doc.Root.Metadata)
	}
	if doc.Root.Stage != "" || doc.Root.Priority != nil {
		t.Error("project root must not carry stage or priority")
	}
}

func TestRenderJSON_NodeShape(t *testing.T) {
	task := &models.Task{
		ID:          42,
		Name:        "Write docs",
		StageName:   "04_in_progress",
		Priority:    5,
		Description: strings.Repeat("x", 250),
		ParentID:    7,
	}
	h := &models.Hierarchy{Type: models.HierarchyTask, Root: models.NewTaskNode(task)}

	doc := NewTreePresenter("https://erp.example.com/").RenderJSON(h)
	n := doc.Root

	if n.URL != "https://erp.example.com/web#id=42&model=project.task&view_type=form" {
		t.Errorf("URL = %q", n.URL)
	}
	if n.Stage != "In Progress" {
		t.Errorf("Stage = %q, want %q", n.Stage, "In Progress")
	}
	wantPriority := &models.PriorityInfo{Level: 3, Name: "Critical", Stars: "★★★"}
	if diff := cmp.Diff(wantPriority, n.Priority); diff != "" {
		t.Errorf("priority mismatch (-want +got):\n%s", diff)
	}
	if n.Metadata["user"] != DefaultAssignee {
		t.Errorf("user = %v, want %q", n.Metadata["user"], DefaultAssignee)
	}
	desc, _ := n.Metadata["description"].(string)
	if len(desc) != 203 || !strings.HasSuffix(desc, "...") {
		t.Errorf("description not truncated to 200+...: len=%d", len(desc))
	}
	if n.Children == nil {
		t.Error("children must serialize as an empty array, not null")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"filter_data"`, `"children":[]`, `"stars":"★★★"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("JSON missing %s: %s", key, raw)
		}
	}
}

func TestRenderJSON_MissingStageDefaults(t *testing.T) {
	h := &models.Hierarchy{Type: models.HierarchyTask, Root: models.NewTaskNode(&models.Task{ID: 1})}
	doc := NewTreePresenter("").RenderJSON(h)
	if doc.Root.Stage != DefaultStage {
		t.Errorf("Stage = %q, want %q", doc.Root.Stage, DefaultStage)
	}
	if doc.Root.Name != "Untitled" {
		t.Errorf("Name = %q, want Untitled", doc.Root.Name)
	}
	if diff := cmp.Diff([]string{DefaultStage}, doc.FilterData.Stages); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderJSON_Parents(t *testing.T) {
	h := &models.Hierarchy{
		Type:      models.HierarchyTask,
		Root:      models.NewTaskNode(&models.Task{ID: 3, Name: "C"}),
		Ancestors: []*models.Task{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}},
	}
	doc := NewTreePresenter("").RenderJSON(h)
	if len(doc.Parents) != 2 || doc.Parents[0].ID != 1 || doc.Parents[1].ID != 2 {
		t.Errorf("unexpected parents: %+v", doc.Parents)
	}
}

func TestCleanStageName(t *testing.T) {
	tests := map[string]string{
		"":               DefaultStage,
		"   ":            DefaultStage,
		"No Stage":       DefaultStage,
		"04_in_progress": "In Progress",
		"01_INBOX":       "Inbox",
		"done":           "Done",
		"Waiting":        "Waiting",
		"12_on_hold_qa":  "On Hold Qa",
	}
	for in, want := range tests {
		if got := CleanStageName(in); got != want {
			t.Errorf("CleanStageName(%q) = %q, want %q", in, got, want)
		}
	}
}

// Property 3: Filter-set determinism
// For any tree, filter_data SHALL be the same deduplicated, sorted set
// regardless of the order in which siblings appear.
func TestProperty_FilterDataOrderIndependent(t *testing.T) {
	stages := []string{"Done", "Waiting", "In Progress", "Inbox", ""}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(rt, "n")
		tasks := make([]*models.Task, n)
		for i := range tasks {
			tasks[i] = &models.Task{
				ID:        int64(i + 1),
				Name:      "t",
				StageName: rapid.SampledFrom(stages).Draw(rt, "stage"),
				Priority:  rapid.IntRange(-1, 5).Draw(rt, "priority"),
			}
		}

		build := func(order []int) *models.Hierarchy {
			root := models.NewProjectNode(&models.Project{ID: 1, Name: "P"})
			for _, idx := range order {
				root.Children = append(root.Children, models.NewTaskNode(tasks[idx]))
			}
			return &models.Hierarchy{Type: models.HierarchyProject, Root: root}
		}

		forward := make([]int, n)
		for i := range forward {
			forward[i] = i
		}
		shuffled := rapid.Permutation(forward).Draw(rt, "order")

		p := NewTreePresenter("")
		a := p.RenderJSON(build(forward)).FilterData
		b := p.RenderJSON(build(shuffled)).FilterData
		if diff := cmp.Diff(a, b); diff != "" {
			rt.Fatalf("filter data depends on order (-forward +shuffled):\n%s", diff)
		}
		for i := 1; i < len(a.Stages); i++ {
			if a.Stages[i-1] >= a.Stages[i] {
				rt.Fatalf("stages not strictly sorted: %v", a.Stages)
			}
		}
		for i := 1; i < len(a.Priorities); i++ {
			if a.Priorities[i-1] >= a.Priorities[i] {
				rt.Fatalf("priorities not strictly sorted: %v", a.Priorities)
			}
		}
	})
}
