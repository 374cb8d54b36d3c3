package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edwh/otk/pkg/models"
)

// Remote model names used in record links.
const (
	ModelTask    = "project.task"
	ModelProject = "project.project"
)

const jsonDescriptionLen = 200

// HierarchyDocument is the JSON form of a Hierarchy served to UI clients.
type HierarchyDocument struct {
	Type       string          `json:"type"`
	Root       *NodeDocument   `json:"root"`
	Parents    []*NodeDocument `json:"parents,omitempty"`
	FilterData FilterData      `json:"filter_data"`
	Truncated  bool            `json:"truncated,omitempty"`
}

// FilterData lists the distinct stages and priority levels of the task nodes
// in a document, sorted.
type FilterData struct {
	Stages     []string `json:"stages"`
	Priorities []int    `json:"priorities"`
}

// NodeDocument is one node of a HierarchyDocument.
type NodeDocument struct {
	ID       int64                `json:"id"`
	Name     string               `json:"name"`
	Type     string               `json:"type"`
	URL      string               `json:"url"`
	Stage    string               `json:"stage,omitempty"`
	Priority *models.PriorityInfo `json:"priority,omitempty"`
	Metadata map[string]any       `json:"metadata"`
	Children []*NodeDocument      `json:"children"`
}

// RenderJSON converts h into its JSON document.
func (p *TreePresenter) RenderJSON(h *models.Hierarchy) *HierarchyDocument {
	if h == nil || h.Root == nil {
		return nil
	}

	doc := &HierarchyDocument{
		Type:      string(h.Type),
		Root:      p.nodeDocument(h.Root),
		Truncated: h.Truncated,
	}
	if h.Type == models.HierarchyProject {
		doc.Root.Metadata["total_tasks"] = h.TotalTasks
		doc.Root.Metadata["main_tasks"] = h.MainTaskCount
	}
	for _, a := range h.Ancestors {
		parent := p.taskDocument(a)
		parent.Children = []*NodeDocument{}
		doc.Parents = append(doc.Parents, parent)
	}
	doc.FilterData = CollectFilterData(doc.Root)
	return doc
}

func (p *TreePresenter) nodeDocument(n *models.HierarchyNode) *NodeDocument {
	var doc *NodeDocument
	switch {
	case n.Type == models.NodeProject && n.Project != nil:
		doc = p.projectDocument(n.Project)
	case n.Task != nil:
		doc = p.taskDocument(n.Task)
	default:
		doc = &NodeDocument{ID: n.ID, Name: n.Name, Type: string(n.Type), Metadata: map[string]any{}}
	}

	doc.Children = make([]*NodeDocument, 0, len(n.Children))
	for _, c := range n.Children {
		doc.Children = append(doc.Children, p.nodeDocument(c))
	}
	return doc
}

func (p *TreePresenter) taskDocument(t *models.Task) *NodeDocument {
	stage := CleanStageName(t.StageName)
	priority := models.PriorityFor(t.Priority)

	meta := map[string]any{
		"user":     assigneeLabel(t),
		"stage":    stage,
		"priority": priority.Level,
	}
	if t.State != "" {
		meta["state"] = t.State
	}
	if t.KanbanState != "" {
		meta["kanban_state"] = t.KanbanState
	}
	if t.Deadline != "" {
		meta["deadline"] = t.Deadline
	}
	if t.ProjectName != "" {
		meta["project"] = t.ProjectName
	}
	if t.HasParent() {
		meta["parent_id"] = t.ParentID
	}
	if t.Description != "" {
		meta["description"] = truncateRunes(t.Description, jsonDescriptionLen)
	}
	if len(t.BlockedBy) > 0 {
		meta["blocked_by"] = t.BlockedBy
	}
	if len(t.Blocking) > 0 {
		meta["blocking"] = t.Blocking
	}

	return &NodeDocument{
		ID:       t.ID,
		Name:     orDefault(t.Name, "Untitled"),
		Type:     string(models.NodeTask),
		URL:      p.RecordURL(ModelTask, t.ID),
		Stage:    stage,
		Priority: &priority,
		Metadata: meta,
	}
}

func (p *TreePresenter) projectDocument(pr *models.Project) *NodeDocument {
	meta := map[string]any{
		"manager": orDefault(pr.ManagerName, DefaultAssignee),
		"client":  orDefault(pr.PartnerName, DefaultClient),
	}
	if pr.Description != "" {
		meta["description"] = truncateRunes(pr.Description, jsonDescriptionLen)
	}
	return &NodeDocument{
		ID:       pr.ID,
		Name:     orDefault(pr.Name, "Untitled Project"),
		Type:     string(models.NodeProject),
		URL:      p.RecordURL(ModelProject, pr.ID),
		Metadata: meta,
	}
}

// RecordURL returns the form view link of a remote record.
func (p *TreePresenter) RecordURL(model string, id int64) string {
	return fmt.Sprintf("%s/web#id=%d&model=%s&view_type=form", p.BaseURL, id, model)
}

// CollectFilterData gathers the stages and priority levels of every task node
// under root into deduplicated, sorted sets.
func CollectFilterData(root *NodeDocument) FilterData {
	stages := map[string]struct{}{}
	priorities := map[int]struct{}{}

	var visit func(*NodeDocument)
	visit = func(n *NodeDocument) {
		if n == nil {
			return
		}
		if n.Type == string(models.NodeTask) {
			if n.Stage != "" {
				stages[n.Stage] = struct{}{}
			}
			if n.Priority != nil {
				priorities[n.Priority.Level] = struct{}{}
			}
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)

	fd := FilterData{
		Stages:     make([]string, 0, len(stages)),
		Priorities: make([]int, 0, len(priorities)),
	}
	for s := range stages {
		fd.Stages = append(fd.Stages, s)
	}
	for l := range priorities {
		fd.Priorities = append(fd.Priorities, l)
	}
	sort.Strings(fd.Stages)
	sort.Ints(fd.Priorities)
	return fd
}

var stagePrefix = regexp.MustCompile(`^\d+_`)

// CleanStageName turns raw stage names such as "04_in_progress" into
// "In Progress". Empty names become DefaultStage.
func CleanStageName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, DefaultStage) {
		return DefaultStage
	}
	cleaned := stagePrefix.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	return cases.Title(language.Und).String(cleaned)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
