package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edwh/otk/pkg/models"
)

// Verbosity levels accepted by the text renderer.
const (
	VerbosityEssentials = 0
	VerbositySummary    = 1
	VerbosityDetailed   = 2
	VerbosityFull       = 3
)

// Display defaults substituted for missing optional data.
const (
	DefaultStage    = "No stage"
	DefaultAssignee = "Unassigned"
	DefaultClient   = "No client"
)

const (
	connectorMid  = "├── "
	connectorLast = "└── "
	indentMid     = "│  "
	indentLast    = "   "
	detailIndent  = "    "
	treeDetailPad = " "

	textExcerptLen = 100
)

// TreePresenter renders hierarchies for terminals and UI clients. BaseURL is
// the web root used for record links in JSON output.
type TreePresenter struct {
	BaseURL string
}

// NewTreePresenter creates a TreePresenter linking records under baseURL.
func NewTreePresenter(baseURL string) *TreePresenter {
	return &TreePresenter{BaseURL: strings.TrimRight(baseURL, "/")}
}

// RenderTree renders nodes in pre-order with tree(1)-style connectors. Each
// node is followed by its detail lines at the given verbosity, aligned with
// the node name.
func (p *TreePresenter) RenderTree(nodes []*models.HierarchyNode, verbosity int) string {
	var sb strings.Builder
	renderLevel(&sb, nodes, "", clampVerbosity(verbosity))
	return sb.String()
}

func renderLevel(sb *strings.Builder, nodes []*models.HierarchyNode, indent string, verbosity int) {
	for i, n := range nodes {
		last := i == len(nodes)-1
		connector, next := connectorMid, indent+indentMid
		if last {
			connector, next = connectorLast, indent+indentLast
		}

		fmt.Fprintf(sb, "%s%s%s (ID: %d)\n", indent, connector, n.Name, n.ID)
		for _, line := range detailLines(n, verbosity) {
			sb.WriteString(next + treeDetailPad + line + "\n")
		}
		renderLevel(sb, n.Children, next, verbosity)
	}
}

// RenderText renders the full terminal view of h: the parent chain, a header
// for the root and then the tree below it.
func (p *TreePresenter) RenderText(h *models.Hierarchy, verbosity int) string {
	if h == nil || h.Root == nil {
		return ""
	}
	verbosity = clampVerbosity(verbosity)

	var sb strings.Builder
	switch h.Type {
	case models.HierarchyProject:
		writeProjectHeader(&sb, h)
		if len(h.Root.Children) == 0 {
			sb.WriteString("\nNo tasks found.\n")
		} else {
			sb.WriteString("\n")
			sb.WriteString(p.RenderTree(h.Root.Children, verbosity))
		}
	default:
		if len(h.Ancestors) > 0 {
			sb.WriteString("📈 PARENT CHAIN:\n")
			for i, a := range h.Ancestors {
				fmt.Fprintf(&sb, "%s└── %s (ID: %d)\n", strings.Repeat("  ", i), a.Name, a.ID)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("🎯 MAIN TASK:\n")
		fmt.Fprintf(&sb, "└── %s (ID: %d)\n", h.Root.Name, h.Root.ID)
		for _, line := range detailLines(h.Root, verbosity) {
			sb.WriteString(detailIndent + line + "\n")
		}
		if len(h.Root.Children) > 0 {
			sb.WriteString("\n📉 SUBTASKS:\n")
			sb.WriteString(p.RenderTree(h.Root.Children, verbosity))
		}
	}

	if h.Truncated {
		fmt.Fprintf(&sb, "\n⚠️  Output truncated after %d tasks\n", h.NodeCount)
	}
	return sb.String()
}

func writeProjectHeader(sb *strings.Builder, h *models.Hierarchy) {
	fmt.Fprintf(sb, "📂 PROJECT: %s (ID: %d)\n", h.Root.Name, h.Root.ID)
	if pr := h.Root.Project; pr != nil {
		fmt.Fprintf(sb, "%s👤 Manager: %s\n", detailIndent, orDefault(pr.ManagerName, DefaultAssignee))
		fmt.Fprintf(sb, "%s🏢 Client: %s\n", detailIndent, orDefault(pr.PartnerName, DefaultClient))
	}
	fmt.Fprintf(sb, "%s📊 Tasks: %d total, %d main\n", detailIndent, h.TotalTasks, h.MainTaskCount)
}

// detailLines returns the per-node lines shown under a task at verbosity.
// Project nodes have no detail lines.
func detailLines(n *models.HierarchyNode, verbosity int) []string {
	t := n.Task
	if t == nil {
		return nil
	}

	essentials := []string{
		"👤 " + assigneeLabel(t),
		"📊 " + orDefault(t.StageName, DefaultStage),
		models.PriorityFor(t.Priority).Stars,
	}
	if len(t.BlockedBy) > 0 {
		essentials = append(essentials, "⛔ blocked by "+joinIDs(t.BlockedBy))
	}
	if len(t.Blocking) > 0 {
		essentials = append(essentials, "🔗 blocking "+joinIDs(t.Blocking))
	}
	lines := []string{strings.Join(essentials, " | ")}
	if verbosity < VerbositySummary {
		return lines
	}

	if t.ProjectName != "" {
		lines = append(lines, "📂 Project: "+t.ProjectName)
	}
	if t.Deadline != "" {
		lines = append(lines, "📅 Deadline: "+t.Deadline)
	}
	if t.State != "" {
		lines = append(lines, "🔖 State: "+t.State)
	}
	if verbosity < VerbosityDetailed {
		return lines
	}

	if t.KanbanState != "" {
		lines = append(lines, "🚦 Kanban: "+t.KanbanState)
	}
	if d := excerpt(t.Description, textExcerptLen); d != "" {
		lines = append(lines, "📝 "+d)
	}
	if verbosity < VerbosityFull {
		return lines
	}

	p := models.PriorityFor(t.Priority)
	lines = append(lines, fmt.Sprintf("⭐ Priority: %d (%s)", p.Level, p.Name))
	if t.HasParent() {
		lines = append(lines, fmt.Sprintf("⬆️  Parent: %s (ID: %d)", orDefault(t.ParentName, "?"), t.ParentID))
	} else {
		lines = append(lines, "⬆️  Parent: none (main task)")
	}
	if t.ProjectID > 0 {
		lines = append(lines, fmt.Sprintf("🗂  Project ID: %d", t.ProjectID))
	}
	if len(t.UserIDs) > 0 {
		lines = append(lines, "🆔 User IDs: "+joinIDs(t.UserIDs))
	}
	if len(t.ChildIDs) > 0 {
		lines = append(lines, "🌿 Child IDs: "+joinIDs(t.ChildIDs))
	}
	return lines
}

func clampVerbosity(v int) int {
	if v < VerbosityEssentials {
		return VerbosityEssentials
	}
	if v > VerbosityFull {
		return VerbosityFull
	}
	return v
}

func assigneeLabel(t *models.Task) string {
	if len(t.Assignees) == 0 {
		return DefaultAssignee
	}
	return strings.Join(t.Assignees, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// excerpt collapses whitespace in s and cuts it to limit runes, marking a cut
// with "...".
func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
