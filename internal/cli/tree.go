package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	filterLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	filterActiveStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// treeChromeLines is the number of lines around the scrolled tree body.
const treeChromeLines = 6

type treeModel struct {
	projectID int64
	depth     int
	presenter *core.TreePresenter

	width  int
	height int
	offset int

	// Data.
	full       *models.Hierarchy
	stages     []string
	priorities []int

	// Filter state; -1 shows everything.
	stageIdx    int
	priorityIdx int
	verbosity   int

	// State.
	loading bool
	err     error
}

// treeLoadedMsg carries a freshly built hierarchy back to the model.
type treeLoadedMsg struct {
	hierarchy *models.Hierarchy
	err       error
}

func newTreeModel(projectID int64, depth int, presenter *core.TreePresenter) treeModel {
	return treeModel{
		projectID:   projectID,
		depth:       depth,
		presenter:   presenter,
		stageIdx:    -1,
		priorityIdx: -1,
		loading:     true,
	}
}

func (m treeModel) Init() tea.Cmd {
	return loadTree(m.projectID, m.depth)
}

func (m treeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "s":
			m.stageIdx = cycle(m.stageIdx, len(m.stages))
			m.offset = 0
		case "p":
			m.priorityIdx = cycle(m.priorityIdx, len(m.priorities))
			m.offset = 0
		case "c":
			m.stageIdx, m.priorityIdx, m.offset = -1, -1, 0
		case "v":
			m.verbosity = (m.verbosity + 1) % 4
			m.offset = min(m.offset, m.maxOffset())
		case "up", "k":
			if m.offset > 0 {
				m.offset--
			}
		case "down", "j":
			if m.offset < m.maxOffset() {
				m.offset++
			}
		case "pgdown", " ":
			m.offset = min(m.offset+m.pageSize(), m.maxOffset())
		case "pgup":
			m.offset = max(m.offset-m.pageSize(), 0)
		case "r":
			m.loading = true
			return m, loadTree(m.projectID, m.depth)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.offset = min(m.offset, m.maxOffset())
		return m, nil

	case treeLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.full = msg.hierarchy
		fd := m.presenter.RenderJSON(msg.hierarchy).FilterData
		m.stages, m.priorities = fd.Stages, fd.Priorities
		if m.stageIdx >= len(m.stages) {
			m.stageIdx = -1
		}
		if m.priorityIdx >= len(m.priorities) {
			m.priorityIdx = -1
		}
		m.offset = min(m.offset, m.maxOffset())
		return m, nil
	}

	return m, nil
}

// cycle advances a filter index through -1 (all) and 0..n-1.
func cycle(idx, n int) int {
	if n == 0 {
		return -1
	}
	idx++
	if idx >= n {
		return -1
	}
	return idx
}

func (m treeModel) filter() core.HierarchyFilter {
	var f core.HierarchyFilter
	if m.stageIdx >= 0 && m.stageIdx < len(m.stages) {
		f.Stages = []string{m.stages[m.stageIdx]}
	}
	if m.priorityIdx >= 0 && m.priorityIdx < len(m.priorities) {
		f.Priorities = []int{m.priorities[m.priorityIdx]}
	}
	return f
}

// lines returns the rendered tree of the filtered hierarchy.
func (m treeModel) lines() []string {
	if m.full == nil {
		return nil
	}
	text := m.presenter.RenderText(core.FilterTree(m.full, m.filter()), m.verbosity)
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

func (m treeModel) pageSize() int {
	return max(m.height-treeChromeLines, 1)
}

func (m treeModel) maxOffset() int {
	return max(len(m.lines())-m.pageSize(), 0)
}

func (m treeModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	name := fmt.Sprintf("project %d", m.projectID)
	if m.full != nil && m.full.Root != nil {
		name = m.full.Root.Name
	}
	title := titleStyle.Render(" otk · " + name + " ")
	help := helpStyle.Render("s: stage | p: priority | c: clear | v: detail | ↑/↓: scroll | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading hierarchy...\n\n%s", title, help)
	}
	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	lines := m.lines()
	start := min(m.offset, len(lines))
	end := min(start+m.pageSize(), len(lines))
	body := strings.Join(lines[start:end], "\n")

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, m.renderFilters(len(lines)), body, help)
}

func (m treeModel) renderFilters(total int) string {
	stage, priority := "all", "all"
	stageStyle, priorityStyle := filterLabelStyle, filterLabelStyle
	if m.stageIdx >= 0 && m.stageIdx < len(m.stages) {
		stage, stageStyle = m.stages[m.stageIdx], filterActiveStyle
	}
	if m.priorityIdx >= 0 && m.priorityIdx < len(m.priorities) {
		p := models.PriorityFor(m.priorities[m.priorityIdx])
		priority, priorityStyle = p.Name+" "+p.Stars, filterActiveStyle
	}
	return fmt.Sprintf("%s %s  %s %s  %s %s",
		filterLabelStyle.Render("stage:"), stageStyle.Render(stage),
		filterLabelStyle.Render("priority:"), priorityStyle.Render(priority),
		filterLabelStyle.Render("lines:"), filterLabelStyle.Render(strconv.Itoa(total)))
}

func loadTree(projectID int64, depth int) tea.Cmd {
	return func() tea.Msg {
		if Service == nil {
			return treeLoadedMsg{err: fmt.Errorf("hierarchy service not initialized")}
		}
		h, err := Service.ProjectHierarchy(context.Background(), projectID, depth, core.HierarchyFilter{})
		if err != nil {
			return treeLoadedMsg{err: fmt.Errorf("loading project %d: %w", projectID, err)}
		}
		return treeLoadedMsg{hierarchy: h}
	}
}

var treeDepth int

var treeCmd = &cobra.Command{
	Use:   "tree <project-id>",
	Short: "Browse a project hierarchy interactively",
	Long: `Open a terminal view of a project's task tree.

Cycle the stage filter with s and the priority filter with p; matching tasks
are shown with the ancestors that lead to them. Change the detail level with
v, scroll with the arrow keys, refresh with r, quit with q.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("hierarchy service not initialized")
		}
		id, err := parseID(args[0], "project")
		if err != nil {
			return err
		}
		presenter := Presenter
		if presenter == nil {
			presenter = core.NewTreePresenter(currentConfig().Odoo.BaseURL())
		}

		p := tea.NewProgram(newTreeModel(id, treeDepth, presenter), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	treeCmd.Flags().IntVar(&treeDepth, "depth", 0, "Maximum depth below the project (default: hierarchy.max_depth)")
	treeCmd.ValidArgsFunction = completeRecentRoots(models.HierarchyProject)
	rootCmd.AddCommand(treeCmd)
}
