package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

var (
	hierarchyDepth      int
	hierarchyVerbosity  int
	hierarchyJSON       bool
	hierarchyStages     []string
	hierarchyPriorities []int
)

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy",
	Short: "Show task and project hierarchies",
	Long: `Render the parent/subtask tree of a task or a whole project.

Output is a text tree by default. Use --verbose-level to add detail lines
under each task, --json for the machine-readable document, and --stage or
--priority to keep only matching tasks (and the ancestors that lead to them).`,
}

var hierarchyTaskCmd = &cobra.Command{
	Use:   "task <task-id>",
	Short: "Show the subtask tree under a task and its parent chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("hierarchy service not initialized")
		}
		id, err := parseID(args[0], "task")
		if err != nil {
			return err
		}

		h, err := Service.TaskHierarchy(commandContext(cmd), id, hierarchyDepth, hierarchyFilter())
		if err != nil {
			return fmt.Errorf("building hierarchy of task %d: %w", id, err)
		}
		return printHierarchy(cmd, h)
	},
}

var hierarchyProjectCmd = &cobra.Command{
	Use:   "project <project-id>",
	Short: "Show all main tasks of a project and their subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("hierarchy service not initialized")
		}
		id, err := parseID(args[0], "project")
		if err != nil {
			return err
		}

		h, err := Service.ProjectHierarchy(commandContext(cmd), id, hierarchyDepth, hierarchyFilter())
		if err != nil {
			return fmt.Errorf("building hierarchy of project %d: %w", id, err)
		}
		return printHierarchy(cmd, h)
	},
}

func hierarchyFilter() core.HierarchyFilter {
	return core.HierarchyFilter{Stages: hierarchyStages, Priorities: hierarchyPriorities}
}

func printHierarchy(cmd *cobra.Command, h *models.Hierarchy) error {
	presenter := Presenter
	if presenter == nil {
		presenter = core.NewTreePresenter(currentConfig().Odoo.BaseURL())
	}

	out := cmd.OutOrStdout()
	if hierarchyJSON {
		data, err := json.MarshalIndent(presenter.RenderJSON(h), "", "  ")
		if err != nil {
			return fmt.Errorf("formatting hierarchy as JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprint(out, presenter.RenderText(h, hierarchyVerbosity))
	return nil
}

// parseID parses a positive record ID from a command argument.
func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID %q: must be a positive number", what, arg)
	}
	return id, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	flags := hierarchyCmd.PersistentFlags()
	flags.IntVar(&hierarchyDepth, "depth", 0, "Maximum depth below the root (default: hierarchy.max_depth)")
	flags.IntVarP(&hierarchyVerbosity, "verbose-level", "v", 0, "Detail lines per task, 0 to 3")
	flags.BoolVar(&hierarchyJSON, "json", false, "Output the hierarchy as JSON")
	flags.StringSliceVar(&hierarchyStages, "stage", nil, "Only show tasks in these stages (repeatable or comma separated)")
	flags.IntSliceVar(&hierarchyPriorities, "priority", nil, "Only show tasks with these priority levels, 0 to 3")

	_ = hierarchyCmd.RegisterFlagCompletionFunc("priority", completePriorities)
	hierarchyTaskCmd.ValidArgsFunction = completeRecentRoots(models.HierarchyTask)
	hierarchyProjectCmd.ValidArgsFunction = completeRecentRoots(models.HierarchyProject)

	hierarchyCmd.AddCommand(hierarchyTaskCmd)
	hierarchyCmd.AddCommand(hierarchyProjectCmd)
	rootCmd.AddCommand(hierarchyCmd)
}
