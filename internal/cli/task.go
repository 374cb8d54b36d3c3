package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Reorganize tasks (move, promote, search)",
	Long: `Change where tasks sit in the hierarchy.

Move tasks under a new parent, promote subtasks to main tasks, and search
tasks by name to find their IDs. Moves that would make a task its own
ancestor are refused before anything is written.`,
}

var (
	taskMoveParent      int64
	taskMoveProject     int64
	taskMoveInteractive bool
)

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id>...",
	Short: "Move one or more tasks under a new parent",
	Long: `Make the given tasks subtasks of --parent. With --project the tasks are
also moved to that project.

Several IDs are processed one by one; a failure on one task does not stop
the others. Use --interactive to pick the task and its new parent from a
search instead of typing IDs.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if taskMoveInteractive {
			return cobra.MaximumNArgs(1)(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("task service not initialized")
		}
		ctx := commandContext(cmd)
		out := cmd.OutOrStdout()

		if taskMoveInteractive {
			term := ""
			if len(args) == 1 {
				term = args[0]
			}
			return runInteractiveMove(ctx, out, term)
		}

		if taskMoveParent <= 0 {
			return fmt.Errorf("--parent is required and must be a positive task ID")
		}
		ids := make([]int64, len(args))
		for i, arg := range args {
			id, err := parseID(arg, "task")
			if err != nil {
				return err
			}
			ids[i] = id
		}

		if len(ids) == 1 {
			res, err := Service.Move(ctx, ids[0], taskMoveParent, taskMoveProject)
			if err != nil {
				return fmt.Errorf("moving task %d: %w", ids[0], err)
			}
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Moved task %d (%s) under %d (%s)",
				res.TaskID, res.TaskName, res.NewParentID, res.NewParentName)))
			if res.ProjectName != "" {
				fmt.Fprintf(out, "  Project: %s\n", res.ProjectName)
			}
			return nil
		}

		res, err := Service.MoveMany(ctx, ids, taskMoveParent, taskMoveProject)
		if err != nil {
			return fmt.Errorf("moving tasks: %w", err)
		}
		fmt.Fprintf(out, "Moved %d of %d tasks under %d (%s)\n", res.MovedCount, len(ids), res.NewParentID, res.NewParentName)
		for _, msg := range res.Errors {
			fmt.Fprintln(out, failureStyle.Render("  ✗ "+msg))
		}
		if res.FailedCount > 0 {
			return fmt.Errorf("%d of %d tasks could not be moved", res.FailedCount, len(ids))
		}
		return nil
	},
}

var taskPromoteCmd = &cobra.Command{
	Use:   "promote <task-id>",
	Short: "Turn a subtask into a main task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("task service not initialized")
		}
		id, err := parseID(args[0], "task")
		if err != nil {
			return err
		}

		res, err := Service.Promote(commandContext(cmd), id)
		if err != nil {
			return fmt.Errorf("promoting task %d: %w", id, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Promoted task %d (%s) to a main task (was under %d %s)",
			res.TaskID, res.TaskName, res.FormerParentID, res.FormerParentName)))
		return nil
	},
}

var taskSearchLimit int

var taskSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Find tasks by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Service == nil {
			return fmt.Errorf("task service not initialized")
		}

		tasks, err := Service.SearchTasks(commandContext(cmd), args[0], taskSearchLimit)
		if err != nil {
			return fmt.Errorf("searching tasks: %w", err)
		}
		if len(tasks) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No tasks match %q.\n", args[0])
			return nil
		}
		printTaskTable(cmd.OutOrStdout(), sortForPicker(tasks), false)
		return nil
	},
}

func init() {
	taskMoveCmd.Flags().Int64Var(&taskMoveParent, "parent", 0, "ID of the new parent task")
	taskMoveCmd.Flags().Int64Var(&taskMoveProject, "project", 0, "Also move the tasks to this project")
	taskMoveCmd.Flags().BoolVarP(&taskMoveInteractive, "interactive", "i", false, "Pick the task and new parent from a name search")

	taskSearchCmd.Flags().IntVar(&taskSearchLimit, "limit", 0, "Maximum number of results (default 50)")

	taskCmd.AddCommand(taskMoveCmd)
	taskCmd.AddCommand(taskPromoteCmd)
	taskCmd.AddCommand(taskSearchCmd)
	rootCmd.AddCommand(taskCmd)
}
