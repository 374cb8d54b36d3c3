package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

// pickerInput is where the interactive picker reads selections from.
var pickerInput io.Reader = os.Stdin

// runInteractiveMove asks for the task to move and its new parent by name,
// then moves it. Answering "root" for the parent promotes the task instead.
func runInteractiveMove(ctx context.Context, out io.Writer, term string) error {
	reader := bufio.NewReader(pickerInput)

	var err error
	if strings.TrimSpace(term) == "" {
		if term, err = prompt(reader, out, "Search task to move: "); err != nil {
			return err
		}
	}
	task, err := pickTask(ctx, reader, out, term)
	if err != nil {
		return err
	}

	parentTerm, err := prompt(reader, out, fmt.Sprintf("Search new parent for %q (or 'root' to promote): ", task.Name))
	if err != nil {
		return err
	}
	if parentTerm == "root" {
		res, err := Service.Promote(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("promoting task %d: %w", task.ID, err)
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Promoted task %d (%s) to a main task", res.TaskID, res.TaskName)))
		return nil
	}

	parent, err := pickTask(ctx, reader, out, parentTerm)
	if err != nil {
		return err
	}
	res, err := Service.Move(ctx, task.ID, parent.ID, taskMoveProject)
	if err != nil {
		return fmt.Errorf("moving task %d: %w", task.ID, err)
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Moved task %d (%s) under %d (%s)",
		res.TaskID, res.TaskName, res.NewParentID, res.NewParentName)))
	return nil
}

// pickTask shows the tasks matching term and returns the selected one.
// Returns an error if nothing matches or the user cancels.
func pickTask(ctx context.Context, reader *bufio.Reader, out io.Writer, term string) (*models.Task, error) {
	tasks, err := Service.SearchTasks(ctx, term, 0)
	if err != nil {
		return nil, fmt.Errorf("searching tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks match %q", term)
	}
	tasks = sortForPicker(tasks)

	fmt.Fprintln(out)
	printTaskTable(out, tasks, true)
	fmt.Fprintln(out)

	for {
		input, err := prompt(reader, out, fmt.Sprintf("Select task [1-%d] (or 'q' to cancel): ", len(tasks)))
		if err != nil {
			return nil, err
		}
		if input == "q" || input == "Q" {
			return nil, fmt.Errorf("cancelled")
		}

		num, err := strconv.Atoi(input)
		if err != nil || num < 1 || num > len(tasks) {
			fmt.Fprintf(out, "  Invalid selection. Enter a number between 1 and %d.\n", len(tasks))
			continue
		}
		return tasks[num-1], nil
	}
}

func prompt(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	input, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// sortForPicker orders tasks by project, main tasks before subtasks, then ID.
func sortForPicker(tasks []*models.Task) []*models.Task {
	sorted := append([]*models.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ProjectName != b.ProjectName {
			return a.ProjectName < b.ProjectName
		}
		if a.HasParent() != b.HasParent() {
			return !a.HasParent()
		}
		return a.ID < b.ID
	})
	return sorted
}

func printTaskTable(out io.Writer, tasks []*models.Task, numbered bool) {
	row := func(n, id, parent, project, stage, name string) {
		if numbered {
			fmt.Fprintf(out, "  %-4s %-8s %-8s %-20s %-14s %s\n", n, id, parent, project, stage, name)
			return
		}
		fmt.Fprintf(out, "  %-8s %-8s %-20s %-14s %s\n", id, parent, project, stage, name)
	}

	row("#", "ID", "PARENT", "PROJECT", "STAGE", "NAME")
	row("---", "--", "------", "-------", "-----", "----")
	for i, t := range tasks {
		parent := "-"
		if t.HasParent() {
			parent = strconv.FormatInt(t.ParentID, 10)
		}
		row(strconv.Itoa(i+1), strconv.FormatInt(t.ID, 10), parent,
			truncate(orDash(t.ProjectName), 20), truncate(core.CleanStageName(t.StageName), 14), t.Name)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
