package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/edwh/otk/pkg/models"
)

// MoveOutcome describes a completed move, for confirmation messages.
type MoveOutcome struct {
	TaskID        int64  `json:"task_id"`
	TaskName      string `json:"subtask_name"`
	NewParentID   int64  `json:"new_parent_id"`
	NewParentName string `json:"new_parent_name"`
	ProjectID     int64  `json:"project_id,omitempty"`
	ProjectName   string `json:"project_name,omitempty"`
}

// PromoteOutcome describes a task that became a main task.
type PromoteOutcome struct {
	TaskID           int64  `json:"task_id"`
	TaskName         string `json:"task_name"`
	FormerParentID   int64  `json:"former_parent_id"`
	FormerParentName string `json:"former_parent_name"`
}

// BatchItem is the result for one ID of a MoveMany call.
type BatchItem struct {
	TaskID  int64        `json:"task_id"`
	Moved   bool         `json:"moved"`
	Error   string       `json:"error,omitempty"`
	Outcome *MoveOutcome `json:"outcome,omitempty"`
}

// BatchOutcome aggregates a MoveMany call. Errors holds one message per
// failed item, in input order.
type BatchOutcome struct {
	NewParentID   int64       `json:"new_parent_id"`
	NewParentName string      `json:"new_parent_name"`
	MovedCount    int         `json:"moved_count"`
	FailedCount   int         `json:"failed_count"`
	Errors        []string    `json:"errors"`
	Items         []BatchItem `json:"items"`
}

func (o *BatchOutcome) fail(taskID int64, err error) {
	msg := fmt.Sprintf("task %d: %s", taskID, itemCause(taskID, err))
	o.FailedCount++
	o.Errors = append(o.Errors, msg)
	o.Items = append(o.Items, BatchItem{TaskID: taskID, Error: msg})
}

// itemCause renders err without repeating the task ID the batch message
// already carries.
func itemCause(taskID int64, err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var nf *NotFoundError
	if errors.As(err, &nf) && nf.ID == taskID && nf.Entity == EntityTask {
		return "not found"
	}
	return err.Error()
}

// ReparentEngine changes task parents without ever creating a cycle. Every
// precondition is checked before the single write of an operation; a failed
// check leaves the remote store untouched.
//
// The check and the write are not atomic: two callers reparenting
// overlapping subtrees at the same time can still race.
type ReparentEngine interface {
	Move(ctx context.Context, taskID, newParentID, targetProjectID int64) (*MoveOutcome, error)
	Promote(ctx context.Context, taskID int64) (*PromoteOutcome, error)
	MoveMany(ctx context.Context, taskIDs []int64, newParentID, targetProjectID int64) (*BatchOutcome, error)
	WouldCreateCycle(ctx context.Context, subtaskID, newParentID int64) (bool, []int64, error)
}

type reparentEngine struct {
	store    TaskStore
	maxSteps int
	events   EventLogger
}

// NewReparentEngine creates a ReparentEngine writing through store. The
// upward cycle walk is bounded by cfg.MaxNodes steps. events may be nil.
func NewReparentEngine(store TaskStore, cfg models.HierarchyConfig, events EventLogger) ReparentEngine {
	maxSteps := cfg.MaxNodes
	if maxSteps <= 0 {
		maxSteps = DefaultMaxNodes
	}
	return &reparentEngine{store: store, maxSteps: maxSteps, events: events}
}

// Move sets newParentID as the parent of taskID and, when targetProjectID is
// non-zero, moves the task to that project in the same write.
func (r *reparentEngine) Move(ctx context.Context, taskID, newParentID, targetProjectID int64) (*MoveOutcome, error) {
	out, err := r.move(ctx, taskID, newParentID, targetProjectID)
	if err != nil {
		r.logFailure(taskID, newParentID, err)
		return nil, err
	}
	r.logEvent(EventTaskMoved, map[string]any{
		"task_id":       taskID,
		"new_parent_id": newParentID,
		"project_id":    targetProjectID,
	})
	return out, nil
}

func (r *reparentEngine) move(ctx context.Context, taskID, newParentID, targetProjectID int64) (*MoveOutcome, error) {
	if taskID <= 0 {
		return nil, &ValidationError{Reason: "task ID is required"}
	}
	if newParentID <= 0 {
		return nil, &ValidationError{TaskID: taskID, Reason: "new parent ID is required"}
	}
	if targetProjectID < 0 {
		return nil, &ValidationError{TaskID: taskID, Reason: "project ID must be positive"}
	}
	if taskID == newParentID {
		return nil, &ValidationError{TaskID: taskID, Reason: "a task cannot be its own parent"}
	}

	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, asRemote("loading task", err)
	}
	parent, err := r.getParent(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	projectName, err := r.projectName(ctx, targetProjectID)
	if err != nil {
		return nil, err
	}

	cyclic, path, err := r.climb(ctx, taskID, parent)
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, &CycleError{TaskID: taskID, NewParentID: newParentID, Path: path}
	}

	fields := map[string]any{FieldParentID: newParentID}
	if targetProjectID > 0 {
		fields[FieldProjectID] = targetProjectID
	}
	if err := r.write(ctx, taskID, fields); err != nil {
		return nil, err
	}

	return &MoveOutcome{
		TaskID:        taskID,
		TaskName:      task.Name,
		NewParentID:   newParentID,
		NewParentName: parent.Name,
		ProjectID:     targetProjectID,
		ProjectName:   projectName,
	}, nil
}

// Promote clears the parent of taskID, turning it into a main task.
func (r *reparentEngine) Promote(ctx context.Context, taskID int64) (*PromoteOutcome, error) {
	out, err := r.promote(ctx, taskID)
	if err != nil {
		r.logFailure(taskID, 0, err)
		return nil, err
	}
	r.logEvent(EventTaskPromoted, map[string]any{
		"task_id":          taskID,
		"former_parent_id": out.FormerParentID,
	})
	return out, nil
}

func (r *reparentEngine) promote(ctx context.Context, taskID int64) (*PromoteOutcome, error) {
	if taskID <= 0 {
		return nil, &ValidationError{Reason: "task ID is required"}
	}

	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, asRemote("loading task", err)
	}
	if !task.HasParent() {
		return nil, &ValidationError{TaskID: taskID, Reason: "task is already a main task (no parent)"}
	}

	formerName := task.ParentName
	if formerName == "" {
		formerName = fmt.Sprintf("Task %d", task.ParentID)
	}

	if err := r.write(ctx, taskID, map[string]any{FieldParentID: false}); err != nil {
		return nil, err
	}

	return &PromoteOutcome{
		TaskID:           taskID,
		TaskName:         task.Name,
		FormerParentID:   task.ParentID,
		FormerParentName: formerName,
	}, nil
}

// MoveMany moves each task independently. The new parent and project are
// validated once; after that a failing item is recorded and the batch goes on.
func (r *reparentEngine) MoveMany(ctx context.Context, taskIDs []int64, newParentID, targetProjectID int64) (*BatchOutcome, error) {
	if newParentID <= 0 {
		return nil, &ValidationError{Reason: "new parent ID is required"}
	}
	parent, err := r.getParent(ctx, newParentID)
	if err != nil {
		return nil, err
	}
	if _, err := r.projectName(ctx, targetProjectID); err != nil {
		return nil, err
	}

	out := &BatchOutcome{
		NewParentID:   newParentID,
		NewParentName: parent.Name,
		Errors:        []string{},
		Items:         make([]BatchItem, 0, len(taskIDs)),
	}

	for i, id := range taskIDs {
		if err := ctx.Err(); err != nil {
			for _, rest := range taskIDs[i:] {
				out.fail(rest, err)
			}
			break
		}

		res, err := r.Move(ctx, id, newParentID, targetProjectID)
		if err != nil {
			out.fail(id, err)
			continue
		}
		out.MovedCount++
		out.Items = append(out.Items, BatchItem{TaskID: id, Moved: true, Outcome: res})
	}

	r.logEvent(EventBatchMoved, map[string]any{
		"new_parent_id": newParentID,
		"moved":         out.MovedCount,
		"failed":        out.FailedCount,
	})
	return out, nil
}

// WouldCreateCycle reports whether placing subtaskID under newParentID would
// make subtaskID its own ancestor, and if so the chain that proves it.
func (r *reparentEngine) WouldCreateCycle(ctx context.Context, subtaskID, newParentID int64) (bool, []int64, error) {
	if subtaskID == newParentID {
		return true, []int64{subtaskID}, nil
	}
	parent, err := r.store.GetTask(ctx, newParentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, asRemote("checking ancestors", err)
	}
	return r.climb(ctx, subtaskID, parent)
}

// climb walks parent_id upward from start looking for subtaskID. A revisited
// ID or a missing record ends the walk without a cycle, since such a chain
// cannot reach subtaskID. A chain longer than maxSteps is refused outright.
func (r *reparentEngine) climb(ctx context.Context, subtaskID int64, start *models.Task) (bool, []int64, error) {
	path := []int64{start.ID}
	visited := map[int64]bool{start.ID: true}

	current := start
	for steps := 0; current.HasParent(); steps++ {
		pid := current.ParentID
		if pid == subtaskID {
			return true, append(path, pid), nil
		}
		if visited[pid] {
			return false, nil, nil
		}
		if steps >= r.maxSteps {
			return false, nil, &ValidationError{
				TaskID: subtaskID,
				Reason: fmt.Sprintf("ancestor chain of task %d exceeds %d steps; refusing move", start.ID, r.maxSteps),
			}
		}
		visited[pid] = true

		next, err := r.store.GetTask(ctx, pid)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return false, nil, nil
			}
			return false, nil, asRemote("checking ancestors", err)
		}
		path = append(path, pid)
		current = next
	}
	return false, nil, nil
}

func (r *reparentEngine) getParent(ctx context.Context, id int64) (*models.Task, error) {
	parent, err := r.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Entity: EntityParent, ID: id}
		}
		return nil, asRemote("loading parent task", err)
	}
	return parent, nil
}

func (r *reparentEngine) projectName(ctx context.Context, projectID int64) (string, error) {
	if projectID <= 0 {
		return "", nil
	}
	project, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return "", asRemote("loading project", err)
	}
	return project.Name, nil
}

func (r *reparentEngine) write(ctx context.Context, taskID int64, fields map[string]any) error {
	ok, err := r.store.UpdateTask(ctx, taskID, fields)
	if err != nil {
		return asRemote("writing task", err)
	}
	if !ok {
		return &RemoteError{Op: "writing task", Err: errors.New("write operation failed")}
	}
	return nil
}

func (r *reparentEngine) logFailure(taskID, newParentID int64, err error) {
	r.logEvent(EventMoveFailed, map[string]any{
		"task_id":       taskID,
		"new_parent_id": newParentID,
		"kind":          ErrorKind(err),
		"error":         err.Error(),
	})
}

func (r *reparentEngine) logEvent(eventType string, data map[string]any) {
	if r.events == nil {
		return
	}
	_ = r.events.LogEvent(eventType, data)
}
