package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/edwh/otk/pkg/models"
)

// DefaultSearchLimit caps SearchTasks when no limit is given.
const DefaultSearchLimit = 50

// Service runs hierarchy and reparent operations, each against a store
// handle opened for that call alone.
type Service interface {
	TaskHierarchy(ctx context.Context, taskID int64, maxDepth int, f HierarchyFilter) (*models.Hierarchy, error)
	ProjectHierarchy(ctx context.Context, projectID int64, maxDepth int, f HierarchyFilter) (*models.Hierarchy, error)
	Move(ctx context.Context, taskID, newParentID, targetProjectID int64) (*MoveOutcome, error)
	Promote(ctx context.Context, taskID int64) (*PromoteOutcome, error)
	MoveMany(ctx context.Context, taskIDs []int64, newParentID, targetProjectID int64) (*BatchOutcome, error)
	SearchTasks(ctx context.Context, term string, limit int) ([]*models.Task, error)
}

type service struct {
	open   StoreOpener
	cfg    models.HierarchyConfig
	events EventLogger
}

// NewService creates a Service. events may be nil.
func NewService(open StoreOpener, cfg models.HierarchyConfig, events EventLogger) Service {
	return &service{open: open, cfg: cfg, events: events}
}

// depth resolves a requested depth; zero or less means the configured default.
func (s *service) depth(maxDepth int) int {
	if maxDepth <= 0 {
		return s.cfg.MaxDepth
	}
	return maxDepth
}

func (s *service) withStore(ctx context.Context, fn func(TaskStore) error) error {
	store, err := s.open(ctx)
	if err != nil {
		return asRemote("opening store", err)
	}
	defer CloseStore(store)
	return fn(store)
}

// TaskHierarchy builds the tree under taskID and applies f.
func (s *service) TaskHierarchy(ctx context.Context, taskID int64, maxDepth int, f HierarchyFilter) (*models.Hierarchy, error) {
	if taskID <= 0 {
		return nil, &ValidationError{Reason: "task ID is required"}
	}
	var h *models.Hierarchy
	err := s.withStore(ctx, func(store TaskStore) error {
		var err error
		h, err = NewHierarchyBuilder(store, s.cfg, s.events).BuildTaskHierarchy(ctx, taskID, s.depth(maxDepth))
		return err
	})
	if err != nil {
		return nil, err
	}
	return FilterTree(h, f), nil
}

// ProjectHierarchy builds the tree of projectID and applies f.
func (s *service) ProjectHierarchy(ctx context.Context, projectID int64, maxDepth int, f HierarchyFilter) (*models.Hierarchy, error) {
	if projectID <= 0 {
		return nil, &ValidationError{Reason: "project ID is required"}
	}
	var h *models.Hierarchy
	err := s.withStore(ctx, func(store TaskStore) error {
		var err error
		h, err = NewHierarchyBuilder(store, s.cfg, s.events).BuildProjectHierarchy(ctx, projectID, s.depth(maxDepth))
		return err
	})
	if err != nil {
		return nil, err
	}
	return FilterTree(h, f), nil
}

// Move reparents one task.
func (s *service) Move(ctx context.Context, taskID, newParentID, targetProjectID int64) (*MoveOutcome, error) {
	var out *MoveOutcome
	err := s.withStore(ctx, func(store TaskStore) error {
		var err error
		out, err = NewReparentEngine(store, s.cfg, s.events).Move(ctx, taskID, newParentID, targetProjectID)
		return err
	})
	return out, err
}

// Promote turns a subtask into a main task.
func (s *service) Promote(ctx context.Context, taskID int64) (*PromoteOutcome, error) {
	var out *PromoteOutcome
	err := s.withStore(ctx, func(store TaskStore) error {
		var err error
		out, err = NewReparentEngine(store, s.cfg, s.events).Promote(ctx, taskID)
		return err
	})
	return out, err
}

// MoveMany reparents several tasks under one parent.
func (s *service) MoveMany(ctx context.Context, taskIDs []int64, newParentID, targetProjectID int64) (*BatchOutcome, error) {
	var out *BatchOutcome
	err := s.withStore(ctx, func(store TaskStore) error {
		var err error
		out, err = NewReparentEngine(store, s.cfg, s.events).MoveMany(ctx, taskIDs, newParentID, targetProjectID)
		return err
	})
	return out, err
}

// SearchTasks returns up to limit tasks whose name contains term.
func (s *service) SearchTasks(ctx context.Context, term string, limit int) ([]*models.Task, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &ValidationError{Reason: "search term is required"}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var tasks []*models.Task
	err := s.withStore(ctx, func(store TaskStore) error {
		var err error
		tasks, err = store.SearchTasks(ctx, limit, ILike(FieldName, term))
		if err != nil {
			return asRemote(fmt.Sprintf("searching tasks for %q", term), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}
