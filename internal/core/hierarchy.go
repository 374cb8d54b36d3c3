package core

import (
	"context"
	"errors"

	"github.com/edwh/otk/pkg/models"
)

// Build limits applied when the configuration leaves them unset.
const (
	DefaultMaxDepth = 3
	DefaultMaxNodes = 2000
)

// HierarchyBuilder assembles task trees from repeated parent_id queries
// against a TaskStore. Queries are issued strictly one after another.
type HierarchyBuilder interface {
	BuildTaskHierarchy(ctx context.Context, taskID int64, maxDepth int) (*models.Hierarchy, error)
	BuildProjectHierarchy(ctx context.Context, projectID int64, maxDepth int) (*models.Hierarchy, error)
	BuildChildren(ctx context.Context, taskID int64, maxDepth, depth int) ([]*models.HierarchyNode, error)
}

type hierarchyBuilder struct {
	store    TaskStore
	maxNodes int
	events   EventLogger
}

// NewHierarchyBuilder creates a HierarchyBuilder reading from store. events
// may be nil.
func NewHierarchyBuilder(store TaskStore, cfg models.HierarchyConfig, events EventLogger) HierarchyBuilder {
	maxNodes := cfg.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &hierarchyBuilder{store: store, maxNodes: maxNodes, events: events}
}

// buildState is the per-request bookkeeping of one build. It never outlives
// the call that created it.
type buildState struct {
	placed    map[int64]bool
	nodes     int
	maxNodes  int
	truncated bool
}

func newBuildState(maxNodes int) *buildState {
	return &buildState{placed: make(map[int64]bool), maxNodes: maxNodes}
}

// admit reserves a slot for id. A task already in the tree, or any task once
// the node cap is reached, is refused.
func (s *buildState) admit(id int64) bool {
	if s.placed[id] {
		return false
	}
	if s.nodes >= s.maxNodes {
		s.truncated = true
		return false
	}
	s.placed[id] = true
	s.nodes++
	return true
}

func normalizeDepth(maxDepth int) int {
	if maxDepth <= 0 {
		return DefaultMaxDepth
	}
	return maxDepth
}

// BuildTaskHierarchy builds the tree below taskID along with its parent chain.
func (b *hierarchyBuilder) BuildTaskHierarchy(ctx context.Context, taskID int64, maxDepth int) (*models.Hierarchy, error) {
	maxDepth = normalizeDepth(maxDepth)

	task, err := b.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, asRemote("loading task", err)
	}

	ancestors, err := b.ancestorChain(ctx, task)
	if err != nil {
		return nil, err
	}

	state := newBuildState(b.maxNodes)
	state.admit(task.ID)
	// Ancestors are never expanded below the root, even if corrupt data
	// lists one of them as a descendant.
	for _, a := range ancestors {
		state.placed[a.ID] = true
	}

	root := models.NewTaskNode(task)
	root.Children, err = b.expand(ctx, state, task, maxDepth, 0)
	if err != nil {
		return nil, err
	}

	h := &models.Hierarchy{
		Type:      models.HierarchyTask,
		Root:      root,
		Ancestors: ancestors,
		NodeCount: state.nodes,
		Truncated: state.truncated,
	}
	b.logBuild(h, taskID, maxDepth)
	return h, nil
}

// BuildProjectHierarchy builds one subtree per main task of the project.
func (b *hierarchyBuilder) BuildProjectHierarchy(ctx context.Context, projectID int64, maxDepth int) (*models.Hierarchy, error) {
	maxDepth = normalizeDepth(maxDepth)

	project, err := b.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, asRemote("loading project", err)
	}

	tasks, err := b.store.FindTasks(ctx, Eq(FieldProjectID, projectID))
	if err != nil {
		return nil, asRemote("listing project tasks", err)
	}

	var mainTasks []*models.Task
	for _, t := range tasks {
		if !t.HasParent() {
			mainTasks = append(mainTasks, t)
		}
	}

	state := newBuildState(b.maxNodes)
	root := models.NewProjectNode(project)
	root.Children = make([]*models.HierarchyNode, 0, len(mainTasks))
	for _, t := range mainTasks {
		if !state.admit(t.ID) {
			if state.truncated {
				break
			}
			continue
		}
		node := models.NewTaskNode(t)
		node.Children, err = b.expand(ctx, state, t, maxDepth, 1)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, node)
	}

	h := &models.Hierarchy{
		Type:          models.HierarchyProject,
		Root:          root,
		TotalTasks:    len(tasks),
		MainTaskCount: len(mainTasks),
		NodeCount:     state.nodes,
		Truncated:     state.truncated,
	}
	b.logBuild(h, projectID, maxDepth)
	return h, nil
}

// BuildChildren returns the subtrees below taskID. When depth has reached
// maxDepth the result is empty and no query is issued.
func (b *hierarchyBuilder) BuildChildren(ctx context.Context, taskID int64, maxDepth, depth int) ([]*models.HierarchyNode, error) {
	state := newBuildState(b.maxNodes)
	state.placed[taskID] = true
	return b.expand(ctx, state, &models.Task{ID: taskID}, normalizeDepth(maxDepth), depth)
}

func (b *hierarchyBuilder) expand(ctx context.Context, state *buildState, parent *models.Task, maxDepth, depth int) ([]*models.HierarchyNode, error) {
	if depth >= maxDepth {
		return []*models.HierarchyNode{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kids, err := b.children(ctx, parent)
	if err != nil {
		return nil, err
	}

	nodes := make([]*models.HierarchyNode, 0, len(kids))
	for _, kid := range kids {
		if !state.admit(kid.ID) {
			if state.truncated {
				break
			}
			continue
		}
		node := models.NewTaskNode(kid)
		node.Children, err = b.expand(ctx, state, kid, maxDepth, depth+1)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// children finds the direct subtasks of parent. The parent_id query is
// authoritative; the child IDs carried on the parent record are only used
// when that query comes back empty, for schemas where parent_id is not
// searchable.
func (b *hierarchyBuilder) children(ctx context.Context, parent *models.Task) ([]*models.Task, error) {
	kids, err := b.store.FindTasks(ctx, Eq(FieldParentID, parent.ID))
	if err != nil {
		return nil, asRemote("listing subtasks", err)
	}
	if len(kids) > 0 || len(parent.ChildIDs) == 0 {
		return kids, nil
	}
	kids, err = b.store.FindTasks(ctx, In(FieldID, parent.ChildIDs))
	if err != nil {
		return nil, asRemote("listing subtasks by child field", err)
	}
	return kids, nil
}

// ancestorChain walks parent_id upward from task and returns the chain
// root-most first. The walk stops at a main task, a missing parent, or a
// revisited ID.
func (b *hierarchyBuilder) ancestorChain(ctx context.Context, task *models.Task) ([]*models.Task, error) {
	visited := map[int64]bool{task.ID: true}
	var chain []*models.Task

	current := task
	for current.HasParent() && len(chain) < b.maxNodes {
		pid := current.ParentID
		if visited[pid] {
			break
		}
		visited[pid] = true

		parent, err := b.store.GetTask(ctx, pid)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
			}
			return nil, asRemote("loading parent chain", err)
		}
		chain = append(chain, parent)
		current = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (b *hierarchyBuilder) logBuild(h *models.Hierarchy, rootID int64, maxDepth int) {
	if b.events == nil {
		return
	}
	_ = b.events.LogEvent(EventHierarchyBuilt, map[string]any{
		"type":      string(h.Type),
		"root_id":   rootID,
		"max_depth": maxDepth,
		"nodes":     h.NodeCount,
		"truncated": h.Truncated,
	})
}
