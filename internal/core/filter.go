package core

import (
	"strings"

	"github.com/edwh/otk/pkg/models"
)

// HierarchyFilter selects task nodes by stage and priority. An empty list
// places no constraint on that dimension. Stages compare against the cleaned
// stage name, case-insensitively.
type HierarchyFilter struct {
	Stages     []string `json:"stages,omitempty"`
	Priorities []int    `json:"priorities,omitempty"`
}

// IsZero reports whether the filter keeps every node.
func (f HierarchyFilter) IsZero() bool {
	return len(f.Stages) == 0 && len(f.Priorities) == 0
}

// Matches reports whether t satisfies both dimensions of the filter.
func (f HierarchyFilter) Matches(t *models.Task) bool {
	if t == nil {
		return false
	}
	if len(f.Stages) > 0 {
		stage := CleanStageName(t.StageName)
		found := false
		for _, s := range f.Stages {
			if strings.EqualFold(stage, CleanStageName(s)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Priorities) > 0 {
		level := models.PriorityFor(t.Priority).Level
		found := false
		for _, p := range f.Priorities {
			if models.PriorityFor(p).Level == level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FilterHierarchy returns a pruned copy of root. A task node survives when it
// or one of its descendants matches f, so matches keep their ancestors. A
// project root is always kept. The input tree is not modified; nil is returned
// when no task in the tree matches.
func FilterHierarchy(root *models.HierarchyNode, f HierarchyFilter) *models.HierarchyNode {
	if root == nil {
		return nil
	}
	if f.IsZero() {
		return cloneNode(root)
	}
	out := prune(root, f)
	if out == nil && root.Type == models.NodeProject {
		out = shallowCopy(root)
	}
	return out
}

func prune(n *models.HierarchyNode, f HierarchyFilter) *models.HierarchyNode {
	var kept []*models.HierarchyNode
	for _, c := range n.Children {
		if pc := prune(c, f); pc != nil {
			kept = append(kept, pc)
		}
	}

	self := n.Type == models.NodeTask && f.Matches(n.Task)
	if !self && len(kept) == 0 {
		return nil
	}
	cp := shallowCopy(n)
	cp.Children = kept
	if cp.Children == nil {
		cp.Children = []*models.HierarchyNode{}
	}
	return cp
}

func shallowCopy(n *models.HierarchyNode) *models.HierarchyNode {
	cp := *n
	cp.Children = []*models.HierarchyNode{}
	return &cp
}

func cloneNode(n *models.HierarchyNode) *models.HierarchyNode {
	cp := shallowCopy(n)
	for _, c := range n.Children {
		cp.Children = append(cp.Children, cloneNode(c))
	}
	return cp
}

// FilterTree applies f to a whole Hierarchy, keeping its envelope. The node
// count is recomputed for the pruned tree. A zero filter returns h itself.
func FilterTree(h *models.Hierarchy, f HierarchyFilter) *models.Hierarchy {
	if h == nil || f.IsZero() {
		return h
	}
	out := *h
	out.Root = FilterHierarchy(h.Root, f)
	if out.Root == nil {
		// A task root with no match anywhere keeps the root alone.
		out.Root = shallowCopy(h.Root)
	}
	out.NodeCount = out.Root.Count()
	if out.Root.Type == models.NodeProject {
		out.NodeCount--
	}
	return &out
}
