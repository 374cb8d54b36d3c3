package models

// NodeType distinguishes the record kind behind a HierarchyNode.
type NodeType string

const (
	NodeTask    NodeType = "task"
	NodeProject NodeType = "project"
)

// HierarchyNode is one node of a task tree built for a single request.
// Exactly one of Task and Project is set, matching Type.
type HierarchyNode struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Type     NodeType         `json:"type"`
	Task     *Task            `json:"task,omitempty"`
	Project  *Project         `json:"project,omitempty"`
	Children []*HierarchyNode `json:"children,omitempty"`
}

// NewTaskNode wraps a task in a childless node.
func NewTaskNode(t *Task) *HierarchyNode {
	return &HierarchyNode{ID: t.ID, Name: t.Name, Type: NodeTask, Task: t}
}

// NewProjectNode wraps a project in a childless node.
func NewProjectNode(p *Project) *HierarchyNode {
	return &HierarchyNode{ID: p.ID, Name: p.Name, Type: NodeProject, Project: p}
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (n *HierarchyNode) Walk(fn func(node *HierarchyNode, depth int) bool) {
	n.walk(fn, 0)
}

func (n *HierarchyNode) walk(fn func(*HierarchyNode, int) bool, depth int) {
	if n == nil {
		return
	}
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *HierarchyNode) Count() int {
	total := 0
	n.Walk(func(*HierarchyNode, int) bool {
		total++
		return true
	})
	return total
}

// HierarchyType identifies what a Hierarchy was rooted at.
type HierarchyType string

const (
	HierarchyTask    HierarchyType = "task"
	HierarchyProject HierarchyType = "project"
)

// Hierarchy is the result of one build request.
type Hierarchy struct {
	Type HierarchyType  `json:"type"`
	Root *HierarchyNode `json:"root"`

	// Ancestors is the parent chain of a task root, root-most first.
	Ancestors []*Task `json:"ancestors,omitempty"`

	// TotalTasks and MainTaskCount are set for project hierarchies.
	TotalTasks    int `json:"total_tasks,omitempty"`
	MainTaskCount int `json:"main_task_count,omitempty"`

	NodeCount int  `json:"node_count"`
	Truncated bool `json:"truncated,omitempty"`
}

// MainTasks returns the top-level task nodes of a project hierarchy.
func (h *Hierarchy) MainTasks() []*HierarchyNode {
	if h == nil || h.Root == nil || h.Type != HierarchyProject {
		return nil
	}
	return h.Root.Children
}
