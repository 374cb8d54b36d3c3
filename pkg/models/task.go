package models

// Task is the typed projection of one row of the remote project.task table.
// Every field is optional on the remote side; the adapter fills defaults so
// callers never test for field presence.
type Task struct {
	ID          int64    `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	ParentID    int64    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	ParentName  string   `json:"parent_name,omitempty" yaml:"parent_name,omitempty"`
	ProjectID   int64    `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	ProjectName string   `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	StageName   string   `json:"stage,omitempty" yaml:"stage,omitempty"`
	Priority    int      `json:"priority" yaml:"priority"`
	State       string   `json:"state,omitempty" yaml:"state,omitempty"`
	KanbanState string   `json:"kanban_state,omitempty" yaml:"kanban_state,omitempty"`
	Deadline    string   `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	UserIDs     []int64  `json:"user_ids,omitempty" yaml:"user_ids,omitempty"`
	Assignees   []string `json:"assignees,omitempty" yaml:"assignees,omitempty"`
	BlockedBy   []int64  `json:"blocked_by,omitempty" yaml:"blocked_by,omitempty"`
	Blocking    []int64  `json:"blocking,omitempty" yaml:"blocking,omitempty"`
	ChildIDs    []int64  `json:"child_ids,omitempty" yaml:"child_ids,omitempty"`
}

// HasParent reports whether the task is a subtask.
func (t *Task) HasParent() bool {
	return t != nil && t.ParentID > 0
}

// Project is the typed projection of one row of the remote project.project table.
type Project struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	PartnerName string `json:"partner,omitempty" yaml:"partner,omitempty"`
	ManagerName string `json:"manager,omitempty" yaml:"manager,omitempty"`
	StageName   string `json:"stage,omitempty" yaml:"stage,omitempty"`
}
