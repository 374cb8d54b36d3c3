package core

// EventLogger records audit events for hierarchy builds and task mutations.
// The observability event log satisfies it; core never imports that package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types written by core services.
const (
	EventHierarchyBuilt = "hierarchy.built"
	EventTaskMoved      = "task.moved"
	EventTaskPromoted   = "task.promoted"
	EventMoveFailed     = "task.move_failed"
	EventBatchMoved     = "task.batch_moved"
)
