package models

// Priority levels as stored in the remote priority selection field.
const (
	PriorityNormal   = 0
	PriorityHigh     = 1
	PriorityUrgent   = 2
	PriorityCritical = 3
)

// PriorityInfo is the display form of a task priority ordinal.
type PriorityInfo struct {
	Level int    `json:"level"`
	Name  string `json:"name"`
	Stars string `json:"stars"`
}

var priorityTable = [...]PriorityInfo{
	{Level: PriorityNormal, Name: "Normal", Stars: "☆☆☆"},
	{Level: PriorityHigh, Name: "High", Stars: "★☆☆"},
	{Level: PriorityUrgent, Name: "Urgent", Stars: "★★☆"},
	{Level: PriorityCritical, Name: "Critical", Stars: "★★★"},
}

// PriorityFor maps a raw ordinal onto the three-star scale. Values below zero
// are treated as Normal and anything at or above three as Critical.
func PriorityFor(level int) PriorityInfo {
	if level < PriorityNormal {
		level = PriorityNormal
	}
	if level > PriorityCritical {
		level = PriorityCritical
	}
	return priorityTable[level]
}
