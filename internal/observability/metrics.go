package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"

	"github.com/edwh/otk/internal/core"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	HierarchiesBuilt  int            `json:"hierarchies_built"`
	TruncatedBuilds   int            `json:"truncated_builds"`
	TasksMoved        int            `json:"tasks_moved"`
	TasksPromoted     int            `json:"tasks_promoted"`
	MoveFailures      int            `json:"move_failures"`
	FailuresByKind    map[string]int `json:"failures_by_kind"`
	BatchMoves        int            `json:"batch_moves"`
	BuildsByType      map[string]int `json:"builds_by_type"`
	AverageBuildNodes float64        `json:"average_build_nodes"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
// Moves made inside a batch are counted individually as task.moved events.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		FailuresByKind: make(map[string]int),
		BuildsByType:   make(map[string]int),
	}
	m.EventCount = len(events)

	var nodes int
	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case core.EventHierarchyBuilt:
			m.HierarchiesBuilt++
			nodes += cast.ToInt(event.Data["nodes"])
			if typ, ok := event.Data["type"].(string); ok {
				m.BuildsByType[typ]++
			}
			if cast.ToBool(event.Data["truncated"]) {
				m.TruncatedBuilds++
			}
		case core.EventTaskMoved:
			m.TasksMoved++
		case core.EventTaskPromoted:
			m.TasksPromoted++
		case core.EventMoveFailed:
			m.MoveFailures++
			kind, _ := event.Data["kind"].(string)
			if kind == "" {
				kind = core.KindInternal
			}
			m.FailuresByKind[kind]++
		case core.EventBatchMoved:
			m.BatchMoves++
		}
	}

	if m.HierarchiesBuilt > 0 {
		m.AverageBuildNodes = float64(nodes) / float64(m.HierarchiesBuilt)
	}
	return m, nil
}

// ParseSince turns a window such as "7d" or "24h" into the instant that far
// before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || num < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
