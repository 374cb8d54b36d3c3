package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cast"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire. Counts are per Window.
type AlertThresholds struct {
	Window          time.Duration
	MaxMoveFailures int
	MaxRemoteErrors int
	CycleAttempts   int
	MaxTruncated    int
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		Window:          24 * time.Hour,
		MaxMoveFailures: 10,
		MaxRemoteErrors: 3,
		CycleAttempts:   3,
		MaxTruncated:    0,
	}
}

// ThresholdsFromConfig overlays the non-zero values of cfg on the defaults.
func ThresholdsFromConfig(cfg models.AlertConfig) AlertThresholds {
	t := DefaultAlertThresholds()
	if cfg.WindowHours > 0 {
		t.Window = time.Duration(cfg.WindowHours) * time.Hour
	}
	if cfg.MaxMoveFailures > 0 {
		t.MaxMoveFailures = cfg.MaxMoveFailures
	}
	if cfg.MaxRemoteErrors > 0 {
		t.MaxRemoteErrors = cfg.MaxRemoteErrors
	}
	if cfg.CycleAttempts > 0 {
		t.CycleAttempts = cfg.CycleAttempts
	}
	if cfg.MaxTruncated > 0 {
		t.MaxTruncated = cfg.MaxTruncated
	}
	return t
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate reads the events of the current window and checks every condition.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	since := now.Add(-ae.thresholds.Window)

	failures, err := ae.eventLog.Read(EventFilter{Since: &since, Type: core.EventMoveFailed})
	if err != nil {
		return nil, fmt.Errorf("reading move failures: %w", err)
	}
	builds, err := ae.eventLog.Read(EventFilter{Since: &since, Type: core.EventHierarchyBuilt})
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy builds: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkMoveFailures(now, failures)...)
	alerts = append(alerts, ae.checkRemoteErrors(now, failures)...)
	alerts = append(alerts, ae.checkCycleAttempts(now, failures)...)
	alerts = append(alerts, ae.checkTruncatedBuilds(now, builds)...)
	return alerts, nil
}

// checkMoveFailures fires when more moves failed in the window than allowed.
func (ae *alertEngine) checkMoveFailures(now time.Time, failures []Event) []Alert {
	if len(failures) <= ae.thresholds.MaxMoveFailures {
		return nil
	}
	return []Alert{{
		ID:          "move-failures",
		Condition:   "move_failures_high",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d task moves failed in the last %s (limit %d)", len(failures), ae.thresholds.Window, ae.thresholds.MaxMoveFailures),
		TriggeredAt: now,
	}}
}

// checkRemoteErrors fires when the ERP rejected or dropped too many calls.
func (ae *alertEngine) checkRemoteErrors(now time.Time, failures []Event) []Alert {
	n := 0
	for _, e := range failures {
		if e.Data["kind"] == core.KindRemote {
			n++
		}
	}
	if n <= ae.thresholds.MaxRemoteErrors {
		return nil
	}
	return []Alert{{
		ID:          "remote-errors",
		Condition:   "remote_errors_high",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("%d moves failed on remote errors in the last %s; check the Odoo connection", n, ae.thresholds.Window),
		TriggeredAt: now,
	}}
}

// checkCycleAttempts fires per task that was repeatedly moved under its own descendant.
func (ae *alertEngine) checkCycleAttempts(now time.Time, failures []Event) []Alert {
	perTask := make(map[int64]int)
	for _, e := range failures {
		if e.Data["kind"] != core.KindCycle {
			continue
		}
		if id := cast.ToInt64(e.Data["task_id"]); id > 0 {
			perTask[id]++
		}
	}

	ids := make([]int64, 0, len(perTask))
	for id, n := range perTask {
		if n >= ae.thresholds.CycleAttempts {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	alerts := make([]Alert, 0, len(ids))
	for _, id := range ids {
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("cycle-%d", id),
			Condition:   "repeated_cycle_attempts",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("task %d was moved under its own subtree %d times", id, perTask[id]),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkTruncatedBuilds fires when hierarchies keep hitting the node cap.
func (ae *alertEngine) checkTruncatedBuilds(now time.Time, builds []Event) []Alert {
	n := 0
	for _, e := range builds {
		if cast.ToBool(e.Data["truncated"]) {
			n++
		}
	}
	if n <= ae.thresholds.MaxTruncated {
		return nil
	}
	return []Alert{{
		ID:          "truncated-builds",
		Condition:   "hierarchy_truncated",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("%d hierarchies hit the node cap in the last %s; consider raising hierarchy.max_nodes", n, ae.thresholds.Window),
		TriggeredAt: now,
	}}
}
