package odoo

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/edwh/otk/pkg/models"
)

// Record is one row as decoded from an XML-RPC response.
type Record map[string]any

// many2one decodes a many2one value, sent as [id, display_name] or false.
func many2one(v any) (int64, string) {
	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return 0, ""
		}
		id := cast.ToInt64(val[0])
		var name string
		if len(val) > 1 {
			name = text(val[1])
		}
		return id, name
	case bool, nil:
		return 0, ""
	default:
		return cast.ToInt64(val), ""
	}
}

// many2many decodes an id list, sent as an array of ints or false.
func many2many(v any) []int64 {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if id, err := cast.ToInt64E(it); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// text decodes a char/text/selection value. Odoo sends false for unset values.
func text(v any) string {
	switch val := v.(type) {
	case bool, nil:
		return ""
	case string:
		return val
	default:
		return cast.ToString(val)
	}
}

// priority decodes the priority selection, sent as "0".."3" or an int.
// Anything unparseable is Normal.
func priority(v any) int {
	s := strings.TrimSpace(text(v))
	if s == "" {
		return models.PriorityNormal
	}
	p, err := cast.ToIntE(s)
	if err != nil {
		return models.PriorityNormal
	}
	return p
}

// firstIDs returns the ids of the first field in names present in rec.
func firstIDs(rec Record, names []string) []int64 {
	for _, n := range names {
		if v, ok := rec[n]; ok {
			return many2many(v)
		}
	}
	return nil
}

// unionIDs merges the ids of every field in names present in rec.
func unionIDs(rec Record, names []string) []int64 {
	var out []int64
	seen := map[int64]bool{}
	for _, n := range names {
		for _, id := range many2many(rec[n]) {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// decodeTask projects a project.task record onto models.Task. Fields that
// were not requested or not present decode to their zero value.
func decodeTask(rec Record, cfg fieldNames) *models.Task {
	t := &models.Task{
		ID:          cast.ToInt64(rec["id"]),
		Name:        text(rec["name"]),
		Priority:    priority(rec["priority"]),
		State:       text(rec["state"]),
		KanbanState: text(rec["kanban_state"]),
		Deadline:    text(rec["date_deadline"]),
		Description: text(rec["description"]),
		ChildIDs:    firstIDs(rec, cfg.child),
		BlockedBy:   unionIDs(rec, cfg.blockedBy),
		Blocking:    unionIDs(rec, cfg.blocking),
	}
	t.ParentID, t.ParentName = many2one(rec["parent_id"])
	t.ProjectID, t.ProjectName = many2one(rec["project_id"])
	_, t.StageName = many2one(rec["stage_id"])

	// Odoo 16+ uses user_ids; older versions a single user_id.
	if ids := many2many(rec["user_ids"]); len(ids) > 0 {
		t.UserIDs = ids
	} else if id, name := many2one(rec["user_id"]); id > 0 {
		t.UserIDs = []int64{id}
		if name != "" {
			t.Assignees = []string{name}
		}
	}
	return t
}

// decodeProject projects a project.project record onto models.Project.
func decodeProject(rec Record) *models.Project {
	p := &models.Project{
		ID:          cast.ToInt64(rec["id"]),
		Name:        text(rec["name"]),
		Description: text(rec["description"]),
	}
	_, p.PartnerName = many2one(rec["partner_id"])
	_, p.ManagerName = many2one(rec["user_id"])
	_, p.StageName = many2one(rec["stage_id"])
	return p
}
