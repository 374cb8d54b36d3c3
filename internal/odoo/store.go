package odoo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/spf13/cast"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

// Remote model names.
const (
	modelTask    = "project.task"
	modelProject = "project.project"
	modelUser    = "res.users"
)

var (
	baseTaskFields = []string{
		"id", "name", "parent_id", "project_id", "stage_id", "priority", "state",
		"kanban_state", "date_deadline", "description", "user_ids", "user_id",
	}
	baseProjectFields = []string{"id", "name", "description", "partner_id", "user_id", "stage_id"}
)

// fieldNames holds the relation fields that exist on the server, resolved
// from the configured candidates.
type fieldNames struct {
	child     []string
	blockedBy []string
	blocking  []string
}

// Store implements core.TaskStore on top of an Executor. A Store belongs to a
// single request; the schema it discovers is not shared.
type Store struct {
	exec   Executor
	cfg    models.HierarchyConfig
	names  *core.NameCache
	logger *log.Logger

	taskFields    []string
	projectFields []string
	relations     fieldNames
}

var _ core.TaskStore = (*Store)(nil)

// NewStore creates a Store. names may be shared between stores; logger may be nil.
func NewStore(exec Executor, cfg models.HierarchyConfig, names *core.NameCache, logger *log.Logger) *Store {
	if names == nil {
		names = core.NewNameCache(cfg.UserCacheTTL)
	}
	return &Store{exec: exec, cfg: cfg, names: names, logger: logger}
}

// NewOpener returns a core.StoreOpener that dials a fresh session per request.
func NewOpener(cfg *models.Config, names *core.NameCache, logger *log.Logger) core.StoreOpener {
	return func(ctx context.Context) (core.TaskStore, error) {
		client, err := Dial(ctx, cfg.Odoo, logger)
		if err != nil {
			return nil, &core.RemoteError{Op: "connecting to odoo", Err: err}
		}
		return &closingStore{Store: NewStore(client, cfg.Hierarchy, names, logger), client: client}, nil
	}
}

// closingStore ties a Store to the Client it owns.
type closingStore struct {
	*Store
	client *Client
}

func (s *closingStore) Close() error { return s.client.Close() }

// schema resolves which of the wanted fields the server knows, once per Store.
// Missing candidates are dropped silently.
func (s *Store) schema(ctx context.Context) error {
	if s.taskFields != nil {
		return nil
	}

	taskAvail, err := s.fieldsGet(ctx, modelTask)
	if err != nil {
		return err
	}
	projectAvail, err := s.fieldsGet(ctx, modelProject)
	if err != nil {
		return err
	}

	s.relations = fieldNames{
		child:     present(taskAvail, s.cfg.ChildFields),
		blockedBy: present(taskAvail, s.cfg.BlockedByFields),
		blocking:  present(taskAvail, s.cfg.BlockingFields),
	}
	fields := present(taskAvail, baseTaskFields)
	fields = append(fields, s.relations.child...)
	fields = append(fields, s.relations.blockedBy...)
	fields = append(fields, s.relations.blocking...)
	s.taskFields = dedupe(fields)
	s.projectFields = present(projectAvail, baseProjectFields)

	if s.logger != nil {
		s.logger.Debug("resolved schema", "task_fields", len(s.taskFields),
			"child", s.relations.child, "blocked_by", s.relations.blockedBy, "blocking", s.relations.blocking)
	}
	return nil
}

func (s *Store) fieldsGet(ctx context.Context, model string) (map[string]bool, error) {
	var reply any
	err := s.exec.ExecuteKw(ctx, model, "fields_get", nil, map[string]any{"attributes": []string{"type"}}, &reply)
	if err != nil {
		return nil, &core.RemoteError{Op: "reading " + model + " schema", Err: err}
	}
	defs, _ := reply.(map[string]any)
	avail := make(map[string]bool, len(defs))
	for name := range defs {
		avail[name] = true
	}
	return avail, nil
}

func present(avail map[string]bool, wanted []string) []string {
	out := make([]string, 0, len(wanted))
	for _, f := range wanted {
		if avail[f] {
			out = append(out, f)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// unknownField returns the first filter field not among known. The id field
// is always searchable.
func unknownField(filters []core.FieldFilter, known []string) (string, bool) {
	for _, f := range filters {
		if f.Field == core.FieldID {
			continue
		}
		found := false
		for _, k := range known {
			if k == f.Field {
				found = true
				break
			}
		}
		if !found {
			return f.Field, true
		}
	}
	return "", false
}

// Domain encodes filters as an Odoo search domain. parent_id = 0 becomes
// parent_id = false.
func Domain(filters []core.FieldFilter) []any {
	domain := make([]any, 0, len(filters))
	for _, f := range filters {
		value := f.Value
		if f.Op == core.OpEq && (f.Field == core.FieldParentID || f.Field == core.FieldProjectID) {
			if id, err := cast.ToInt64E(value); err == nil && id == 0 {
				value = false
			}
		}
		domain = append(domain, []any{f.Field, string(f.Op), value})
	}
	return domain
}

func (s *Store) searchRead(ctx context.Context, model string, filters []core.FieldFilter, fields []string, limit int) ([]Record, error) {
	var reply any
	kwargs := map[string]any{"fields": fields, "order": "id asc"}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	if err := s.exec.ExecuteKw(ctx, model, "search_read", []any{Domain(filters)}, kwargs, &reply); err != nil {
		return nil, &core.RemoteError{Op: "searching " + model, Err: err}
	}
	rows, _ := reply.([]any)
	recs := make([]Record, 0, len(rows))
	for _, r := range rows {
		if m, ok := r.(map[string]any); ok {
			recs = append(recs, Record(m))
		}
	}
	return recs, nil
}

// FindTasks returns the tasks matching every filter, ordered by id. A filter
// on a field the server does not have matches nothing.
func (s *Store) FindTasks(ctx context.Context, filters ...core.FieldFilter) ([]*models.Task, error) {
	return s.findTasks(ctx, 0, filters)
}

// SearchTasks is FindTasks with the result capped at limit by the server.
func (s *Store) SearchTasks(ctx context.Context, limit int, filters ...core.FieldFilter) ([]*models.Task, error) {
	return s.findTasks(ctx, limit, filters)
}

func (s *Store) findTasks(ctx context.Context, limit int, filters []core.FieldFilter) ([]*models.Task, error) {
	if err := s.schema(ctx); err != nil {
		return nil, err
	}
	if field, ok := unknownField(filters, s.taskFields); ok {
		if s.logger != nil {
			s.logger.Debug("filter on missing field matches nothing", "model", modelTask, "field", field)
		}
		return []*models.Task{}, nil
	}
	recs, err := s.searchRead(ctx, modelTask, filters, s.taskFields, limit)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(recs))
	for _, r := range recs {
		tasks = append(tasks, decodeTask(r, s.relations))
	}
	if err := s.resolveAssignees(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask returns a single task or a *core.NotFoundError.
func (s *Store) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	tasks, err := s.FindTasks(ctx, core.Eq(core.FieldID, id))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, &core.NotFoundError{Entity: core.EntityTask, ID: id}
	}
	return tasks[0], nil
}

// FindProjects returns the projects matching every filter, ordered by id.
func (s *Store) FindProjects(ctx context.Context, filters ...core.FieldFilter) ([]*models.Project, error) {
	if err := s.schema(ctx); err != nil {
		return nil, err
	}
	if field, ok := unknownField(filters, s.projectFields); ok {
		if s.logger != nil {
			s.logger.Debug("filter on missing field matches nothing", "model", modelProject, "field", field)
		}
		return []*models.Project{}, nil
	}
	recs, err := s.searchRead(ctx, modelProject, filters, s.projectFields, 0)
	if err != nil {
		return nil, err
	}
	projects := make([]*models.Project, 0, len(recs))
	for _, r := range recs {
		projects = append(projects, decodeProject(r))
	}
	return projects, nil
}

// GetProject returns a single project or a *core.NotFoundError.
func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	projects, err := s.FindProjects(ctx, core.Eq(core.FieldID, id))
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, &core.NotFoundError{Entity: core.EntityProject, ID: id}
	}
	return projects[0], nil
}

// UpdateTask writes fields to one task and reports the server's answer.
func (s *Store) UpdateTask(ctx context.Context, id int64, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return false, errors.New("no fields to write")
	}
	var reply any
	if err := s.exec.ExecuteKw(ctx, modelTask, "write", []any{[]int64{id}, fields}, nil, &reply); err != nil {
		return false, &core.RemoteError{Op: fmt.Sprintf("writing task %d", id), Err: err}
	}
	ok, _ := reply.(bool)
	return ok, nil
}

// resolveAssignees fills Task.Assignees from res.users, reading only the
// ids the name cache does not hold.
func (s *Store) resolveAssignees(ctx context.Context, tasks []*models.Task) error {
	var all []int64
	for _, t := range tasks {
		all = append(all, t.UserIDs...)
	}
	if len(all) == 0 {
		return nil
	}

	if missing := s.names.Missing(all); len(missing) > 0 {
		var reply any
		kwargs := map[string]any{"fields": []string{"name"}}
		if err := s.exec.ExecuteKw(ctx, modelUser, "read", []any{missing}, kwargs, &reply); err != nil {
			// Names are display data; a failed lookup leaves tasks unassigned.
			if s.logger != nil {
				s.logger.Warn("resolving user names", "err", err)
			}
			return nil
		}
		rows, _ := reply.([]any)
		for _, r := range rows {
			rec, ok := r.(map[string]any)
			if !ok {
				continue
			}
			s.names.Put(cast.ToInt64(rec["id"]), text(rec["name"]))
		}
	}

	for _, t := range tasks {
		if len(t.UserIDs) == 0 || len(t.Assignees) > 0 {
			continue
		}
		for _, id := range t.UserIDs {
			if name, ok := s.names.Get(id); ok && name != "" {
				t.Assignees = append(t.Assignees, name)
			}
		}
		sort.Strings(t.Assignees)
	}
	return nil
}
