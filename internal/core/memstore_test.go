package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/edwh/otk/pkg/models"
)

// storeUpdate records one UpdateTask call made against memStore.
type storeUpdate struct {
	ID     int64
	Fields map[string]any
}

// memStore implements TaskStore over in-memory maps for testing.
type memStore struct {
	mu       sync.Mutex
	tasks    map[int64]*models.Task
	projects map[int64]*models.Project

	updates   []storeUpdate
	findCalls int
	getCalls  int
	// lastLimit is the cap passed to the most recent SearchTasks call.
	lastLimit int

	// getErr and findErr inject adapter failures.
	getErr  map[int64]error
	findErr error
	// refuseWrites makes UpdateTask report false, as a server that declined the write.
	refuseWrites bool
	// parentUnsearchable makes parent_id queries return nothing.
	parentUnsearchable bool
}

func newMemStore() *memStore {
	return &memStore{
		tasks:    make(map[int64]*models.Task),
		projects: make(map[int64]*models.Project),
		getErr:   make(map[int64]error),
	}
}

func (s *memStore) addProject(id int64, name string) *models.Project {
	p := &models.Project{ID: id, Name: name}
	s.projects[id] = p
	return p
}

// addTask stores a task under parentID (0 for a main task) in projectID.
func (s *memStore) addTask(id int64, name string, parentID, projectID int64) *models.Task {
	t := &models.Task{ID: id, Name: name, ParentID: parentID, ProjectID: projectID}
	if parent, ok := s.tasks[parentID]; ok {
		t.ParentName = parent.Name
	}
	if p, ok := s.projects[projectID]; ok {
		t.ProjectName = p.Name
	}
	s.tasks[id] = t
	return t
}

func (s *memStore) parentOf(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.ParentID
	}
	return 0
}

func (s *memStore) FindTasks(_ context.Context, filters ...FieldFilter) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}

	var out []*models.Task
	for _, t := range s.tasks {
		if s.matches(t, filters) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SearchTasks(ctx context.Context, limit int, filters ...FieldFilter) ([]*models.Task, error) {
	s.mu.Lock()
	s.lastLimit = limit
	s.mu.Unlock()

	out, err := s.FindTasks(ctx, filters...)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) matches(t *models.Task, filters []FieldFilter) bool {
	for _, f := range filters {
		var field any
		switch f.Field {
		case FieldID:
			field = t.ID
		case FieldParentID:
			if s.parentUnsearchable {
				return false
			}
			field = t.ParentID
		case FieldProjectID:
			field = t.ProjectID
		case FieldName:
			field = t.Name
		default:
			return false
		}
		if !compare(field, f) {
			return false
		}
	}
	return true
}

func compare(field any, f FieldFilter) bool {
	switch f.Op {
	case OpEq:
		return fmt.Sprint(field) == fmt.Sprint(f.Value)
	case OpIn:
		ids, _ := f.Value.([]int64)
		for _, id := range ids {
			if field == id {
				return true
			}
		}
		return false
	case OpILike:
		return strings.Contains(strings.ToLower(fmt.Sprint(field)), strings.ToLower(fmt.Sprint(f.Value)))
	}
	return false
}

func (s *memStore) GetTask(_ context.Context, id int64) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if err := s.getErr[id]; err != nil {
		return nil, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, &NotFoundError{Entity: EntityTask, ID: id}
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) FindProjects(_ context.Context, filters ...FieldFilter) ([]*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Project
	for _, p := range s.projects {
		ok := true
		for _, f := range filters {
			var field any
			switch f.Field {
			case FieldID:
				field = p.ID
			case FieldName:
				field = p.Name
			}
			if !compare(field, f) {
				ok = false
			}
		}
		if ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetProject(_ context.Context, id int64) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, &NotFoundError{Entity: EntityProject, ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdateTask(_ context.Context, id int64, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, storeUpdate{ID: id, Fields: fields})
	if s.refuseWrites {
		return false, nil
	}
	t, ok := s.tasks[id]
	if !ok {
		return false, &NotFoundError{Entity: EntityTask, ID: id}
	}
	if v, ok := fields[FieldParentID]; ok {
		switch pv := v.(type) {
		case int64:
			t.ParentID = pv
		case bool:
			t.ParentID = 0
		}
		t.ParentName = ""
		if parent, ok := s.tasks[t.ParentID]; ok {
			t.ParentName = parent.Name
		}
	}
	if v, ok := fields[FieldProjectID].(int64); ok {
		t.ProjectID = v
	}
	return true, nil
}

// recordingLogger captures LogEvent calls.
type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) LogEvent(eventType string, _ map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventType)
	return nil
}

func (l *recordingLogger) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// childNames returns the names of the direct children of nodes, for compact assertions.
func childNames(nodes []*models.HierarchyNode) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}
