package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

// mockService implements core.Service for testing.
type mockService struct {
	TaskHierarchyFunc    func(ctx context.Context, taskID int64, maxDepth int, f core.HierarchyFilter) (*models.Hierarchy, error)
	ProjectHierarchyFunc func(ctx context.Context, projectID int64, maxDepth int, f core.HierarchyFilter) (*models.Hierarchy, error)
	MoveFunc             func(ctx context.Context, taskID, newParentID, projectID int64) (*core.MoveOutcome, error)
	PromoteFunc          func(ctx context.Context, taskID int64) (*core.PromoteOutcome, error)
	MoveManyFunc         func(ctx context.Context, taskIDs []int64, newParentID, projectID int64) (*core.BatchOutcome, error)
}

func (m *mockService) TaskHierarchy(ctx context.Context, taskID int64, maxDepth int, f core.HierarchyFilter) (*models.Hierarchy, error) {
	if m.TaskHierarchyFunc != nil {
		return m.TaskHierarchyFunc(ctx, taskID, maxDepth, f)
	}
	return nil, &core.NotFoundError{Entity: core.EntityTask, ID: taskID}
}

func (m *mockService) ProjectHierarchy(ctx context.Context, projectID int64, maxDepth int, f core.HierarchyFilter) (*models.Hierarchy, error) {
	if m.ProjectHierarchyFunc != nil {
		return m.ProjectHierarchyFunc(ctx, projectID, maxDepth, f)
	}
	return nil, &core.NotFoundError{Entity: core.EntityProject, ID: projectID}
}

func (m *mockService) Move(ctx context.Context, taskID, newParentID, projectID int64) (*core.MoveOutcome, error) {
	if m.MoveFunc != nil {
		return m.MoveFunc(ctx, taskID, newParentID, projectID)
	}
	return &core.MoveOutcome{TaskID: taskID, NewParentID: newParentID}, nil
}

func (m *mockService) Promote(ctx context.Context, taskID int64) (*core.PromoteOutcome, error) {
	if m.PromoteFunc != nil {
		return m.PromoteFunc(ctx, taskID)
	}
	return &core.PromoteOutcome{TaskID: taskID}, nil
}

func (m *mockService) MoveMany(ctx context.Context, taskIDs []int64, newParentID, projectID int64) (*core.BatchOutcome, error) {
	if m.MoveManyFunc != nil {
		return m.MoveManyFunc(ctx, taskIDs, newParentID, projectID)
	}
	return &core.BatchOutcome{NewParentID: newParentID, MovedCount: len(taskIDs)}, nil
}

func (m *mockService) SearchTasks(context.Context, string, int) ([]*models.Task, error) {
	return nil, nil
}

func newTestServer(mock *mockService) *Server {
	gin.SetMode(gin.TestMode)
	cfg := core.DefaultConfig()
	cfg.Odoo.Host = "erp.example.com"
	cfg.Odoo.Database = "prod"
	cfg.Odoo.User = "bot"
	cfg.Odoo.Password = "secret"
	return NewServer(mock, core.NewTreePresenter("https://erp.example.com"), cfg, nil)
}

func doRequest(t *testing.T, s *Server, method, target string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func sampleProjectHierarchy() *models.Hierarchy {
	design := models.NewTaskNode(&models.Task{ID: 1, Name: "Design", StageName: "01_done", Priority: 1})
	design.Children = []*models.HierarchyNode{
		models.NewTaskNode(&models.Task{ID: 2, Name: "Mockups", ParentID: 1, StageName: "Waiting"}),
	}
	root := models.NewProjectNode(&models.Project{ID: 10, Name: "Website"})
	root.Children = []*models.HierarchyNode{design}
	return &models.Hierarchy{Type: models.HierarchyProject, Root: root, TotalTasks: 2, MainTaskCount: 1, NodeCount: 2}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&mockService{})
	w, resp := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestProjectHierarchy(t *testing.T) {
	var gotDepth int
	var gotFilter core.HierarchyFilter
	s := newTestServer(&mockService{
		ProjectHierarchyFunc: func(_ context.Context, id int64, depth int, f core.HierarchyFilter) (*models.Hierarchy, error) {
			require.Equal(t, int64(10), id)
			gotDepth, gotFilter = depth, f
			return sampleProjectHierarchy(), nil
		},
	})

	w, resp := doRequest(t, s, http.MethodGet, "/api/hierarchy/project/10?depth=2&stage=Done,Waiting&priority=1&priority=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "project", resp["type"])
	assert.Equal(t, 2, gotDepth)
	assert.Equal(t, []string{"Done", "Waiting"}, gotFilter.Stages)
	assert.Equal(t, []int{1, 2}, gotFilter.Priorities)

	doc := resp["hierarchy"].(map[string]any)
	root := doc["root"].(map[string]any)
	assert.Equal(t, "Website", root["name"])
	assert.Equal(t, "https://erp.example.com/web#id=10&model=project.project&view_type=form", root["url"])

	filterData := doc["filter_data"].(map[string]any)
	assert.Equal(t, []any{"Done", "Waiting"}, filterData["stages"])
	assert.Equal(t, []any{float64(0), float64(1)}, filterData["priorities"])
}

func TestProjectHierarchy_TextFormat(t *testing.T) {
	s := newTestServer(&mockService{
		ProjectHierarchyFunc: func(context.Context, int64, int, core.HierarchyFilter) (*models.Hierarchy, error) {
			return sampleProjectHierarchy(), nil
		},
	})

	w, _ := doRequest(t, s, http.MethodGet, "/api/hierarchy/project/10?format=text", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "📂 PROJECT: Website (ID: 10)")
	assert.Contains(t, w.Body.String(), "└── Design (ID: 1)")
}

func TestTaskHierarchy_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &core.NotFoundError{Entity: core.EntityTask, ID: 5}, http.StatusNotFound},
		{"validation", &core.ValidationError{Reason: "bad"}, http.StatusBadRequest},
		{"remote", &core.RemoteError{Op: "searching", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"canceled", context.Canceled, http.StatusGatewayTimeout},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockService{
				TaskHierarchyFunc: func(context.Context, int64, int, core.HierarchyFilter) (*models.Hierarchy, error) {
					return nil, tt.err
				},
			})
			w, resp := doRequest(t, s, http.MethodGet, "/api/hierarchy/task/5", nil)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, tt.err.Error(), resp["error"])
		})
	}
}

func TestHierarchy_BadParams(t *testing.T) {
	s := newTestServer(&mockService{})
	for _, target := range []string{
		"/api/hierarchy/task/abc",
		"/api/hierarchy/task/0",
		"/api/hierarchy/project/10?depth=0",
		"/api/hierarchy/project/10?depth=x",
		"/api/hierarchy/project/10?priority=high",
	} {
		w, resp := doRequest(t, s, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, false, resp["success"], target)
	}
}

func TestMoveTask(t *testing.T) {
	var got [3]int64
	s := newTestServer(&mockService{
		MoveFunc: func(_ context.Context, taskID, parentID, projectID int64) (*core.MoveOutcome, error) {
			got = [3]int64{taskID, parentID, projectID}
			return &core.MoveOutcome{TaskID: taskID, TaskName: "Mockups", NewParentID: parentID, NewParentName: "Build"}, nil
		},
	})

	w, resp := doRequest(t, s, http.MethodGet, "/api/move-task?task_id=2&new_parent_id=3&project_id=20", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "Task moved successfully", resp["message"])
	assert.Equal(t, [3]int64{2, 3, 20}, got)

	details := resp["details"].(map[string]any)
	assert.Equal(t, "Mockups", details["subtask_name"])
}

func TestMoveTask_FormBody(t *testing.T) {
	var gotTask int64
	s := newTestServer(&mockService{
		MoveFunc: func(_ context.Context, taskID, _, _ int64) (*core.MoveOutcome, error) {
			gotTask = taskID
			return &core.MoveOutcome{TaskID: taskID}, nil
		},
	})

	form := url.Values{"task_id": {"7"}, "new_parent_id": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/api/move-task", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), gotTask)
}

func TestMoveTask_RootPromotes(t *testing.T) {
	promoted := int64(0)
	s := newTestServer(&mockService{
		PromoteFunc: func(_ context.Context, taskID int64) (*core.PromoteOutcome, error) {
			promoted = taskID
			return &core.PromoteOutcome{TaskID: taskID, FormerParentName: "Design"}, nil
		},
		MoveFunc: func(context.Context, int64, int64, int64) (*core.MoveOutcome, error) {
			t.Fatal("Move must not be called for root")
			return nil, nil
		},
	})

	w, resp := doRequest(t, s, http.MethodGet, "/api/move-task?task_id=2&new_parent_id=root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), promoted)
	assert.Equal(t, "Task promoted to main task", resp["message"])
}

func TestMoveTask_Validation(t *testing.T) {
	s := newTestServer(&mockService{
		MoveFunc: func(context.Context, int64, int64, int64) (*core.MoveOutcome, error) {
			t.Fatal("Move must not be called for invalid input")
			return nil, nil
		},
	})

	tests := map[string]string{
		"/api/move-task?new_parent_id=3":                           "Valid Task ID is required",
		"/api/move-task?task_id=undefined&new_parent_id=3":         "Valid Task ID is required",
		"/api/move-task?task_id=2":                                 "Valid New parent ID is required",
		"/api/move-task?task_id=2&new_parent_id=null":              "Valid New parent ID is required",
		"/api/move-task?task_id=x&new_parent_id=3":                 "Task ID must be a valid number, got: x",
		"/api/move-task?task_id=2&new_parent_id=top":               `New parent ID must be a valid number or "root", got: top`,
		"/api/move-task?task_id=2&new_parent_id=3&project_id=nope": "Project ID must be a valid number, got: nope",
	}
	for target, msg := range tests {
		w, resp := doRequest(t, s, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, msg, resp["error"], target)
	}
}

func TestMoveTask_CycleIsBadRequest(t *testing.T) {
	s := newTestServer(&mockService{
		MoveFunc: func(_ context.Context, taskID, parentID, _ int64) (*core.MoveOutcome, error) {
			return nil, &core.CycleError{TaskID: taskID, NewParentID: parentID, Path: []int64{3, 2, 1}}
		},
	})

	w, resp := doRequest(t, s, http.MethodGet, "/api/move-task?task_id=1&new_parent_id=3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, core.KindCycle, resp["kind"])
	assert.Contains(t, resp["error"], "circular dependency")
}

func TestMoveTasks(t *testing.T) {
	s := newTestServer(&mockService{
		MoveManyFunc: func(_ context.Context, ids []int64, parentID, _ int64) (*core.BatchOutcome, error) {
			require.Equal(t, []int64{4, 999, 5}, ids)
			return &core.BatchOutcome{
				NewParentID: parentID,
				MovedCount:  1,
				FailedCount: 2,
				Errors:      []string{"task 999: not found", "task 5: would create circular dependency"},
			}, nil
		},
	})

	body, _ := json.Marshal(map[string]any{"task_ids": []int64{4, 999, 5}, "new_parent_id": 6})
	w, resp := doRequest(t, s, http.MethodPost, "/api/move-tasks", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Moved 1 of 3 tasks", resp["message"])

	details := resp["details"].(map[string]any)
	assert.Len(t, details["errors"], 2)
}

func TestMoveTasks_InvalidBody(t *testing.T) {
	s := newTestServer(&mockService{})
	for _, body := range []string{`{`, `{"task_ids":[],"new_parent_id":6}`, `{"task_ids":[1]}`} {
		w, resp := doRequest(t, s, http.MethodPost, "/api/move-tasks", []byte(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, false, resp["success"], body)
	}
}

func TestMoveTasks_ParentNotFound(t *testing.T) {
	s := newTestServer(&mockService{
		MoveManyFunc: func(_ context.Context, _ []int64, parentID, _ int64) (*core.BatchOutcome, error) {
			return nil, &core.NotFoundError{Entity: core.EntityParent, ID: parentID}
		},
	})

	body, _ := json.Marshal(map[string]any{"task_ids": []int64{1}, "new_parent_id": 99})
	w, _ := doRequest(t, s, http.MethodPost, "/api/move-tasks", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSettings_RedactsPassword(t *testing.T) {
	s := newTestServer(&mockService{})
	w, resp := doRequest(t, s, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	settings := resp["settings"].(map[string]any)
	assert.Equal(t, "erp.example.com", settings["host"])
	assert.Equal(t, "********", settings["password"])
	assert.Equal(t, float64(443), settings["port"])
	assert.NotContains(t, w.Body.String(), "secret")
}
