package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/pkg/models"
)

const (
	// rootParent as new_parent_id promotes the task to a main task.
	rootParent = "root"
	maxBatch   = 500
)

// moveTasksRequest is the body of POST /api/move-tasks.
type moveTasksRequest struct {
	TaskIDs     []int64 `json:"task_ids" binding:"required,min=1"`
	NewParentID int64   `json:"new_parent_id" binding:"required"`
	ProjectID   int64   `json:"project_id"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleProjectHierarchy(c *gin.Context) {
	id, ok := pathID(c, "project")
	if !ok {
		return
	}
	depth, filter, ok := hierarchyQuery(c)
	if !ok {
		return
	}

	h, err := s.svc.ProjectHierarchy(c.Request.Context(), id, depth, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondHierarchy(c, h)
}

func (s *Server) handleTaskHierarchy(c *gin.Context) {
	id, ok := pathID(c, "task")
	if !ok {
		return
	}
	depth, filter, ok := hierarchyQuery(c)
	if !ok {
		return
	}

	h, err := s.svc.TaskHierarchy(c.Request.Context(), id, depth, filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondHierarchy(c, h)
}

func (s *Server) respondHierarchy(c *gin.Context, h *models.Hierarchy) {
	if c.Query("format") == "text" {
		verbosity, _ := strconv.Atoi(c.DefaultQuery("verbose", "0"))
		c.String(http.StatusOK, s.presenter.RenderText(h, verbosity))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"type":      h.Type,
		"hierarchy": s.presenter.RenderJSON(h),
	})
}

// handleMoveTask serves the drag-and-drop callback. Parameters come from the
// query string or a form body.
func (s *Server) handleMoveTask(c *gin.Context) {
	taskRaw := param(c, "task_id")
	parentRaw := param(c, "new_parent_id")
	projectRaw := param(c, "project_id")

	if isBlank(taskRaw) {
		badRequest(c, "Valid Task ID is required")
		return
	}
	if isBlank(parentRaw) {
		badRequest(c, "Valid New parent ID is required")
		return
	}
	taskID, err := strconv.ParseInt(taskRaw, 10, 64)
	if err != nil {
		badRequest(c, fmt.Sprintf("Task ID must be a valid number, got: %s", taskRaw))
		return
	}

	ctx := c.Request.Context()
	if parentRaw == rootParent {
		out, err := s.svc.Promote(ctx, taskID)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Task promoted to main task",
			"details": out,
		})
		return
	}

	parentID, err := strconv.ParseInt(parentRaw, 10, 64)
	if err != nil {
		badRequest(c, fmt.Sprintf("New parent ID must be a valid number or %q, got: %s", rootParent, parentRaw))
		return
	}
	var projectID int64
	if !isBlank(projectRaw) {
		if projectID, err = strconv.ParseInt(projectRaw, 10, 64); err != nil {
			badRequest(c, fmt.Sprintf("Project ID must be a valid number, got: %s", projectRaw))
			return
		}
	}

	out, err := s.svc.Move(ctx, taskID, parentID, projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task moved successfully",
		"details": out,
	})
}

func (s *Server) handleMoveTasks(c *gin.Context) {
	var req moveTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.TaskIDs) > maxBatch {
		badRequest(c, fmt.Sprintf("at most %d tasks can be moved at once", maxBatch))
		return
	}

	out, err := s.svc.MoveMany(c.Request.Context(), req.TaskIDs, req.NewParentID, req.ProjectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": out.FailedCount == 0,
		"message": fmt.Sprintf("Moved %d of %d tasks", out.MovedCount, len(req.TaskIDs)),
		"details": out,
	})
}

func (s *Server) handleSettings(c *gin.Context) {
	cfg := core.RedactedConfig(s.cfg)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"settings": gin.H{
			"host":      cfg.Odoo.Host,
			"database":  cfg.Odoo.Database,
			"user":      cfg.Odoo.User,
			"password":  cfg.Odoo.Password,
			"port":      cfg.Odoo.Port,
			"protocol":  cfg.Odoo.Protocol,
			"max_depth": cfg.Hierarchy.MaxDepth,
			"max_nodes": cfg.Hierarchy.MaxNodes,
		},
	})
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"kind":    core.ErrorKind(err),
	})
}

func statusFor(err error) int {
	switch core.ErrorKind(err) {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindValidation, core.KindCycle:
		return http.StatusBadRequest
	case core.KindRemote:
		return http.StatusBadGateway
	case core.KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg, "kind": core.KindValidation})
}

func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Sprintf("Invalid %s ID", what))
		return 0, false
	}
	return id, true
}

// hierarchyQuery reads ?depth=, ?stage= and ?priority=. Stages and
// priorities may repeat or be comma separated.
func hierarchyQuery(c *gin.Context) (int, core.HierarchyFilter, bool) {
	var f core.HierarchyFilter
	depth := 0
	if raw := c.Query("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 {
			badRequest(c, fmt.Sprintf("depth must be a positive number, got: %s", raw))
			return 0, f, false
		}
		depth = d
	}

	f.Stages = splitValues(c.QueryArray("stage"))
	for _, raw := range splitValues(c.QueryArray("priority")) {
		p, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, fmt.Sprintf("priority must be a number, got: %s", raw))
			return 0, f, false
		}
		f.Priorities = append(f.Priorities, p)
	}
	return depth, f, true
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func param(c *gin.Context, key string) string {
	if v, ok := c.GetQuery(key); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(c.PostForm(key))
}

// isBlank reports a missing value, including the placeholders a browser
// sends for unset JavaScript variables.
func isBlank(v string) bool {
	return v == "" || v == "null" || v == "undefined"
}
