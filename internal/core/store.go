package core

import (
	"context"
	"io"

	"github.com/edwh/otk/pkg/models"
)

// Field names understood by every TaskStore implementation.
const (
	FieldID        = "id"
	FieldName      = "name"
	FieldParentID  = "parent_id"
	FieldProjectID = "project_id"
)

// FilterOp is a comparison supported by FieldFilter.
type FilterOp string

const (
	OpEq    FilterOp = "="
	OpIn    FilterOp = "in"
	OpILike FilterOp = "ilike"
)

// FieldFilter is one clause of a store query. Clauses passed together are ANDed.
type FieldFilter struct {
	Field string
	Op    FilterOp
	Value any
}

// Eq matches records whose field equals v. Eq(FieldParentID, int64(0)) matches
// records without a parent.
func Eq(field string, v any) FieldFilter {
	return FieldFilter{Field: field, Op: OpEq, Value: v}
}

// In matches records whose field is one of ids.
func In(field string, ids []int64) FieldFilter {
	return FieldFilter{Field: field, Op: OpIn, Value: ids}
}

// ILike matches records whose field contains s, case-insensitively.
func ILike(field, s string) FieldFilter {
	return FieldFilter{Field: field, Op: OpILike, Value: s}
}

// TaskStore is the port to the remote task store. Defining it here keeps core
// independent of the XML-RPC adapter. Get methods return a *NotFoundError
// when the ID does not resolve; adapter failures are returned as *RemoteError.
type TaskStore interface {
	FindTasks(ctx context.Context, filters ...FieldFilter) ([]*models.Task, error)
	// SearchTasks is FindTasks capped at limit results, with the cap applied
	// by the store. A limit of zero or less means no cap.
	SearchTasks(ctx context.Context, limit int, filters ...FieldFilter) ([]*models.Task, error)
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	FindProjects(ctx context.Context, filters ...FieldFilter) ([]*models.Project, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	UpdateTask(ctx context.Context, id int64, fields map[string]any) (bool, error)
}

// StoreOpener opens a TaskStore handle for a single request. Handles are not
// shared between concurrent requests.
type StoreOpener func(ctx context.Context) (TaskStore, error)

// CloseStore releases store if it holds a connection.
func CloseStore(store TaskStore) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}
