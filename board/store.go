package board

import (
	"context"
	"time"

	"board-api/domain"
)

// TaskPatch is a field-level task mutation; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *domain.Status
	DueDate     *time.Time
}

// Store abstracts the remote relational store for the board core. The
// production implementation lives in the storage package; tests supply
// mocks.
type Store interface {
	// FetchBoard loads a project's tasks denormalized with their joined
	// labels and assignees, in creation order.
	FetchBoard(ctx context.Context, projectID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch) error
	DeleteTask(ctx context.Context, projectID, taskID string) error

	FetchChecklist(ctx context.Context, taskID string) ([]domain.ChecklistItem, error)
	InsertChecklistItem(ctx context.Context, item domain.ChecklistItem) (domain.ChecklistItem, error)
	SetChecklistItemDone(ctx context.Context, taskID, itemID string, done bool) error
	DeleteChecklistItem(ctx context.Context, taskID, itemID string) error

	FetchComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
	UpdateComment(ctx context.Context, taskID, commentID, content string) error
	DeleteComment(ctx context.Context, taskID, commentID string) error

	FetchAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error)
	InsertAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error)

	FetchLabels(ctx context.Context, projectID string) ([]domain.Label, error)
	InsertLabel(ctx context.Context, l domain.Label) (domain.Label, error)
	// DeleteLabel removes the label row and every task join that
	// references it within the project.
	DeleteLabel(ctx context.Context, projectID, labelID string) error
	AttachLabel(ctx context.Context, projectID, taskID, labelID string) error
	DetachLabel(ctx context.Context, projectID, taskID, labelID string) error

	AssignUser(ctx context.Context, projectID, taskID, userID string) error
	UnassignUser(ctx context.Context, projectID, taskID, userID string) error

	FetchProfiles(ctx context.Context) ([]domain.UserProfile, error)
}

// BlobStore holds attachment binaries.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

// Feed receives activity events after board mutations. Publishing is
// fire and forget; a failed publish never fails the mutation.
type Feed interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// wrapRemote folds any non-domain error into a RemoteError at the point
// it crosses into the board core.
func wrapRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsValidation(err) || domain.IsNotFound(err) || domain.IsRemote(err) {
		return err
	}
	return domain.RemoteError{Op: op, Err: err}
}
