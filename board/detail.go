package board

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

var (
	errNoBlobStore    = errors.New("blob store not configured")
	errNoLabelManager = errors.New("label manager not configured")
)

// Detail hydrates and mutates the full view of one selected task. It
// shares the board State by reference: every mutation made here is also
// applied to the board's copy of the task, without a full reload.
type Detail struct {
	board  *State
	store  Store
	blobs  BlobStore
	labels *LabelManager
	notify Notifier
	log    *log.Logger

	mu                   sync.Mutex
	task                 *domain.Task
	titleDraft           string
	descDraft            string
	checklist            []domain.ChecklistItem
	comments             []domain.Comment
	attachments          []domain.Attachment
	pendingCommentDelete string
}

// DetailView is a consistent snapshot of the open detail workspace.
type DetailView struct {
	Task        domain.Task            `json:"task"`
	Checklist   []domain.ChecklistItem `json:"checklist"`
	Comments    []domain.Comment       `json:"comments"`
	Attachments []domain.Attachment    `json:"attachments"`
}

func NewDetail(board *State, store Store, blobs BlobStore, labels *LabelManager, notify Notifier, logger *log.Logger) *Detail {
	if logger == nil {
		logger = log.New()
	}
	return &Detail{board: board, store: store, blobs: blobs, labels: labels, notify: notify, log: logger}
}

var errNoSelection = domain.NotFoundError{Collection: "tasks", ID: "(none selected)"}

// Open selects a task and hydrates its checklist, comments and
// attachments concurrently. The three fetches are independent: a failed
// section degrades to an empty list with a reported error and does not
// block the other two.
func (d *Detail) Open(ctx context.Context, taskID string) error {
	task, ok := d.board.Task(taskID)
	if !ok {
		return domain.NotFoundError{Collection: "tasks", ID: taskID}
	}

	var (
		checklist   []domain.ChecklistItem
		comments    []domain.Comment
		attachments []domain.Attachment
		wg          sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		var err error
		if checklist, err = d.store.FetchChecklist(ctx, taskID); err != nil {
			d.log.Warnf("fetch checklist for %s: %v", taskID, err)
			notifyErr(d.notify, "checklist unavailable")
			checklist = nil
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if comments, err = d.store.FetchComments(ctx, taskID); err != nil {
			d.log.Warnf("fetch comments for %s: %v", taskID, err)
			notifyErr(d.notify, "comments unavailable")
			comments = nil
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if attachments, err = d.store.FetchAttachments(ctx, taskID); err != nil {
			d.log.Warnf("fetch attachments for %s: %v", taskID, err)
			notifyErr(d.notify, "attachments unavailable")
			attachments = nil
		}
	}()
	wg.Wait()

	d.mu.Lock()
	d.task = &task
	d.titleDraft = task.Title
	d.descDraft = task.Description
	d.checklist = checklist
	d.comments = comments
	d.attachments = attachments
	d.pendingCommentDelete = ""
	d.mu.Unlock()
	return nil
}

// Close clears the selection. Pending fetch results for a closed view
// are simply discarded by their callers.
func (d *Detail) Close() {
	d.mu.Lock()
	d.task = nil
	d.checklist = nil
	d.comments = nil
	d.attachments = nil
	d.pendingCommentDelete = ""
	d.mu.Unlock()
}

// View returns a snapshot of the open workspace.
func (d *Detail) View() (DetailView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.task == nil {
		return DetailView{}, false
	}
	v := DetailView{Task: d.task.Clone()}
	v.Checklist = append(v.Checklist, d.checklist...)
	v.Comments = append(v.Comments, d.comments...)
	v.Attachments = append(v.Attachments, d.attachments...)
	return v, true
}

// SetTitleDraft updates the local title field without persisting.
func (d *Detail) SetTitleDraft(title string) {
	d.mu.Lock()
	d.titleDraft = title
	d.mu.Unlock()
}

// SetDescriptionDraft updates the local description without persisting.
func (d *Detail) SetDescriptionDraft(desc string) {
	d.mu.Lock()
	d.descDraft = desc
	d.mu.Unlock()
}

// CommitTitle persists the title draft once focus leaves the field. An
// unchanged value produces no remote write; an empty one is rejected
// before any remote call.
func (d *Detail) CommitTitle(ctx context.Context) error {
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return errNoSelection
	}
	title := strings.TrimSpace(d.titleDraft)
	if title == "" {
		d.mu.Unlock()
		return domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if title == d.task.Title {
		d.mu.Unlock()
		return nil
	}
	d.task.Title = title
	taskID, projectID := d.task.ID, d.task.ProjectID
	d.mu.Unlock()

	d.board.updateTask(taskID, func(t *domain.Task) { t.Title = title })
	if err := d.store.UpdateTask(ctx, projectID, taskID, TaskPatch{Title: &title}); err != nil {
		return wrapRemote("update title", err)
	}
	return nil
}

// CommitDescription persists the description draft on blur; an unchanged
// value produces no remote write.
func (d *Detail) CommitDescription(ctx context.Context) error {
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return errNoSelection
	}
	desc := d.descDraft
	if desc == d.task.Description {
		d.mu.Unlock()
		return nil
	}
	d.task.Description = desc
	taskID, projectID := d.task.ID, d.task.ProjectID
	d.mu.Unlock()

	d.board.updateTask(taskID, func(t *domain.Task) { t.Description = desc })
	if err := d.store.UpdateTask(ctx, projectID, taskID, TaskPatch{Description: &desc}); err != nil {
		return wrapRemote("update description", err)
	}
	return nil
}

// SetDueDate applies a due date to both the open view and the board's
// copy immediately; the remote write follows off-path.
func (d *Detail) SetDueDate(ctx context.Context, due time.Time) error {
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return errNoSelection
	}
	dueCopy := due
	d.task.DueDate = &dueCopy
	taskID, projectID := d.task.ID, d.task.ProjectID
	d.mu.Unlock()

	d.board.updateTask(taskID, func(t *domain.Task) {
		dd := due
		t.DueDate = &dd
	})
	d.board.submit("update due date", func(ctx context.Context) error {
		dd := due
		return d.store.UpdateTask(ctx, projectID, taskID, TaskPatch{DueDate: &dd})
	})
	return nil
}

// AddChecklistItem appends an item; the title must be non-empty after
// trimming.
func (d *Detail) AddChecklistItem(ctx context.Context, title string) (domain.ChecklistItem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.ChecklistItem{}, domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return domain.ChecklistItem{}, errNoSelection
	}
	taskID := d.task.ID
	d.mu.Unlock()

	item, err := d.store.InsertChecklistItem(ctx, domain.ChecklistItem{TaskID: taskID, Title: title})
	if err != nil {
		return domain.ChecklistItem{}, wrapRemote("add checklist item", err)
	}

	d.mu.Lock()
	if d.task != nil && d.task.ID == taskID {
		d.checklist = append(d.checklist, item)
	}
	d.mu.Unlock()
	return item, nil
}

// ToggleChecklistItem flips completion optimistically: the local state
// changes before the remote confirmation, which is not awaited.
func (d *Detail) ToggleChecklistItem(ctx context.Context, itemID string) error {
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return errNoSelection
	}
	taskID := d.task.ID
	var done bool
	found := false
	for i := range d.checklist {
		if d.checklist[i].ID == itemID {
			d.checklist[i].Completed = !d.checklist[i].Completed
			done = d.checklist[i].Completed
			found = true
			break
		}
	}
	d.mu.Unlock()
	if !found {
		return domain.NotFoundError{Collection: "checklists", ID: itemID}
	}

	d.board.submit("toggle checklist item", func(ctx context.Context) error {
		return d.store.SetChecklistItemDone(ctx, taskID, itemID, done)
	})
	return nil
}

// DeleteChecklistItem removes the item locally right away; deleting an
// id that is already gone is a no-op.
func (d *Detail) DeleteChecklistItem(ctx context.Context, itemID string) error {
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return errNoSelection
	}
	taskID := d.task.ID
	found := false
	for i := range d.checklist {
		if d.checklist[i].ID == itemID {
			d.checklist = append(d.checklist[:i], d.checklist[i+1:]...)
			found = true
			break
		}
	}
	d.mu.Unlock()
	if !found {
		return nil
	}

	d.board.submit("delete checklist item", func(ctx context.Context) error {
		err := d.store.DeleteChecklistItem(ctx, taskID, itemID)
		if err != nil && !domain.IsNotFound(err) {
			return err
		}
		return nil
	})
	return nil
}

// Progress returns the checklist completion percentage. For an empty
// checklist ok is false and the indicator must not be rendered at all.
func (d *Detail) Progress() (percent int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.checklist) == 0 {
		return 0, false
	}
	completed := 0
	for i := range d.checklist {
		if d.checklist[i].Completed {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(d.checklist)) * 100)), true
}

// AddComment appends a comment; content must be non-empty after
// trimming or no insert is issued. The stored row comes back joined with
// the author's display name.
func (d *Detail) AddComment(ctx context.Context, authorID, content string) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, domain.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return domain.Comment{}, errNoSelection
	}
	taskID := d.task.ID
	d.mu.Unlock()

	comment, err := d.store.InsertComment(ctx, domain.Comment{TaskID: taskID, AuthorID: authorID, Content: content})
	if err != nil {
		return domain.Comment{}, wrapRemote("add comment", err)
	}

	d.mu.Lock()
	if d.task != nil && d.task.ID == taskID {
		d.comments = append(d.comments, comment)
	}
	d.mu.Unlock()
	return comment, nil
}

// UpdateComment replaces a comment's content in place.
func (d *Detail) UpdateComment(ctx context.Context, commentID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return errNoSelection
	}
	taskID := d.task.ID
	d.mu.Unlock()

	if err := d.store.UpdateComment(ctx, taskID, commentID, content); err != nil {
		return wrapRemote("update comment", err)
	}

	d.mu.Lock()
	for i := range d.comments {
		if d.comments[i].ID == commentID {
			d.comments[i].Content = content
			break
		}
	}
	d.mu.Unlock()
	return nil
}

// RequestDeleteComment marks a comment for deletion pending explicit
// confirmation; the confirmation is a non-blocking modal step in the
// presentation layer, never a native prompt.
func (d *Detail) RequestDeleteComment(commentID string) {
	d.mu.Lock()
	d.pendingCommentDelete = commentID
	d.mu.Unlock()
}

// CancelDeleteComment discards a pending comment deletion.
func (d *Detail) CancelDeleteComment() {
	d.mu.Lock()
	d.pendingCommentDelete = ""
	d.mu.Unlock()
}

// ConfirmDeleteComment irreversibly deletes the comment marked by
// RequestDeleteComment.
func (d *Detail) ConfirmDeleteComment(ctx context.Context) error {
	d.mu.Lock()
	commentID := d.pendingCommentDelete
	d.pendingCommentDelete = ""
	if commentID == "" || d.task == nil {
		d.mu.Unlock()
		return nil
	}
	taskID := d.task.ID
	d.mu.Unlock()

	if err := d.store.DeleteComment(ctx, taskID, commentID); err != nil && !domain.IsNotFound(err) {
		return wrapRemote("delete comment", err)
	}

	d.mu.Lock()
	for i := range d.comments {
		if d.comments[i].ID == commentID {
			d.comments = append(d.comments[:i], d.comments[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	return nil
}

// UploadAttachment stores the binary first, then records the metadata
// row referencing the resulting URL. If the metadata insert fails after
// the upload succeeded the orphaned blob is left behind; there is no
// compensating delete.
func (d *Detail) UploadAttachment(ctx context.Context, fileName, contentType string, data []byte) (domain.Attachment, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return domain.Attachment{}, domain.ValidationError{Field: "fileName", Reason: "must not be empty"}
	}
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return domain.Attachment{}, errNoSelection
	}
	taskID := d.task.ID
	d.mu.Unlock()

	if d.blobs == nil {
		return domain.Attachment{}, domain.RemoteError{Op: "upload attachment", Err: errNoBlobStore}
	}

	key := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), fileName)
	if err := d.blobs.Upload(ctx, key, data, contentType); err != nil {
		return domain.Attachment{}, wrapRemote("upload attachment", err)
	}

	attachment, err := d.store.InsertAttachment(ctx, domain.Attachment{
		TaskID:   taskID,
		FileName: fileName,
		FileURL:  d.blobs.PublicURL(key),
	})
	if err != nil {
		d.log.Errorf("attachment metadata insert failed, orphaned blob %s: %v", key, err)
		return domain.Attachment{}, wrapRemote("record attachment", err)
	}

	d.mu.Lock()
	if d.task != nil && d.task.ID == taskID {
		d.attachments = append([]domain.Attachment{attachment}, d.attachments...)
	}
	d.mu.Unlock()

	notifyInfo(d.notify, "attachment uploaded")
	return attachment, nil
}

// ToggleAssignee flips the user's membership: attach if absent, detach
// if present. The join table, the open view and the board's copy all
// change together from the caller's perspective.
func (d *Detail) ToggleAssignee(ctx context.Context, user domain.UserProfile) (assigned bool, err error) {
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return false, errNoSelection
	}
	taskID, projectID := d.task.ID, d.task.ProjectID
	if d.task.HasAssignee(user.ID) {
		kept := d.task.Assignees[:0]
		for _, u := range d.task.Assignees {
			if u.ID != user.ID {
				kept = append(kept, u)
			}
		}
		d.task.Assignees = kept
		assigned = false
	} else {
		d.task.Assignees = append(d.task.Assignees, user)
		assigned = true
	}
	assignees := make([]domain.UserProfile, len(d.task.Assignees))
	copy(assignees, d.task.Assignees)
	d.mu.Unlock()

	d.board.updateTask(taskID, func(t *domain.Task) {
		t.Assignees = assignees
	})

	if assigned {
		d.board.submit("assign user", func(ctx context.Context) error {
			return d.store.AssignUser(ctx, projectID, taskID, user.ID)
		})
	} else {
		d.board.submit("unassign user", func(ctx context.Context) error {
			return d.store.UnassignUser(ctx, projectID, taskID, user.ID)
		})
	}
	return assigned, nil
}

// ToggleLabel flips the label's association with the selected task and
// keeps the board's denormalized copy in sync.
func (d *Detail) ToggleLabel(ctx context.Context, label domain.Label) (attached bool, err error) {
	d.mu.Lock()
	if d.task == nil {
		d.mu.Unlock()
		return false, errNoSelection
	}
	taskID, projectID := d.task.ID, d.task.ProjectID
	if d.task.HasLabel(label.ID) {
		kept := d.task.Labels[:0]
		for _, l := range d.task.Labels {
			if l.ID != label.ID {
				kept = append(kept, l)
			}
		}
		d.task.Labels = kept
		attached = false
	} else {
		d.task.Labels = append(d.task.Labels, label)
		attached = true
	}
	labels := make([]domain.Label, len(d.task.Labels))
	copy(labels, d.task.Labels)
	d.mu.Unlock()

	d.board.updateTask(taskID, func(t *domain.Task) {
		t.Labels = labels
	})

	if attached {
		d.board.submit("attach label", func(ctx context.Context) error {
			return d.store.AttachLabel(ctx, projectID, taskID, label.ID)
		})
	} else {
		d.board.submit("detach label", func(ctx context.Context) error {
			return d.store.DetachLabel(ctx, projectID, taskID, label.ID)
		})
	}
	return attached, nil
}

// DeleteLabel removes the label project-wide and strips it from the open
// view as well as every board task.
func (d *Detail) DeleteLabel(ctx context.Context, labelID string) error {
	if d.labels == nil {
		return errNoLabelManager
	}
	if err := d.labels.Delete(ctx, labelID); err != nil {
		return err
	}

	d.mu.Lock()
	if d.task != nil {
		kept := d.task.Labels[:0]
		for _, l := range d.task.Labels {
			if l.ID != labelID {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			d.task.Labels = nil
		} else {
			d.task.Labels = kept
		}
	}
	d.mu.Unlock()
	return nil
}
