package board

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// State holds the authoritative in-memory task list for one project and
// is the only write path for task data. Board and detail surfaces share
// a single State instance by reference.
//
// Mutations to a single task's fields are not serialized against each
// other: two rapid edits may resolve remotely in either order and the
// later response wins. Reconciliation happens on the next Load.
type State struct {
	store  Store
	writer *AsyncWriter
	feed   Feed
	notify Notifier
	log    *log.Logger

	mu            sync.RWMutex
	projectID     string
	tasks         []domain.Task
	pendingDelete string
}

// NewState creates an unbound board state; Load binds it to a project.
// writer, feed and notify may be nil: remote writes then run inline and
// events/notifications are skipped.
func NewState(store Store, writer *AsyncWriter, feed Feed, notify Notifier, logger *log.Logger) *State {
	if store == nil {
		panic("board.NewState: store is required")
	}
	if logger == nil {
		logger = log.New()
	}
	return &State{store: store, writer: writer, feed: feed, notify: notify, log: logger}
}

// Load fetches the project's denormalized tasks and fully replaces the
// in-memory list. On failure the prior state is left untouched.
func (s *State) Load(ctx context.Context, projectID string) error {
	tasks, err := s.store.FetchBoard(ctx, projectID)
	if err != nil {
		return wrapRemote("fetch board", err)
	}

	s.mu.Lock()
	s.projectID = projectID
	s.tasks = tasks
	s.pendingDelete = ""
	s.mu.Unlock()
	return nil
}

// ProjectID returns the project the board is currently bound to.
func (s *State) ProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

// Tasks returns a snapshot of all tasks in load order.
func (s *State) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Task returns a copy of one task by id.
func (s *State) Task(taskID string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			return s.tasks[i].Clone(), true
		}
	}
	return domain.Task{}, false
}

// TasksInColumn returns a lazy, restartable sequence of the tasks in one
// column, in load order. Each range over the sequence observes the board
// as of that iteration.
func (s *State) TasksInColumn(status domain.Status) iter.Seq[domain.Task] {
	return func(yield func(domain.Task) bool) {
		s.mu.RLock()
		snapshot := make([]domain.Task, 0, len(s.tasks))
		for i := range s.tasks {
			if s.tasks[i].Status == status {
				snapshot = append(snapshot, s.tasks[i].Clone())
			}
		}
		s.mu.RUnlock()

		for _, t := range snapshot {
			if !yield(t) {
				return
			}
		}
	}
}

// MoveTask optimistically moves a task to another column. The in-memory
// status flips immediately; the remote write is handed to the writer and
// a failure is reported without rolling the local change back. Moving a
// task onto its current column is a no-op and issues no remote call.
// Any column may move to any other column; there are no forbidden edges.
func (s *State) MoveTask(ctx context.Context, taskID string, newStatus domain.Status) error {
	if !domain.ValidStatus(newStatus) {
		return domain.ValidationError{Field: "status", Reason: "unknown column " + string(newStatus)}
	}

	s.mu.Lock()
	idx := s.indexLocked(taskID)
	if idx < 0 {
		s.mu.Unlock()
		return domain.NotFoundError{Collection: "tasks", ID: taskID}
	}
	if s.tasks[idx].Status == newStatus {
		s.mu.Unlock()
		return nil
	}
	s.tasks[idx].Status = newStatus
	projectID := s.projectID
	s.mu.Unlock()

	status := newStatus
	s.submit("move task", func(ctx context.Context) error {
		if err := s.store.UpdateTask(ctx, projectID, taskID, TaskPatch{Status: &status}); err != nil {
			return err
		}
		s.publish(ctx, domain.Event{Type: domain.EventTaskMoved, ProjectID: projectID, TaskID: taskID, At: time.Now().UTC()})
		return nil
	})
	return nil
}

// CreateTask inserts a task with the given column as its initial status.
// The title must be non-empty after trimming; validation failures issue
// no remote call and the caller keeps the typed title for retry.
func (s *State) CreateTask(ctx context.Context, projectID, actorID string, status domain.Status, title string) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !domain.ValidStatus(status) {
		return domain.Task{}, domain.ValidationError{Field: "status", Reason: "unknown column " + string(status)}
	}

	created, err := s.store.InsertTask(ctx, domain.Task{
		ProjectID: projectID,
		Title:     title,
		Status:    status,
		CreatedBy: actorID,
	})
	if err != nil {
		return domain.Task{}, wrapRemote("create task", err)
	}

	s.mu.Lock()
	if s.projectID == projectID {
		s.tasks = append(s.tasks, created.Clone())
	}
	s.mu.Unlock()

	s.submit("publish task created", func(ctx context.Context) error {
		s.publish(ctx, domain.Event{Type: domain.EventTaskCreated, ProjectID: projectID, TaskID: created.ID, ActorID: actorID, At: time.Now().UTC()})
		return nil
	})
	return created, nil
}

// RequestDelete marks a task for deletion pending explicit confirmation.
func (s *State) RequestDelete(taskID string) {
	s.mu.Lock()
	s.pendingDelete = taskID
	s.mu.Unlock()
}

// CancelDelete discards a pending delete request.
func (s *State) CancelDelete() {
	s.mu.Lock()
	s.pendingDelete = ""
	s.mu.Unlock()
}

// ConfirmDelete deletes the task marked by RequestDelete.
func (s *State) ConfirmDelete(ctx context.Context) error {
	s.mu.Lock()
	taskID := s.pendingDelete
	s.pendingDelete = ""
	s.mu.Unlock()
	if taskID == "" {
		return nil
	}
	return s.DeleteTask(ctx, taskID)
}

// DeleteTask removes the task from the in-memory list and issues the
// remote delete. Deleting an id that is no longer present is a no-op.
// Sub-entities cascade in the remote store, not here.
func (s *State) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	idx := s.indexLocked(taskID)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
	projectID := s.projectID
	s.mu.Unlock()

	s.submit("delete task", func(ctx context.Context) error {
		err := s.store.DeleteTask(ctx, projectID, taskID)
		if err != nil && !domain.IsNotFound(err) {
			return err
		}
		s.publish(ctx, domain.Event{Type: domain.EventTaskDeleted, ProjectID: projectID, TaskID: taskID, At: time.Now().UTC()})
		return nil
	})
	return nil
}

// submit runs a remote write off the caller's path. With no writer the
// job runs inline and its failure is reported the same way the writer
// would: logged, notified, never returned.
func (s *State) submit(name string, fn func(ctx context.Context) error) {
	if s.writer != nil {
		s.writer.Submit(name, fn)
		return
	}
	if err := fn(context.Background()); err != nil {
		s.log.Errorf("%s failed: %v", name, err)
		notifyErr(s.notify, name+" failed")
	}
}

func (s *State) publish(ctx context.Context, ev domain.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.log.Warnf("publish %s event: %v", ev.Type, err)
	}
}

// indexLocked requires s.mu to be held.
func (s *State) indexLocked(taskID string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

// updateTask applies fn to the board's copy of a task under the lock.
// Detail and label surfaces use it to keep the column list consistent
// with their own views without a full reload.
func (s *State) updateTask(taskID string, fn func(t *domain.Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(taskID)
	if idx < 0 {
		return false
	}
	fn(&s.tasks[idx])
	return true
}

// stripLabel removes a deleted label from every in-memory task.
func (s *State) stripLabel(labelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		labels := s.tasks[i].Labels
		kept := labels[:0]
		for _, l := range labels {
			if l.ID != labelID {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			s.tasks[i].Labels = nil
		} else {
			s.tasks[i].Labels = kept
		}
	}
}
