package board

import (
	"context"
	"sync"

	"board-api/domain"
)

// DragCoordinator translates a pointer-drag gesture into at most one
// status mutation. It is independent of any input-handling library: the
// presentation layer forwards its start/over/end callbacks here.
type DragCoordinator struct {
	board *State

	mu     sync.Mutex
	active string
	hover  domain.Status
}

func NewDragCoordinator(board *State) *DragCoordinator {
	return &DragCoordinator{board: board}
}

// DragStart records the source task. Starting a new gesture replaces any
// gesture still in flight.
func (d *DragCoordinator) DragStart(taskID string) {
	d.mu.Lock()
	d.active = taskID
	d.hover = ""
	d.mu.Unlock()
}

// DragOver records the column currently hovered. It is idempotent and
// may be called many times per gesture; it never issues a write. Unknown
// column ids are ignored.
func (d *DragCoordinator) DragOver(column domain.Status) {
	if !domain.ValidStatus(column) {
		return
	}
	d.mu.Lock()
	if d.active != "" {
		d.hover = column
	}
	d.mu.Unlock()
}

// Active returns the task being dragged, if any.
func (d *DragCoordinator) Active() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active, d.active != ""
}

// Hover returns the current drop target for drop-zone highlighting.
func (d *DragCoordinator) Hover() (domain.Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hover, d.hover != ""
}

// Cancel discards the gesture without any mutation.
func (d *DragCoordinator) Cancel() {
	d.mu.Lock()
	d.active = ""
	d.hover = ""
	d.mu.Unlock()
}

// DragEnd finalizes the gesture. An empty column means the pointer was
// released outside any lane: the drag is discarded. Dropping a task onto
// its current column is a no-op. At most one mutation is committed per
// completed gesture; it reports whether a move was issued.
func (d *DragCoordinator) DragEnd(ctx context.Context, column domain.Status) (bool, error) {
	d.mu.Lock()
	taskID := d.active
	d.active = ""
	d.hover = ""
	d.mu.Unlock()

	if taskID == "" || column == "" || !domain.ValidStatus(column) {
		return false, nil
	}

	current, ok := d.board.Task(taskID)
	if !ok {
		return false, nil
	}
	if current.Status == column {
		return false, nil
	}

	if err := d.board.MoveTask(ctx, taskID, column); err != nil {
		return false, err
	}
	return true, nil
}
