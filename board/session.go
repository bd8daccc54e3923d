package board

import (
	log "github.com/sirupsen/logrus"
)

// Session wires the four board surfaces of one project around a single
// shared State instance. All consuming views read the same State and
// observe each other's mutations; none of them copies task data.
type Session struct {
	State  *State
	Drag   *DragCoordinator
	Detail *Detail
	Labels *LabelManager

	store  Store
	blobs  BlobStore
	notify Notifier
	log    *log.Logger
}

func NewSession(store Store, blobs BlobStore, writer *AsyncWriter, feed Feed, notify Notifier, logger *log.Logger) *Session {
	state := NewState(store, writer, feed, notify, logger)
	labels := NewLabelManager(store, state, logger)
	return &Session{
		State:  state,
		Drag:   NewDragCoordinator(state),
		Detail: NewDetail(state, store, blobs, labels, notify, logger),
		Labels: labels,
		store:  store,
		blobs:  blobs,
		notify: notify,
		log:    logger,
	}
}

// NewDetail returns an additional detail view over the same shared
// State. Callers editing different tasks concurrently must each hold
// their own view; a selection switched mid-edit on a shared view would
// commit the edit to the newly selected task.
func (s *Session) NewDetail() *Detail {
	return NewDetail(s.State, s.store, s.blobs, s.Labels, s.notify, s.log)
}
