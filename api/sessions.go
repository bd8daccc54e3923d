package api

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
)

// Sessions keeps one live board session per project. A session is
// created and hydrated on first access and shared by every request that
// follows.
type Sessions struct {
	store  board.Store
	blobs  board.BlobStore
	writer *board.AsyncWriter
	feed   board.Feed
	notify board.Notifier
	log    *log.Logger

	mu        sync.Mutex
	byProject map[string]*sessionEntry
}

// sessionEntry serializes first-access hydration: concurrent first
// requests for a project share one Load and one starter-label seed.
type sessionEntry struct {
	once sync.Once
	sess *board.Session
	err  error
}

func NewSessions(store board.Store, blobs board.BlobStore, writer *board.AsyncWriter, feed board.Feed, notify board.Notifier, logger *log.Logger) *Sessions {
	if logger == nil {
		logger = log.New()
	}
	return &Sessions{
		store:     store,
		blobs:     blobs,
		writer:    writer,
		feed:      feed,
		notify:    notify,
		log:       logger,
		byProject: make(map[string]*sessionEntry),
	}
}

// Get returns the project's session, loading the board and its label
// set on first access. Hydration runs at most once per project; losers
// of the race wait for the winner instead of loading again.
func (s *Sessions) Get(ctx context.Context, projectID string) (*board.Session, error) {
	s.mu.Lock()
	e, ok := s.byProject[projectID]
	if !ok {
		e = &sessionEntry{}
		s.byProject[projectID] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		sess := board.NewSession(s.store, s.blobs, s.writer, s.feed, s.notify, s.log)
		if e.err = sess.State.Load(ctx, projectID); e.err != nil {
			return
		}
		if e.err = sess.Labels.Ensure(ctx, projectID); e.err != nil {
			return
		}
		e.sess = sess
		s.log.Debugf("session hydrated for project %s", projectID)
	})

	if e.err != nil {
		// A failed hydration is not cached; the next request retries.
		s.mu.Lock()
		if s.byProject[projectID] == e {
			delete(s.byProject, projectID)
		}
		s.mu.Unlock()
		return nil, e.err
	}
	return e.sess, nil
}

// Profiles returns the workspace member directory.
func (s *Sessions) Profiles(ctx context.Context) ([]domain.UserProfile, error) {
	return s.store.FetchProfiles(ctx)
}
