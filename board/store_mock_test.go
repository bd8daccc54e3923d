package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"board-api/domain"
)

// mockStore records every call so tests can assert exactly which remote
// writes were issued.
type mockStore struct {
	mu sync.Mutex

	board    []domain.Task
	boardErr error

	checklist   []domain.ChecklistItem
	comments    []domain.Comment
	attachments []domain.Attachment
	labels      []domain.Label
	profiles    []domain.UserProfile

	errFetchChecklist   error
	errFetchComments    error
	errFetchAttachments error
	errInsertTask       error
	errInsertComment    error
	errInsertAttachment error
	errUpdateTask       error
	errUpdateComment    error
	errDeleteLabel      error

	nextID int

	fetchBoardCalls    int
	insertTaskCalls    int
	updateTaskCalls    int
	deleteTaskCalls    int
	insertItemCalls    int
	setItemDoneCalls   int
	deleteItemCalls    int
	insertCommentCalls int
	updateCommentCalls int
	deleteCommentCalls int
	insertAttachCalls  int
	fetchLabelsCalls   int
	insertLabelCalls   int
	deleteLabelCalls   int
	attachLabelCalls   int
	detachLabelCalls   int
	assignCalls        int
	unassignCalls      int

	lastPatch     TaskPatch
	lastPatchTask string
	lastDone      bool
}

func (m *mockStore) genID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockStore) FetchBoard(ctx context.Context, projectID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchBoardCalls++
	if m.boardErr != nil {
		return nil, m.boardErr
	}
	out := make([]domain.Task, len(m.board))
	for i, t := range m.board {
		out[i] = t.Clone()
	}
	return out, nil
}

func (m *mockStore) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertTaskCalls++
	if m.errInsertTask != nil {
		return domain.Task{}, m.errInsertTask
	}
	t.ID = m.genID("task")
	t.CreatedAt = time.Now().UTC()
	m.board = append(m.board, t)
	return t, nil
}

func (m *mockStore) UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateTaskCalls++
	m.lastPatch = patch
	m.lastPatchTask = taskID
	return m.errUpdateTask
}

func (m *mockStore) DeleteTask(ctx context.Context, projectID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteTaskCalls++
	return nil
}

func (m *mockStore) FetchChecklist(ctx context.Context, taskID string) ([]domain.ChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errFetchChecklist != nil {
		return nil, m.errFetchChecklist
	}
	out := make([]domain.ChecklistItem, len(m.checklist))
	copy(out, m.checklist)
	return out, nil
}

func (m *mockStore) InsertChecklistItem(ctx context.Context, item domain.ChecklistItem) (domain.ChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertItemCalls++
	item.ID = m.genID("item")
	item.CreatedAt = time.Now().UTC()
	m.checklist = append(m.checklist, item)
	return item, nil
}

func (m *mockStore) SetChecklistItemDone(ctx context.Context, taskID, itemID string, done bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setItemDoneCalls++
	m.lastDone = done
	return nil
}

func (m *mockStore) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteItemCalls++
	return nil
}

func (m *mockStore) FetchComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errFetchComments != nil {
		return nil, m.errFetchComments
	}
	out := make([]domain.Comment, len(m.comments))
	copy(out, m.comments)
	return out, nil
}

func (m *mockStore) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCommentCalls++
	if m.errInsertComment != nil {
		return domain.Comment{}, m.errInsertComment
	}
	c.ID = m.genID("comment")
	c.AuthorName = "Test User"
	c.CreatedAt = time.Now().UTC()
	m.comments = append(m.comments, c)
	return c, nil
}

func (m *mockStore) UpdateComment(ctx context.Context, taskID, commentID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCommentCalls++
	return m.errUpdateComment
}

func (m *mockStore) DeleteComment(ctx context.Context, taskID, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCommentCalls++
	return nil
}

func (m *mockStore) FetchAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errFetchAttachments != nil {
		return nil, m.errFetchAttachments
	}
	out := make([]domain.Attachment, len(m.attachments))
	copy(out, m.attachments)
	return out, nil
}

func (m *mockStore) InsertAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertAttachCalls++
	if m.errInsertAttachment != nil {
		return domain.Attachment{}, m.errInsertAttachment
	}
	a.ID = m.genID("file")
	a.UploadedAt = time.Now().UTC()
	m.attachments = append(m.attachments, a)
	return a, nil
}

func (m *mockStore) FetchLabels(ctx context.Context, projectID string) ([]domain.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchLabelsCalls++
	out := make([]domain.Label, len(m.labels))
	copy(out, m.labels)
	return out, nil
}

func (m *mockStore) InsertLabel(ctx context.Context, l domain.Label) (domain.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLabelCalls++
	l.ID = m.genID("label")
	m.labels = append(m.labels, l)
	return l, nil
}

func (m *mockStore) DeleteLabel(ctx context.Context, projectID, labelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLabelCalls++
	if m.errDeleteLabel != nil {
		return m.errDeleteLabel
	}
	for i := range m.labels {
		if m.labels[i].ID == labelID {
			m.labels = append(m.labels[:i], m.labels[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockStore) AttachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachLabelCalls++
	return nil
}

func (m *mockStore) DetachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLabelCalls++
	return nil
}

func (m *mockStore) AssignUser(ctx context.Context, projectID, taskID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignCalls++
	return nil
}

func (m *mockStore) UnassignUser(ctx context.Context, projectID, taskID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unassignCalls++
	return nil
}

func (m *mockStore) FetchProfiles(ctx context.Context) ([]domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.UserProfile, len(m.profiles))
	copy(out, m.profiles)
	return out, nil
}

func (m *mockStore) calls(get func(*mockStore) int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return get(m)
}

// mockBlobs is an in-memory BlobStore.
type mockBlobs struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func newMockBlobs() *mockBlobs {
	return &mockBlobs{uploads: map[string][]byte{}}
}

func (b *mockBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.uploads[key] = data
	return nil
}

func (b *mockBlobs) PublicURL(key string) string {
	return "https://files.test/project-files/" + key
}
