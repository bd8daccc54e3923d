package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/board"
	"board-api/domain"
)

// fakeStore is a complete in-memory board.Store for handler tests.
type fakeStore struct {
	mu          sync.Mutex
	tasks       []domain.Task
	labels      []domain.Label
	checklist   map[string][]domain.ChecklistItem
	comments    map[string][]domain.Comment
	attachments map[string][]domain.Attachment
	profiles    []domain.UserProfile
	nextID      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		checklist:   map[string][]domain.ChecklistItem{},
		comments:    map[string][]domain.Comment{},
		attachments: map[string][]domain.Attachment{},
	}
}

func (f *fakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) FetchBoard(ctx context.Context, projectID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		if t.ProjectID == projectID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = f.genID("task")
	t.CreatedAt = time.Now().UTC()
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, projectID, taskID string, patch board.TaskPatch) error {
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, projectID, taskID string) error { return nil }

func (f *fakeStore) FetchChecklist(ctx context.Context, taskID string) ([]domain.ChecklistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChecklistItem(nil), f.checklist[taskID]...), nil
}

func (f *fakeStore) InsertChecklistItem(ctx context.Context, item domain.ChecklistItem) (domain.ChecklistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = f.genID("item")
	item.CreatedAt = time.Now().UTC()
	f.checklist[item.TaskID] = append(f.checklist[item.TaskID], item)
	return item, nil
}

func (f *fakeStore) SetChecklistItemDone(ctx context.Context, taskID, itemID string, done bool) error {
	return nil
}

func (f *fakeStore) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	return nil
}

func (f *fakeStore) FetchComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Comment(nil), f.comments[taskID]...), nil
}

func (f *fakeStore) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.genID("comment")
	c.CreatedAt = time.Now().UTC()
	for _, p := range f.profiles {
		if p.ID == c.AuthorID {
			c.AuthorName = p.Name
		}
	}
	f.comments[c.TaskID] = append(f.comments[c.TaskID], c)
	return c, nil
}

func (f *fakeStore) UpdateComment(ctx context.Context, taskID, commentID, content string) error {
	return nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, taskID, commentID string) error { return nil }

func (f *fakeStore) FetchAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Attachment(nil), f.attachments[taskID]...), nil
}

func (f *fakeStore) InsertAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.genID("file")
	a.UploadedAt = time.Now().UTC()
	f.attachments[a.TaskID] = append(f.attachments[a.TaskID], a)
	return a, nil
}

func (f *fakeStore) FetchLabels(ctx context.Context, projectID string) ([]domain.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Label(nil), f.labels...), nil
}

func (f *fakeStore) InsertLabel(ctx context.Context, l domain.Label) (domain.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID = f.genID("label")
	f.labels = append(f.labels, l)
	return l, nil
}

func (f *fakeStore) DeleteLabel(ctx context.Context, projectID, labelID string) error { return nil }

func (f *fakeStore) AttachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	return nil
}

func (f *fakeStore) DetachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	return nil
}

func (f *fakeStore) AssignUser(ctx context.Context, projectID, taskID, userID string) error {
	return nil
}

func (f *fakeStore) UnassignUser(ctx context.Context, projectID, taskID, userID string) error {
	return nil
}

func (f *fakeStore) FetchProfiles(ctx context.Context) ([]domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.UserProfile(nil), f.profiles...), nil
}

type fakeBlobs struct{}

func (fakeBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (fakeBlobs) PublicURL(key string) string { return "https://files.test/project-files/" + key }

type mockAuth struct {
	err error
}

func (m mockAuth) UserIDFromAuthHeader(string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "user-1", nil
}

func testLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(store *fakeStore, auth Authenticator) *echo.Echo {
	e := echo.New()
	sessions := NewSessions(store, fakeBlobs{}, nil, nil, nil, testLogger())
	Register(e, sessions, auth, testLogger())
	return e
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderAuthorization, "Bearer h.p.s")
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetBoard(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "Design homepage", Status: domain.StatusTodo}}
	store.labels = []domain.Label{{ID: "l1", ProjectID: "p1", Name: "Priority", Color: "#ef4444"}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodGet, "/api/projects/p1/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %#v", resp.Tasks)
	}
	if len(resp.Labels) != 1 {
		t.Fatalf("unexpected labels: %#v", resp.Labels)
	}
	if len(resp.Columns) != 6 || resp.Columns[0] != domain.StatusTodo {
		t.Fatalf("unexpected columns: %v", resp.Columns)
	}
	if len(resp.Palette) != 9 {
		t.Fatalf("unexpected palette size: %d", len(resp.Palette))
	}
}

func TestGetBoardUnauthorized(t *testing.T) {
	e := newTestServer(newFakeStore(), mockAuth{err: errors.New("bad token")})

	rec := doRequest(e, http.MethodGet, "/api/projects/p1/board", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetBoardSeedsStarterLabels(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodGet, "/api/projects/p1/board", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Labels) != 3 {
		t.Fatalf("expected 3 starter labels for a fresh project, got %d", len(resp.Labels))
	}
}

func TestPostTask(t *testing.T) {
	store := newFakeStore()
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks", `{"title":"  Ship it  ","status":"doing"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var created domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Title != "Ship it" || created.Status != domain.StatusDoing || created.CreatedBy != "user-1" {
		t.Fatalf("unexpected task: %#v", created)
	}
}

func TestPostTaskBlankTitle(t *testing.T) {
	e := newTestServer(newFakeStore(), mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks", `{"title":"   ","status":"todo"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostTaskUnknownField(t *testing.T) {
	e := newTestServer(newFakeStore(), mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks", `{"title":"a","status":"todo","bogus":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestPostMoveInvalidColumn(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks/t1/move", `{"status":"archived"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostMoveUnknownTask(t *testing.T) {
	e := newTestServer(newFakeStore(), mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks/ghost/move", `{"status":"done"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPostMove(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks/t1/move", `{"status":"review"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetTaskDetail(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	store.checklist["t1"] = []domain.ChecklistItem{{ID: "i1", TaskID: "t1", Title: "step"}}
	store.comments["t1"] = []domain.Comment{{ID: "c1", TaskID: "t1", Content: "hi"}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodGet, "/api/projects/p1/tasks/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var resp detailResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Task.ID != "t1" || len(resp.Checklist) != 1 || len(resp.Comments) != 1 {
		t.Fatalf("unexpected detail: %#v", resp)
	}
}

func TestPatchTaskTitle(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "Old", Status: domain.StatusTodo}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPatch, "/api/projects/p1/tasks/t1", `{"title":"New"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var task domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Title != "New" {
		t.Fatalf("expected renamed task, got %q", task.Title)
	}
}

func TestPatchTaskBadDueDate(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPatch, "/api/projects/p1/tasks/t1", `{"dueDate":"tomorrow"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostComment(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	store.profiles = []domain.UserProfile{{ID: "user-1", Name: "Ana"}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks/t1/comments", `{"content":" looks good "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var comment domain.Comment
	if err := sonic.Unmarshal(rec.Body.Bytes(), &comment); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if comment.Content != "looks good" || comment.AuthorName != "Ana" {
		t.Fatalf("unexpected comment: %#v", comment)
	}
}

func TestDeleteTask(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodDelete, "/api/projects/p1/tasks/t1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/api/projects/p1/tasks/t1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted task must be gone, got %d", rec.Code)
	}
}

func TestToggleLabel(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	store.labels = []domain.Label{{ID: "l1", ProjectID: "p1", Name: "Priority", Color: "#ef4444"}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks/t1/labels/l1/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var resp toggleResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Active {
		t.Fatal("first toggle must attach the label")
	}

	rec = doRequest(e, http.MethodPost, "/api/projects/p1/tasks/t1/labels/l1/toggle", "")
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Active {
		t.Fatal("second toggle must detach the label")
	}
}

func TestToggleAssigneeUnknownUser(t *testing.T) {
	store := newFakeStore()
	store.tasks = []domain.Task{{ID: "t1", ProjectID: "p1", Title: "a", Status: domain.StatusTodo}}
	e := newTestServer(store, mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/tasks/t1/assignees/ghost/toggle", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPostLabelOffPalette(t *testing.T) {
	e := newTestServer(newFakeStore(), mockAuth{})

	rec := doRequest(e, http.MethodPost, "/api/projects/p1/labels", `{"name":"Urgent","color":"#123456"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestServer(newFakeStore(), mockAuth{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
