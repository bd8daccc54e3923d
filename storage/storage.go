package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"board-api/board"
	"board-api/domain"
)

const profilesPartition = "profile"

// Storage persists board data in Azure Table Storage. Tasks and labels
// are partitioned by project, task detail rows by task, join rows by
// project with a composite row key.
type Storage struct {
	tasks       *aztables.Client
	labels      *aztables.Client
	taskLabels  *aztables.Client
	assignees   *aztables.Client
	checklists  *aztables.Client
	comments    *aztables.Client
	attachments *aztables.Client
	profiles    *aztables.Client
}

// Tables names the eight tables one Storage instance works against.
type Tables struct {
	Tasks       string
	Labels      string
	TaskLabels  string
	Assignees   string
	Checklists  string
	Comments    string
	Attachments string
	Profiles    string
}

// DefaultTables returns the table names used in every environment.
func DefaultTables() Tables {
	return Tables{
		Tasks:       "tasks",
		Labels:      "labels",
		TaskLabels:  "tasklabels",
		Assignees:   "taskassignees",
		Checklists:  "checklists",
		Comments:    "taskcomments",
		Attachments: "taskattachments",
		Profiles:    "profiles",
	}
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		tasks:       svc.NewClient(tables.Tasks),
		labels:      svc.NewClient(tables.Labels),
		taskLabels:  svc.NewClient(tables.TaskLabels),
		assignees:   svc.NewClient(tables.Assignees),
		checklists:  svc.NewClient(tables.Checklists),
		comments:    svc.NewClient(tables.Comments),
		attachments: svc.NewClient(tables.Attachments),
		profiles:    svc.NewClient(tables.Profiles),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Status      string `json:"Status"`
	Description string `json:"Description"`
	DueDate     string `json:"DueDate"`
	CreatedBy   string `json:"CreatedBy"`
	CreatedAt   string `json:"CreatedAt"`
}

type labelEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Color string `json:"Color"`
}

type joinEntity struct {
	aztables.Entity
}

type checklistEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Completed bool   `json:"Completed"`
	CreatedAt string `json:"CreatedAt"`
}

type commentEntity struct {
	aztables.Entity
	AuthorID  string `json:"AuthorId"`
	Content   string `json:"Content"`
	CreatedAt string `json:"CreatedAt"`
}

type attachmentEntity struct {
	aztables.Entity
	FileName   string `json:"FileName"`
	FileURL    string `json:"FileUrl"`
	UploadedAt string `json:"UploadedAt"`
}

type profileEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Email string `json:"Email"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		ProjectID:   ent.PartitionKey,
		Title:       ent.Title,
		Status:      domain.Status(ent.Status),
		Description: ent.Description,
		CreatedBy:   ent.CreatedBy,
		CreatedAt:   parseTime(ent.CreatedAt),
	}
	if ent.DueDate != "" {
		due := parseTime(ent.DueDate)
		t.DueDate = &due
	}
	return t, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// joinRowKey builds the composite row key used by join tables.
func joinRowKey(left, right string) string {
	return left + "_" + right
}

func partitionFilter(pk string) string {
	return "PartitionKey eq '" + pk + "'"
}

// rowPrefixFilter selects rows in pk whose row key starts with prefix.
func rowPrefixFilter(pk, prefix string) string {
	return fmt.Sprintf("PartitionKey eq '%s' and RowKey ge '%s' and RowKey lt '%s'", pk, prefix, prefixRangeEnd(prefix))
}

// prefixRangeEnd is the exclusive upper bound of the key range starting
// with prefix: the prefix with its last byte bumped by one, so every
// suffix sorts below it.
func prefixRangeEnd(prefix string) string {
	return prefix[:len(prefix)-1] + string(prefix[len(prefix)-1]+1)
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func mapNotFound(err error, collection, id string) error {
	if isStatus(err, http.StatusNotFound) {
		return domain.NotFoundError{Collection: collection, ID: id}
	}
	return err
}

func listRaw(ctx context.Context, client *aztables.Client, filter string) ([][]byte, error) {
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out [][]byte
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Entities...)
	}
	return out, nil
}

// FetchBoard assembles the project's full task list: rows from the
// tasks table joined in memory with labels and assignee profiles. The
// five table scans run concurrently.
func (s *Storage) FetchBoard(ctx context.Context, projectID string) ([]domain.Task, error) {
	var (
		wg       sync.WaitGroup
		taskRows [][]byte
		labels   []domain.Label
		labelJ   [][]byte
		assignJ  [][]byte
		profiles []domain.UserProfile
		errs     [5]error
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		taskRows, errs[0] = listRaw(ctx, s.tasks, partitionFilter(projectID))
	}()
	go func() {
		defer wg.Done()
		labels, errs[1] = s.FetchLabels(ctx, projectID)
	}()
	go func() {
		defer wg.Done()
		labelJ, errs[2] = listRaw(ctx, s.taskLabels, partitionFilter(projectID))
	}()
	go func() {
		defer wg.Done()
		assignJ, errs[3] = listRaw(ctx, s.assignees, partitionFilter(projectID))
	}()
	go func() {
		defer wg.Done()
		profiles, errs[4] = s.FetchProfiles(ctx)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	tasks := make([]domain.Task, 0, len(taskRows))
	for _, row := range taskRows {
		t, err := decodeTaskEntity(row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	labelsByID := make(map[string]domain.Label, len(labels))
	for _, l := range labels {
		labelsByID[l.ID] = l
	}
	profilesByID := make(map[string]domain.UserProfile, len(profiles))
	for _, p := range profiles {
		profilesByID[p.ID] = p
	}
	byTask := make(map[string]*domain.Task, len(tasks))
	for i := range tasks {
		byTask[tasks[i].ID] = &tasks[i]
	}

	attachJoins(byTask, labelJ, func(t *domain.Task, id string) {
		if l, ok := labelsByID[id]; ok {
			t.Labels = append(t.Labels, l)
		}
	})
	attachJoins(byTask, assignJ, func(t *domain.Task, id string) {
		if p, ok := profilesByID[id]; ok {
			t.Assignees = append(t.Assignees, p)
		}
	})

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func attachJoins(byTask map[string]*domain.Task, rows [][]byte, apply func(*domain.Task, string)) {
	for _, row := range rows {
		var ent joinEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			continue
		}
		taskID, rightID, ok := splitJoinRowKey(ent.RowKey)
		if !ok {
			continue
		}
		if t, found := byTask[taskID]; found {
			apply(t, rightID)
		}
	}
}

func splitJoinRowKey(rk string) (left, right string, ok bool) {
	for i := len(rk) - 1; i >= 0; i-- {
		if rk[i] == '_' {
			return rk[:i], rk[i+1:], true
		}
	}
	return "", "", false
}

func (s *Storage) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()

	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.ProjectID, RowKey: t.ID},
		Title:       t.Title,
		Status:      string(t.Status),
		Description: t.Description,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   formatTime(t.CreatedAt),
	}
	if t.DueDate != nil {
		ent.DueDate = formatTime(*t.DueDate)
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.tasks.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Storage) UpdateTask(ctx context.Context, projectID, taskID string, patch board.TaskPatch) error {
	props := map[string]any{
		"PartitionKey": projectID,
		"RowKey":       taskID,
	}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Description != nil {
		props["Description"] = *patch.Description
	}
	if patch.Status != nil {
		props["Status"] = string(*patch.Status)
	}
	if patch.DueDate != nil {
		props["DueDate"] = formatTime(*patch.DueDate)
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.tasks.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return mapNotFound(err, "tasks", taskID)
}

// DeleteTask removes the task row together with its join rows and
// detail rows so nothing dangles.
func (s *Storage) DeleteTask(ctx context.Context, projectID, taskID string) error {
	if _, err := s.tasks.DeleteEntity(ctx, projectID, taskID, nil); err != nil {
		return mapNotFound(err, "tasks", taskID)
	}
	for _, client := range []*aztables.Client{s.taskLabels, s.assignees} {
		if err := s.deleteMatching(ctx, client, rowPrefixFilter(projectID, taskID+"_")); err != nil {
			return err
		}
	}
	for _, client := range []*aztables.Client{s.checklists, s.comments, s.attachments} {
		if err := s.deleteMatching(ctx, client, partitionFilter(taskID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) deleteMatching(ctx context.Context, client *aztables.Client, filter string) error {
	rows, err := listRaw(ctx, client, filter)
	if err != nil {
		return err
	}
	for _, row := range rows {
		var ent joinEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return err
		}
		if _, err := client.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil && !isStatus(err, http.StatusNotFound) {
			return err
		}
	}
	return nil
}

func (s *Storage) FetchChecklist(ctx context.Context, taskID string) ([]domain.ChecklistItem, error) {
	rows, err := listRaw(ctx, s.checklists, partitionFilter(taskID))
	if err != nil {
		return nil, err
	}
	items := make([]domain.ChecklistItem, 0, len(rows))
	for _, row := range rows {
		var ent checklistEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		items = append(items, domain.ChecklistItem{
			ID:        ent.RowKey,
			TaskID:    ent.PartitionKey,
			Title:     ent.Title,
			Completed: ent.Completed,
			CreatedAt: parseTime(ent.CreatedAt),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (s *Storage) InsertChecklistItem(ctx context.Context, item domain.ChecklistItem) (domain.ChecklistItem, error) {
	item.ID = uuid.NewString()
	item.CreatedAt = time.Now().UTC()

	ent := checklistEntity{
		Entity:    aztables.Entity{PartitionKey: item.TaskID, RowKey: item.ID},
		Title:     item.Title,
		Completed: item.Completed,
		CreatedAt: formatTime(item.CreatedAt),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	if _, err := s.checklists.AddEntity(ctx, data, nil); err != nil {
		return domain.ChecklistItem{}, err
	}
	return item, nil
}

func (s *Storage) SetChecklistItemDone(ctx context.Context, taskID, itemID string, done bool) error {
	props := map[string]any{
		"PartitionKey": taskID,
		"RowKey":       itemID,
		"Completed":    done,
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.checklists.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return mapNotFound(err, "checklists", itemID)
}

func (s *Storage) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	_, err := s.checklists.DeleteEntity(ctx, taskID, itemID, nil)
	return mapNotFound(err, "checklists", itemID)
}

// FetchComments returns the task's comments joined with the author
// profiles so callers get display names in one round trip.
func (s *Storage) FetchComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := listRaw(ctx, s.comments, partitionFilter(taskID))
	if err != nil {
		return nil, err
	}
	profiles, err := s.FetchProfiles(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.Name
	}

	comments := make([]domain.Comment, 0, len(rows))
	for _, row := range rows {
		var ent commentEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		comments = append(comments, domain.Comment{
			ID:         ent.RowKey,
			TaskID:     ent.PartitionKey,
			AuthorID:   ent.AuthorID,
			AuthorName: names[ent.AuthorID],
			Content:    ent.Content,
			CreatedAt:  parseTime(ent.CreatedAt),
		})
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

func (s *Storage) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()

	ent := commentEntity{
		Entity:    aztables.Entity{PartitionKey: c.TaskID, RowKey: c.ID},
		AuthorID:  c.AuthorID,
		Content:   c.Content,
		CreatedAt: formatTime(c.CreatedAt),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Comment{}, err
	}
	if _, err := s.comments.AddEntity(ctx, data, nil); err != nil {
		return domain.Comment{}, err
	}

	if prof, err := s.profiles.GetEntity(ctx, profilesPartition, c.AuthorID, nil); err == nil {
		var ent profileEntity
		if err := json.Unmarshal(prof.Value, &ent); err == nil {
			c.AuthorName = ent.Name
		}
	}
	return c, nil
}

func (s *Storage) UpdateComment(ctx context.Context, taskID, commentID, content string) error {
	props := map[string]any{
		"PartitionKey": taskID,
		"RowKey":       commentID,
		"Content":      content,
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.comments.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return mapNotFound(err, "taskcomments", commentID)
}

func (s *Storage) DeleteComment(ctx context.Context, taskID, commentID string) error {
	_, err := s.comments.DeleteEntity(ctx, taskID, commentID, nil)
	return mapNotFound(err, "taskcomments", commentID)
}

// FetchAttachments returns the task's files newest first.
func (s *Storage) FetchAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	rows, err := listRaw(ctx, s.attachments, partitionFilter(taskID))
	if err != nil {
		return nil, err
	}
	files := make([]domain.Attachment, 0, len(rows))
	for _, row := range rows {
		var ent attachmentEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		files = append(files, domain.Attachment{
			ID:         ent.RowKey,
			TaskID:     ent.PartitionKey,
			FileName:   ent.FileName,
			FileURL:    ent.FileURL,
			UploadedAt: parseTime(ent.UploadedAt),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].UploadedAt.After(files[j].UploadedAt) })
	return files, nil
}

func (s *Storage) InsertAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error) {
	a.ID = uuid.NewString()
	a.UploadedAt = time.Now().UTC()

	ent := attachmentEntity{
		Entity:     aztables.Entity{PartitionKey: a.TaskID, RowKey: a.ID},
		FileName:   a.FileName,
		FileURL:    a.FileURL,
		UploadedAt: formatTime(a.UploadedAt),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Attachment{}, err
	}
	if _, err := s.attachments.AddEntity(ctx, data, nil); err != nil {
		return domain.Attachment{}, err
	}
	return a, nil
}

func (s *Storage) FetchLabels(ctx context.Context, projectID string) ([]domain.Label, error) {
	rows, err := listRaw(ctx, s.labels, partitionFilter(projectID))
	if err != nil {
		return nil, err
	}
	labels := make([]domain.Label, 0, len(rows))
	for _, row := range rows {
		var ent labelEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		labels = append(labels, domain.Label{
			ID:        ent.RowKey,
			ProjectID: ent.PartitionKey,
			Name:      ent.Name,
			Color:     ent.Color,
		})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels, nil
}

func (s *Storage) InsertLabel(ctx context.Context, l domain.Label) (domain.Label, error) {
	l.ID = uuid.NewString()

	ent := labelEntity{
		Entity: aztables.Entity{PartitionKey: l.ProjectID, RowKey: l.ID},
		Name:   l.Name,
		Color:  l.Color,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Label{}, err
	}
	if _, err := s.labels.AddEntity(ctx, data, nil); err != nil {
		return domain.Label{}, err
	}
	return l, nil
}

// DeleteLabel removes the label row and every task join that points at
// it. Join row keys end with the label id, so the partition is scanned
// and matched by suffix.
func (s *Storage) DeleteLabel(ctx context.Context, projectID, labelID string) error {
	if _, err := s.labels.DeleteEntity(ctx, projectID, labelID, nil); err != nil {
		return mapNotFound(err, "labels", labelID)
	}

	rows, err := listRaw(ctx, s.taskLabels, partitionFilter(projectID))
	if err != nil {
		return err
	}
	for _, row := range rows {
		var ent joinEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return err
		}
		if _, right, ok := splitJoinRowKey(ent.RowKey); !ok || right != labelID {
			continue
		}
		if _, err := s.taskLabels.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil && !isStatus(err, http.StatusNotFound) {
			return err
		}
	}
	return nil
}

func (s *Storage) AttachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	return s.addJoin(ctx, s.taskLabels, projectID, joinRowKey(taskID, labelID))
}

func (s *Storage) DetachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	return s.deleteJoin(ctx, s.taskLabels, projectID, joinRowKey(taskID, labelID))
}

func (s *Storage) AssignUser(ctx context.Context, projectID, taskID, userID string) error {
	return s.addJoin(ctx, s.assignees, projectID, joinRowKey(taskID, userID))
}

func (s *Storage) UnassignUser(ctx context.Context, projectID, taskID, userID string) error {
	return s.deleteJoin(ctx, s.assignees, projectID, joinRowKey(taskID, userID))
}

// addJoin inserts a join row; an existing row means the relation is
// already in place and is not an error.
func (s *Storage) addJoin(ctx context.Context, client *aztables.Client, pk, rk string) error {
	data, err := json.Marshal(joinEntity{Entity: aztables.Entity{PartitionKey: pk, RowKey: rk}})
	if err != nil {
		return err
	}
	if _, err := client.AddEntity(ctx, data, nil); err != nil && !isStatus(err, http.StatusConflict) {
		return err
	}
	return nil
}

func (s *Storage) deleteJoin(ctx context.Context, client *aztables.Client, pk, rk string) error {
	if _, err := client.DeleteEntity(ctx, pk, rk, nil); err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func (s *Storage) FetchProfiles(ctx context.Context) ([]domain.UserProfile, error) {
	rows, err := listRaw(ctx, s.profiles, partitionFilter(profilesPartition))
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.UserProfile, 0, len(rows))
	for _, row := range rows {
		var ent profileEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		profiles = append(profiles, domain.UserProfile{
			ID:    ent.RowKey,
			Name:  ent.Name,
			Email: ent.Email,
		})
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}
