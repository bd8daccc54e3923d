package board

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// LabelManager owns the project-scoped label vocabulary. Labels are
// shared across tasks; deleting one must leave no dangling reference in
// memory or in the remote store.
type LabelManager struct {
	store Store
	board *State
	log   *log.Logger

	mu        sync.Mutex
	projectID string
	labels    []domain.Label
}

func NewLabelManager(store Store, board *State, logger *log.Logger) *LabelManager {
	if logger == nil {
		logger = log.New()
	}
	return &LabelManager{store: store, board: board, log: logger}
}

// Ensure loads the project's labels, seeding the fixed starter set when
// the project has none on first access.
func (m *LabelManager) Ensure(ctx context.Context, projectID string) error {
	labels, err := m.store.FetchLabels(ctx, projectID)
	if err != nil {
		return wrapRemote("fetch labels", err)
	}

	if len(labels) == 0 {
		for _, l := range domain.StarterLabels(projectID) {
			created, err := m.store.InsertLabel(ctx, l)
			if err != nil {
				return wrapRemote("seed labels", err)
			}
			labels = append(labels, created)
		}
		m.log.Infof("seeded %d starter labels for project %s", len(labels), projectID)
	}

	m.mu.Lock()
	m.projectID = projectID
	m.labels = labels
	m.mu.Unlock()
	return nil
}

// All returns a snapshot of the project's labels.
func (m *LabelManager) All() []domain.Label {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Label, len(m.labels))
	copy(out, m.labels)
	return out
}

// Label returns one label by id.
func (m *LabelManager) Label(labelID string) (domain.Label, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.labels {
		if l.ID == labelID {
			return l, true
		}
	}
	return domain.Label{}, false
}

// Create adds a label to the project. The name is required and the color
// must come from the closed preset palette.
func (m *LabelManager) Create(ctx context.Context, projectID, name, color string) (domain.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Label{}, domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !domain.ValidColor(color) {
		return domain.Label{}, domain.ValidationError{Field: "color", Reason: "not in the preset palette"}
	}

	created, err := m.store.InsertLabel(ctx, domain.Label{ProjectID: projectID, Name: name, Color: color})
	if err != nil {
		return domain.Label{}, wrapRemote("create label", err)
	}

	m.mu.Lock()
	if m.projectID == projectID {
		m.labels = append(m.labels, created)
	}
	m.mu.Unlock()
	return created, nil
}

// Delete removes the label project-wide: the remote row and its task
// joins, the manager's set, and every board task that references it.
func (m *LabelManager) Delete(ctx context.Context, labelID string) error {
	m.mu.Lock()
	projectID := m.projectID
	m.mu.Unlock()

	if err := m.store.DeleteLabel(ctx, projectID, labelID); err != nil && !domain.IsNotFound(err) {
		return wrapRemote("delete label", err)
	}

	m.mu.Lock()
	for i := range m.labels {
		if m.labels[i].ID == labelID {
			m.labels = append(m.labels[:i], m.labels[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if m.board != nil {
		m.board.stripLabel(labelID)
	}
	return nil
}
