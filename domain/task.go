package domain

import "time"

// Status identifies the board column a task currently sits in.
type Status string

const (
	StatusTodo     Status = "todo"
	StatusDoing    Status = "doing"
	StatusBlocked  Status = "blocked"
	StatusReview   Status = "review"
	StatusDone     Status = "done"
	StatusCanceled Status = "canceled"
)

var columns = []Status{
	StatusTodo,
	StatusDoing,
	StatusBlocked,
	StatusReview,
	StatusDone,
	StatusCanceled,
}

// Columns returns the fixed, ordered set of board lanes. Every lane is
// rendered even when empty, so the order here is the render order.
func Columns() []Status {
	out := make([]Status, len(columns))
	copy(out, columns)
	return out
}

// ValidStatus reports whether s belongs to the fixed column set.
func ValidStatus(s Status) bool {
	for _, c := range columns {
		if c == s {
			return true
		}
	}
	return false
}

// UserProfile is a reference to a system user.
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Task is a denormalized board item: the stored row plus its joined
// labels and assignees, flattened for rendering.
type Task struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"projectId"`
	Title       string        `json:"title"`
	Status      Status        `json:"status"`
	Description string        `json:"description,omitempty"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	Labels      []Label       `json:"labels,omitempty"`
	Assignees   []UserProfile `json:"assignees,omitempty"`
}

// Clone returns a deep copy so callers can hand tasks across goroutines
// without sharing the label/assignee slices.
func (t Task) Clone() Task {
	out := t
	if t.Labels != nil {
		out.Labels = make([]Label, len(t.Labels))
		copy(out.Labels, t.Labels)
	}
	if t.Assignees != nil {
		out.Assignees = make([]UserProfile, len(t.Assignees))
		copy(out.Assignees, t.Assignees)
	}
	if t.DueDate != nil {
		due := *t.DueDate
		out.DueDate = &due
	}
	return out
}

// HasLabel reports whether the task currently references the label.
func (t Task) HasLabel(labelID string) bool {
	for _, l := range t.Labels {
		if l.ID == labelID {
			return true
		}
	}
	return false
}

// HasAssignee reports whether the user is currently assigned.
func (t Task) HasAssignee(userID string) bool {
	for _, u := range t.Assignees {
		if u.ID == userID {
			return true
		}
	}
	return false
}
