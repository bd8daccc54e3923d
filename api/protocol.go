package api

import "board-api/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

const attachmentMaxSize = 10 << 20 // 10 MiB

type boardResponse struct {
	Tasks   []domain.Task         `json:"tasks"`
	Labels  []domain.Label        `json:"labels"`
	Columns []domain.Status       `json:"columns"`
	Palette []domain.PaletteColor `json:"palette"`
}

type detailResponse struct {
	Task        domain.Task            `json:"task"`
	Checklist   []domain.ChecklistItem `json:"checklist"`
	Comments    []domain.Comment       `json:"comments"`
	Attachments []domain.Attachment    `json:"attachments"`
}

type createTaskRequest struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

type moveTaskRequest struct {
	Status string `json:"status"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"dueDate"`
}

type checklistItemRequest struct {
	Title string `json:"title"`
}

type commentRequest struct {
	Content string `json:"content"`
}

type createLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type toggleResponse struct {
	Active bool `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}
