package http

import (
	"github.com/fyrsmithlabs/taskd/internal/approval"
	"github.com/fyrsmithlabs/taskd/internal/extraction"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ExtractRequest is the request body for POST /api/v1/extract.
type ExtractRequest struct {
	Text         string `json:"text"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// ApplyRequest is the request body for POST /api/v1/extract/apply. When
// Result is set it is applied as given (an edited preview); otherwise Text
// is extracted and applied in one step.
type ApplyRequest struct {
	ExtractRequest
	Result *extraction.Result `json:"result,omitempty"`
}

// NoteRequest is the request body for POST /api/v1/notes/process.
type NoteRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NoteSavedResponse is the response body for POST /api/v1/notes.
type NoteSavedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TasksResponse is the response body for GET /api/v1/tasks.
type TasksResponse struct {
	Tasks []*tasks.Task `json:"tasks"`
}

// PendingResponse is the response body for GET /api/v1/pending.
type PendingResponse struct {
	Pending []*tasks.PendingTask `json:"pending"`
}

// ApproveResponse is the response body for POST /api/v1/pending/:id/approve.
type ApproveResponse struct {
	Task *tasks.Task `json:"task"`
}

// RejectResponse is the response body for POST /api/v1/pending/:id/reject.
type RejectResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BulkRequest is the request body for the bulk approve and reject endpoints.
type BulkRequest struct {
	IDs []string `json:"ids"`
}

// BulkResponse is the response body for the bulk approve and reject endpoints.
type BulkResponse struct {
	Resolved []string          `json:"resolved"`
	Tasks    []*tasks.Task     `json:"tasks,omitempty"`
	NotFound []string          `json:"not_found,omitempty"`
	Failed   map[string]string `json:"failed,omitempty"`
}

func newBulkResponse(r approval.BulkResult) BulkResponse {
	resolved := r.Resolved
	if resolved == nil {
		resolved = []string{}
	}
	return BulkResponse{
		Resolved: resolved,
		Tasks:    r.Tasks,
		NotFound: r.NotFound,
		Failed:   r.FailedMessages(),
	}
}

// ProviderTestResponse is the response body for POST /api/v1/provider/test.
type ProviderTestResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
}
