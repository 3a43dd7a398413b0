package deepl

import "fmt"

// TaskState is the lifecycle of one provider-side document translation.
type TaskState string

const (
	StateNotStarted TaskState = "not-started"
	StateUploaded   TaskState = "uploaded"
	StateProcessing TaskState = "processing"
	StateDone       TaskState = "done"
	StateError      TaskState = "error"
)

// Task tracks one document through the upload → poll → download flow.
// DocumentID and DocumentKey are assigned together on a successful upload;
// neither status polling nor the result fetch is attempted without both.
type Task struct {
	FilePath    string
	State       TaskState
	DocumentID  string
	DocumentKey string
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.State == StateDone || t.State == StateError
}

type uploadResponse struct {
	DocumentID  string `json:"document_id"`
	DocumentKey string `json:"document_key"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type usageResponse struct {
	CharacterCount int64 `json:"character_count"`
	CharacterLimit int64 `json:"character_limit"`
}

// APIError is a non-2xx response from the DeepL API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deepl api error (status %d): %s", e.StatusCode, e.Body)
}
