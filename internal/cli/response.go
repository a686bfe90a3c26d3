package cli

// Response is the standard JSON response structure submittx writes to
// stdout in dashboard mode. All dashboard-mode invocations emit exactly one
// of these as a single line.
type Response struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      *Error      `json:"error,omitempty"`
	RequestID  string      `json:"request_id"`
	CliVersion string      `json:"cli_version"`
	DurationMs int64       `json:"duration_ms"`
}

// Error carries a machine-readable code alongside a human-readable message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error codes dashboard-mode responses use. They are submittx's own
// vocabulary, separate from the submission manager's Code* constants; for
// SUBMISSION_ERROR the message carries the manager's error text, which
// starts with its ERR_* code.
const (
	ErrInvalidSchema = "INVALID_SCHEMA"
	ErrIOError       = "IO_ERROR"
	ErrSubmission    = "SUBMISSION_ERROR"
)
