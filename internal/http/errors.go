package http

import "github.com/danielgtaylor/huma/v2"

// apiError is the uniform error body for every API failure.
type apiError struct {
	status  int
	Message string `json:"error"`
}

func (e *apiError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *apiError) GetStatus() int { return e.status }

// ContentType implements huma.ContentTypeFilter so errors serialize as
// plain JSON rather than problem+json.
func (e *apiError) ContentType(string) string { return "application/json" }

func init() {
	// Every error huma emits becomes {"error": "<message>"}.
	huma.NewError = func(status int, msg string, _ ...error) huma.StatusError {
		return &apiError{status: status, Message: msg}
	}
}
