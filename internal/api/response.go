package api

import (
	"encoding/json"
	"net/http"

	"picshare/internal/apperror"

	"go.uber.org/zap"
)

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	StatusCode int         `json:"statusCode" example:"200"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message" example:"Success"`
	Success    bool        `json:"success" example:"true"`
}

// APIError is the envelope of every failed response.
type APIError struct {
	StatusCode int         `json:"statusCode" example:"404"`
	Message    string      `json:"message" example:"Image does not exist"`
	Success    bool        `json:"success" example:"false"`
	Errors     []string    `json:"errors"`
	Data       interface{} `json:"data" swaggertype:"object"`
	Stack      string      `json:"stack,omitempty"`
}

type apiFunc func(w http.ResponseWriter, r *http.Request) error

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, status int, data interface{}, message string) error {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, APIResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
	return nil
}

// handle adapts an error-returning handler; failures are rendered once here.
func (s *Server) handle(fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.From(err)
	status := appErr.Status()

	fields := []zap.Field{
		zap.String("kind", appErr.Kind.String()),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(appErr.Message, fields...)
	} else {
		s.logger.Debug(appErr.Message, fields...)
	}

	body := APIError{
		StatusCode: status,
		Message:    appErr.Message,
		Success:    false,
		Errors:     []string{},
		Data:       nil,
	}
	if !s.config.Server.IsProduction() {
		body.Stack = appErr.Stack()
	}

	writeJSON(w, status, body)
}
