package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-sales/internal/apperr"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Type      apperr.Kind `json:"type,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// WriteError reports err with the status and type of its apperr kind.
func WriteError(w http.ResponseWriter, message string, err error) {
	typed := apperr.As(err)
	resp := ErrorResponse(message, typed.Error())
	resp.Type = typed.Kind()
	if details := typed.Details(); details != nil {
		resp.Details = details
	}
	WriteJSON(w, apperr.HTTPStatus(typed.Kind()), resp)
}
