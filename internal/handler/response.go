package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// apiResponse is the envelope every JSON endpoint replies with.
type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// errorResponse carries a machine-readable code alongside the message for
// failures callers are expected to branch on.
type errorResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ErrorCode string    `json:"errorCode"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Message: message})
}

func writeError(w http.ResponseWriter, status int, message, errorCode string) {
	writeJSON(w, status, errorResponse{
		Success:   false,
		Message:   message,
		ErrorCode: errorCode,
		Timestamp: time.Now().UTC(),
	})
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Printf("ERROR: %v", err)
	writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_SERVER_ERROR")
}
