package api

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

// deleteBody reports whether a DELETE removed anything.
type deleteBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RespondWithJSON writes payload with the given status code. The body is
// encoded before the header is sent, so an unencodable payload still yields
// a clean 500.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{Error: "Failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write(body)
}

// RespondWithError writes {"error": message}.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, errorBody{Error: message})
}

// RespondWithMessage acknowledges work handed off to the background.
func RespondWithMessage(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, messageBody{Message: message})
}

func respondDeleted(w http.ResponseWriter, found bool) {
	if !found {
		RespondWithJSON(w, http.StatusNotFound, deleteBody{Error: "Source not found"})
		return
	}
	RespondWithJSON(w, http.StatusOK, deleteBody{Success: true})
}
