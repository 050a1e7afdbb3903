package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the JSON shape every API response follows.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Message   string `json:"message"`
	Error     any    `json:"error"`
	Timestamp string `json:"timestamp"`
}

func write(w http.ResponseWriter, status int, env Envelope) {
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are not recoverable at this point
	_ = json.NewEncoder(w).Encode(env)
}

// WriteSuccess writes a success envelope with the given status and payload.
func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	write(w, status, Envelope{Success: true, Data: data, Message: message})
}

// WriteError writes a failure envelope. errCode may be empty, in which case
// the error field is null.
func WriteError(w http.ResponseWriter, status int, message, errCode string) {
	env := Envelope{Success: false, Message: message}
	if errCode != "" {
		env.Error = errCode
	}
	write(w, status, env)
}

// WriteErrorData writes a failure envelope carrying structured data, used by
// gates that report machine-readable state (lockout, remaining attempts).
func WriteErrorData(w http.ResponseWriter, status int, data any, message string) {
	write(w, status, Envelope{Success: false, Data: data, Message: message})
}

// WriteJSON writes an arbitrary payload verbatim. Used where the wire shape
// is fixed by contract rather than by the envelope (rate-limit rejections).
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
