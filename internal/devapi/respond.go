package devapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// envelope mirrors the Authentication API wrapper: data is an array except on refresh.
type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// respondItems writes a 200 whose data is a one-element array.
func respondItems(w http.ResponseWriter, item any) {
	respondJSON(w, http.StatusOK, envelope{Status: true, Data: []any{item}})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	respondJSON(w, status, envelope{Status: false, Message: msg})
}
