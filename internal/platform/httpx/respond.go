// Package httpx provides HTTP response utilities built around the
// {success, message, data, error} envelope.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

var exposeDetail atomic.Bool

// ExposeErrorDetail toggles raw error text in failure envelopes. Enabled outside production.
func ExposeErrorDetail(on bool) {
	exposeDetail.Store(on)
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a success envelope with status 200.
func OK(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a success envelope with status 201.
func Created(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope. detail is dropped unless ExposeErrorDetail(true) was called.
func Fail(w http.ResponseWriter, status int, message string, detail error) {
	env := Envelope{Success: false, Message: message}
	if detail != nil && exposeDetail.Load() {
		env.Error = detail.Error()
	}
	JSON(w, status, env)
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return invalid("body", "malformed JSON: "+err.Error())
	}
	return nil
}

// PathInt64 parses a positive integer chi URL parameter value.
func PathInt64(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(name, "must be a positive integer")
	}
	return id, nil
}
