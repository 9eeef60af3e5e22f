package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"marketanalytics/webclient/internal/models"
	"marketanalytics/webclient/internal/result"
)

// TransportError means no response reached the client.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "Network error"
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Detail is the server's message, if any.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("Error: %d", e.Status)
}

// DecodeError is a 2xx response whose body was empty or could not be decoded.
type DecodeError struct {
	Status int
	Err    error
}

func (e *DecodeError) Error() string { return "Empty response" }

func (e *DecodeError) Unwrap() error { return e.Err }

// Settle collapses a call outcome into a terminal Result.
func Settle[T any](v T, err error) result.Result[T] {
	if err == nil {
		return result.Success(v)
	}
	msg, code := Describe(err)
	return result.Error[T](msg, code)
}

// Describe returns the human-readable message and HTTP status (0 if none)
// carried by err.
func Describe(err error) (string, int) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Error(), httpErr.Status
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Error(), decErr.Status
	}
	var trErr *TransportError
	if errors.As(err, &trErr) {
		return trErr.Error(), 0
	}
	if err == nil {
		return "", 0
	}
	return err.Error(), 0
}

// detailMessage extracts the message from an {"detail": ...} body. FastAPI
// uses a string for handled errors and a list of {"msg": ...} objects for
// request validation failures.
func detailMessage(body []byte) string {
	var eb models.ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(eb.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if m := strings.TrimSpace(it.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
