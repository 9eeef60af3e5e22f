// Package result holds the asynchronous result container shared by every
// network-triggered action, and the generation-tagged slots that store it.
package result

import (
	"encoding/json"
	"fmt"
)

// Status tags the active variant of a Result.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StatusIdle
	case "loading":
		*s = StatusLoading
	case "success":
		*s = StatusSuccess
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown result status %q", b)
	}
	return nil
}

// Failure is the payload of the Error variant. Code is the HTTP status when
// one was received, 0 otherwise.
type Failure struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// Result is one of Idle, Loading, Success(data) or Error(failure).
// The zero value is Idle. Values are only built through the constructors
// below, so exactly one variant is active at any time.
type Result[T any] struct {
	status  Status
	data    T
	failure Failure
}

func Idle[T any]() Result[T] { return Result[T]{status: StatusIdle} }

func Loading[T any]() Result[T] { return Result[T]{status: StatusLoading} }

func Success[T any](data T) Result[T] {
	return Result[T]{status: StatusSuccess, data: data}
}

func Error[T any](message string, code int) Result[T] {
	return Result[T]{status: StatusError, failure: Failure{Message: message, Code: code}}
}

// Status reports the active variant.
func (r Result[T]) Status() Status { return r.status }

func (r Result[T]) IsIdle() bool    { return r.status == StatusIdle }
func (r Result[T]) IsLoading() bool { return r.status == StatusLoading }
func (r Result[T]) IsSuccess() bool { return r.status == StatusSuccess }
func (r Result[T]) IsError() bool   { return r.status == StatusError }

// Data returns the payload; ok is false unless the variant is Success.
func (r Result[T]) Data() (data T, ok bool) {
	if r.status != StatusSuccess {
		var zero T
		return zero, false
	}
	return r.data, true
}

// Failure returns the error payload; ok is false unless the variant is Error.
func (r Result[T]) Failure() (f Failure, ok bool) {
	if r.status != StatusError {
		return Failure{}, false
	}
	return r.failure, true
}

// Match dispatches on the active variant. Every branch must be supplied.
func Match[T, R any](
	r Result[T],
	onIdle func() R,
	onLoading func() R,
	onSuccess func(T) R,
	onError func(Failure) R,
) R {
	switch r.status {
	case StatusLoading:
		return onLoading()
	case StatusSuccess:
		return onSuccess(r.data)
	case StatusError:
		return onError(r.failure)
	default:
		return onIdle()
	}
}

type wire[T any] struct {
	Status Status   `json:"status"`
	Data   *T       `json:"data,omitempty"`
	Error  *Failure `json:"error,omitempty"`
}

// MarshalJSON renders {"status": ..., "data": ..., "error": ...} with only
// the field belonging to the active variant.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	w := wire[T]{Status: r.status}
	switch r.status {
	case StatusSuccess:
		d := r.data
		w.Data = &d
	case StatusError:
		f := r.failure
		w.Error = &f
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result[T]) UnmarshalJSON(b []byte) error {
	var raw struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *Failure        `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.Status {
	case "", "idle":
		*r = Idle[T]()
	case "loading":
		*r = Loading[T]()
	case "success":
		var data T
		if len(raw.Data) > 0 {
			if err := json.Unmarshal(raw.Data, &data); err != nil {
				return fmt.Errorf("decode result data: %w", err)
			}
		}
		*r = Success(data)
	case "error":
		if raw.Error == nil {
			return fmt.Errorf("error result without error payload")
		}
		*r = Error[T](raw.Error.Message, raw.Error.Code)
	default:
		return fmt.Errorf("unknown result status %q", raw.Status)
	}
	return nil
}
