package store

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"marketanalytics/webclient/internal/apiclient"
)

const dateLayout = "2006-01-02"

// ValidationError is returned for input rejected before any network call.
// Slots are never touched when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func validateLogin(email, password string) error {
	if blank(email) {
		return invalid("email", "email is required")
	}
	if blank(password) {
		return invalid("password", "password is required")
	}
	return nil
}

func validateRegister(email, username, password, confirm string) error {
	if err := validateLogin(email, password); err != nil {
		return err
	}
	if blank(username) {
		return invalid("username", "username is required")
	}
	if password != confirm {
		return invalid("confirm_password", "passwords do not match")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if blank(raw) {
		return invalid(field, "%s is required", field)
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(field, "%s must be an http(s) URL", field)
	}
	return nil
}

func validateProductCreate(name, rawURL string) error {
	if blank(name) {
		return invalid("name", "name is required")
	}
	return validateHTTPURL("url", rawURL)
}

func validateProductID(id int) error {
	if id <= 0 {
		return invalid("id", "product id must be positive, got %d", id)
	}
	return nil
}

func validateReviewQuery(q apiclient.ReviewQuery) error {
	if q.Limit != nil && *q.Limit < 0 {
		return invalid("limit", "limit must not be negative")
	}
	if q.Offset != nil && *q.Offset < 0 {
		return invalid("offset", "offset must not be negative")
	}
	return nil
}

func validateAnalyticsQuery(q apiclient.AnalyticsQuery) error {
	var start, end time.Time
	var err error
	if q.StartDate != "" {
		if start, err = time.Parse(dateLayout, q.StartDate); err != nil {
			return invalid("start_date", "start_date must be YYYY-MM-DD")
		}
	}
	if q.EndDate != "" {
		if end, err = time.Parse(dateLayout, q.EndDate); err != nil {
			return invalid("end_date", "end_date must be YYYY-MM-DD")
		}
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return invalid("start_date", "start_date is after end_date")
	}
	return nil
}
