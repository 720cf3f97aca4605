package backnews

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an upstream failure.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation_failed"
	KindServer       Kind = "server_error"
)

var (
	// ErrUnauthorized means the bearer token was rejected; the session is gone.
	ErrUnauthorized = errors.New("backnews: unauthorized")
	// ErrRateLimited means the API kept answering 429 after the retry.
	ErrRateLimited = errors.New("backnews: rate limited")
	// ErrNotFound means the addressed entity does not exist at that endpoint.
	ErrNotFound = errors.New("backnews: not found")
	// ErrValidation covers every other 4xx answer.
	ErrValidation = errors.New("backnews: validation failed")
	// ErrServer covers 5xx answers, transport failures and undecodable bodies.
	ErrServer = errors.New("backnews: server error")
)

var genericMessages = map[Kind]string{
	KindUnauthorized: "Session expired, please sign in again",
	KindRateLimited:  "Too many requests, please wait a moment and try again",
	KindNotFound:     "The requested item was not found",
	KindValidation:   "The request was rejected by the server",
	KindServer:       "The server is unavailable, please try again later",
}

// APIError is returned by every Client operation that fails.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	// Fields holds per-field messages reported by the server, keyed by field path.
	Fields map[string]string
	Err    error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backnews %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("backnews %s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind sentinel and the transport cause.
func (e *APIError) Unwrap() []error {
	out := []error{e.Kind.sentinel()}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindRateLimited:
		return ErrRateLimited
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	default:
		return ErrServer
	}
}

// KindOf reports the kind of err, or "" when err is not an upstream error.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Message returns the user facing text of err.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

type fieldError struct {
	Field   string `json:"field"`
	Path    string `json:"path"`
	Param   string `json:"param"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func newStatusError(status int, body []byte) *APIError {
	kind := kindForStatus(status)
	apiErr := &APIError{Kind: kind, Status: status}

	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		apiErr.Message = strings.TrimSpace(parsed.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(parsed.Error)
		}
		apiErr.Fields = parseFieldErrors(parsed.Errors)
	}
	if apiErr.Message == "" {
		apiErr.Message = genericMessages[kind]
	}
	return apiErr
}

func newTransportError(err error) *APIError {
	return &APIError{Kind: KindServer, Message: genericMessages[KindServer], Err: err}
}

func newDecodeError(err error) *APIError {
	return &APIError{Kind: KindServer, Message: "Unexpected response from the server", Err: err}
}

// parseFieldErrors accepts the express-validator list shape and a plain field map.
func parseFieldErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var list []fieldError
	if err := json.Unmarshal(raw, &list); err == nil {
		fields := make(map[string]string, len(list))
		for _, item := range list {
			name := firstNonEmpty(item.Field, item.Path, item.Param)
			text := firstNonEmpty(item.Msg, item.Message)
			if name == "" || text == "" {
				continue
			}
			if _, exists := fields[name]; !exists {
				fields[name] = text
			}
		}
		if len(fields) == 0 {
			return nil
		}
		return fields
	}

	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) > 0 {
		return flat
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
