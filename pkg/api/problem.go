package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/loomworklabs/parley/internal/core/domain"
)

// Problem implements RFC 9457
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`

	Log error `json:"-"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

func (p *Problem) MarshalJSON() ([]byte, error) {
	type Alias Problem

	data := make(map[string]interface{})

	for k, v := range p.Extensions {
		data[k] = v
	}

	stdJSON, _ := json.Marshal(Alias(*p))
	_ = json.Unmarshal(stdJSON, &data)

	return json.Marshal(data)
}

type ProblemOption func(*Problem)

// NewError creates a generic Problem
func NewError(status int, title, detail string, opts ...ProblemOption) *Problem {
	p := &Problem{
		Type:       "about:blank", // Default as per RFC
		Title:      title,
		Status:     status,
		Detail:     detail,
		Extensions: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithExtension adds a custom key-value pair to the response
func WithExtension(key string, value interface{}) ProblemOption {
	return func(p *Problem) {
		p.Extensions[key] = value
	}
}

// WithLog attaches an internal error for server-side logging
func WithLog(err error) ProblemOption {
	return func(p *Problem) {
		p.Log = err
	}
}

// WithType sets the RFC "type" URI
func WithType(uri string) ProblemOption {
	return func(p *Problem) {
		p.Type = uri
	}
}

// ValidationError creates a rich validation error
func ValidationError(validationErrors map[string]string) *Problem {
	return NewError(
		http.StatusBadRequest,
		"Validation Error",
		"One or more fields failed validation",
		WithExtension("errors", validationErrors),
	)
}

// statusOf maps the domain taxonomy onto HTTP statuses: 400 for shape
// errors, 403 for forbidden/quota, 404 for missing resources, 401 for
// auth, 502 for upstream provider failures, 500 otherwise.
func statusOf(code domain.Code) int {
	switch code {
	case domain.CodeInvalidProvider, domain.CodeInvalidModel, domain.CodeUnsupportedModelType,
		domain.CodeCredentialInvalid, domain.CodeCredentialNotEnabled,
		domain.CodeParameterInvalid, domain.CodeContextExceeded:
		return http.StatusBadRequest
	case domain.CodeQuotaExceeded, domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.CodeModelCallFailed, domain.CodeProviderTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromDomain converts a domain error into a Problem. Non-domain errors
// collapse into an opaque 500 with the cause attached for logging only.
func FromDomain(err error) *Problem {
	code := domain.CodeOf(err)
	if code == "" {
		return NewError(
			http.StatusInternalServerError,
			"Internal Server Error",
			"An unexpected error occurred.",
			WithLog(err),
		)
	}

	var de *domain.Error
	detail := err.Error()
	var cause error
	if errors.As(err, &de) {
		detail = de.Message
		cause = de.Err
	}

	return NewError(
		statusOf(code),
		http.StatusText(statusOf(code)),
		detail,
		WithExtension("code", string(code)),
		WithLog(cause),
	)
}
