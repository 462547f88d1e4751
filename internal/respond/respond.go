package respond

import (
	"encoding/json"
	"net/http"
)

// Status is the fixed set of response codes the API uses.
type Status int

const (
	StatusSuccess      Status = http.StatusOK
	StatusCreated      Status = http.StatusCreated
	StatusInvalid      Status = http.StatusBadRequest
	StatusUnauthorized Status = http.StatusUnauthorized
	StatusForbidden    Status = http.StatusForbidden
	StatusNotFound     Status = http.StatusNotFound
	StatusError        Status = http.StatusInternalServerError
)

type payload struct {
	Meta   map[string]any `json:"meta,omitempty"`
	Result any            `json:"result,omitempty"`
	Errors []string       `json:"errors,omitempty"`
}

// Builder accumulates one outbound response payload. It is owned by a
// single handler invocation and never shared across requests. Build
// finalizes the response and must be called exactly once.
type Builder struct {
	w       http.ResponseWriter
	status  Status
	payload payload
}

// New creates a builder bound to the given writer.
func New(w http.ResponseWriter) *Builder {
	return &Builder{w: w, status: StatusSuccess}
}

// SetResult sets the result portion of the payload.
func (b *Builder) SetResult(data any) *Builder {
	b.payload.Result = data
	return b
}

// SetMeta sets the meta portion of the payload, typically an echo of the
// request query parameters plus derived fields.
func (b *Builder) SetMeta(meta map[string]any) *Builder {
	b.payload.Meta = meta
	return b
}

// SetErrors records error descriptions in order.
func (b *Builder) SetErrors(errs ...error) *Builder {
	descriptions := make([]string, 0, len(errs))
	for _, err := range errs {
		descriptions = append(descriptions, err.Error())
	}
	b.payload.Errors = descriptions
	return b
}

// SetStatus sets the HTTP status code written by Build.
func (b *Builder) SetStatus(status Status) *Builder {
	b.status = status
	return b
}

// Build serializes the accumulated payload and finalizes the response.
func (b *Builder) Build() {
	b.w.Header().Set("Content-Type", "application/json")
	b.w.WriteHeader(int(b.status))
	if err := json.NewEncoder(b.w).Encode(b.payload); err != nil {
		// Headers are already flushed at this point; nothing to recover.
		return
	}
}

// QueryMeta converts request query parameters into a meta map, matching
// the shape clients receive back on every response.
func QueryMeta(r *http.Request) map[string]any {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	meta := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			meta[key] = vals[0]
		} else {
			meta[key] = vals
		}
	}
	return meta
}
