package models

import "strings"

// RequestDescriptor is the normalized view of an inbound request handed
// to the engine by the routing layer.
type RequestDescriptor struct {
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Headers      map[string]string `json:"headers,omitempty"`
	Query        map[string]string `json:"query,omitempty"`
	Body         map[string]string `json:"body,omitempty"`
	SourceOrigin string            `json:"source_origin"`
}

// Header returns a header value by case-insensitive name.
func (r *RequestDescriptor) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// UserAgent returns the User-Agent header.
func (r *RequestDescriptor) UserAgent() string {
	return r.Header("User-Agent")
}

// Cookie returns the raw Cookie header.
func (r *RequestDescriptor) Cookie() string {
	return r.Header("Cookie")
}
