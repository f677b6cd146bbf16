package listing

import (
	"context"
	"net/url"
)

// SearchEvent describes a completed server-side search.
type SearchEvent struct {
	Profile string     `json:"profile"`
	Query   string     `json:"query"`
	Results int        `json:"results"`
	Filters url.Values `json:"filters,omitempty"`
}

// SearchRecorder receives completed searches, e.g. for analytics.
type SearchRecorder interface {
	RecordSearch(ctx context.Context, e SearchEvent)
}
