// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// UntitledEntry is the title used for entries that arrive without one.
const UntitledEntry = "无标题"

// ResultKind tags the outcome of a single news fetch.
type ResultKind int

// Supported fetch outcomes.
const (
	ResultOK ResultKind = iota
	ResultEmpty
	ResultHTTPError
	ResultFormatError
	ResultTransportError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultEmpty:
		return "empty"
	case ResultHTTPError:
		return "http_error"
	case ResultFormatError:
		return "format_error"
	case ResultTransportError:
		return "transport_error"
	}
	return "unknown"
}

// Entry is one ranked news item.
type Entry struct {
	Title string
	URL   string
}

// NewEntry builds an Entry with a trimmed title, falling back to UntitledEntry.
func NewEntry(title, url string) Entry {
	title = strings.TrimSpace(title)
	if title == "" {
		title = UntitledEntry
	}
	return Entry{Title: title, URL: strings.TrimSpace(url)}
}

// FetchResult is the normalized outcome of fetching one source.
// Only the fields relevant to Kind are populated.
type FetchResult struct {
	Kind        ResultKind
	Source      string
	Title       string
	Entries     []Entry
	UpdatedTime string
	StatusCode  int
	Reason      string
}

// OK returns a successful result. The entries slice is copied.
func OK(source, title string, entries []Entry) FetchResult {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return FetchResult{Kind: ResultOK, Source: source, Title: title, Entries: cp}
}

// Empty returns a result for a source that answered with no items.
func Empty(source string) FetchResult {
	return FetchResult{Kind: ResultEmpty, Source: source}
}

// HTTPError returns a result for a non-2xx response.
func HTTPError(source string, code int) FetchResult {
	return FetchResult{Kind: ResultHTTPError, Source: source, StatusCode: code}
}

// FormatError returns a result for a response that could not be understood.
func FormatError(source, reason string) FetchResult {
	return FetchResult{Kind: ResultFormatError, Source: source, Reason: reason}
}

// TransportError returns a result for a request that never got a response.
func TransportError(source, reason string) FetchResult {
	return FetchResult{Kind: ResultTransportError, Source: source, Reason: reason}
}

// Failed reports whether the result is one of the error kinds.
func (r FetchResult) Failed() bool {
	return r.Kind == ResultHTTPError || r.Kind == ResultFormatError || r.Kind == ResultTransportError
}

// ScheduleRule is one parsed "HH:MM#destination#source" instruction.
type ScheduleRule struct {
	TimeOfDay   string
	Destination string
	Source      string
}

// AccessContext describes one inbound request for policy evaluation.
// GroupID is empty for direct one-to-one chats.
type AccessContext struct {
	CallerID string
	GroupID  string
	Source   string
}

// StoredRule is a schedule rule created through the bot and kept in the database.
type StoredRule struct {
	ID          int64
	Destination string
	TimeOfDay   string
	Source      string
	CreatedBy   string
	CreatedAt   time.Time
}

// Spec renders the rule in the "HH:MM#destination#source" encoding.
func (r StoredRule) Spec() string {
	return r.TimeOfDay + "#" + r.Destination + "#" + r.Source
}
