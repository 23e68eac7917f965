package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// containerAttributes are the object keys probed, in order, when a
// paginated body is a JSON object instead of a bare array. GitHub wraps
// some collections this way ({"total_count": n, "items": [...]}), with
// the collection under an endpoint-specific attribute.
var (
	registryMu          sync.RWMutex
	containerAttributes = []string{
		"items",
		"workflows",
		"workflow_runs",
		"jobs",
		"artifacts",
		"repositories",
		"installations",
		"runners",
	}
)

// RegisterContainerAttribute adds an object key to probe for the item
// collection, for endpoints this package does not know about yet.
// Earlier attributes win when several are present. Safe for concurrent
// use; registering an already-known attribute is a no-op.
func RegisterContainerAttribute(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, existing := range containerAttributes {
		if existing == name {
			return
		}
	}
	containerAttributes = append(containerAttributes, name)
}

func snapshotAttributes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return append([]string(nil), containerAttributes...)
}

// DecodeError reports an object body in which no registered container
// attribute was found, so the item collection could not be located.
type DecodeError struct {
	// Attributes are the keys the body actually carried.
	Attributes []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pagination: no known container attribute in object body (saw: %s)",
		strings.Join(e.Attributes, ", "))
}

// Page is one page of a paginated collection: the decoded items plus the
// navigation links the server sent alongside them.
type Page[T any] struct {
	Items []T

	// IncompleteResults and TotalCount are set for object-shaped bodies
	// that carry them (search results, workflow runs).
	IncompleteResults *bool
	TotalCount        *uint64

	First *url.URL
	Prev  *url.URL
	Next  *url.URL
	Last  *url.URL
}

// ParsePage decodes one page from a response body and its headers.
//
// A bare JSON array is the item collection itself. A JSON object is
// probed for the first registered container attribute; an object without
// any yields a *DecodeError. An empty body is an empty page.
func ParsePage[T any](body []byte, header http.Header) (*Page[T], error) {
	links := ParseLinks(header)
	page := &Page[T]{
		First: links.First,
		Prev:  links.Prev,
		Next:  links.Next,
		Last:  links.Last,
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return page, nil
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &page.Items); err != nil {
			return nil, fmt.Errorf("pagination: decode array body: %w", err)
		}
		return page, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("pagination: decode object body: %w", err)
	}

	if raw, ok := fields["incomplete_results"]; ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err == nil {
			page.IncompleteResults = &v
		}
	}
	if raw, ok := fields["total_count"]; ok {
		var v uint64
		if err := json.Unmarshal(raw, &v); err == nil {
			page.TotalCount = &v
		}
	}

	for _, attr := range snapshotAttributes() {
		raw, ok := fields[attr]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &page.Items); err != nil {
			return nil, fmt.Errorf("pagination: decode %q collection: %w", attr, err)
		}
		return page, nil
	}

	seen := make([]string, 0, len(fields))
	for k := range fields {
		seen = append(seen, k)
	}
	sort.Strings(seen)
	return nil, &DecodeError{Attributes: seen}
}

// ReadPage drains resp.Body to completion and parses it as one page.
// The body is closed afterwards.
func ReadPage[T any](resp *http.Response) (*Page[T], error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pagination: read body: %w", err)
	}
	return ParsePage[T](body, resp.Header)
}

// PageCount derives the total number of pages from the page query
// parameter of the last link. It reports false when the server sent no
// last link or the link carries no usable page parameter.
func (p *Page[T]) PageCount() (int, bool) {
	if p.Last == nil {
		return 0, false
	}
	raw := p.Last.Query().Get("page")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
