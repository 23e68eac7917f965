package pagination

import (
	"net/http"
	"net/url"
	"strings"
)

// Links holds the navigation URLs a paginated response advertises in its
// Link header.
type Links struct {
	First *url.URL
	Prev  *url.URL
	Next  *url.URL
	Last  *url.URL
}

// ParseLinks reads RFC 8288 style Link headers of the form
//
//	<https://api.github.com/...?page=3>; rel="next", <...>; rel="last"
//
// Entries are comma-separated; parameters are semicolon-separated. Only
// the four pagination rels are kept, anything else is ignored. Malformed
// entries are skipped rather than failing the response.
func ParseLinks(h http.Header) Links {
	var links Links
	for _, headerValue := range h.Values("Link") {
		for _, entry := range strings.Split(headerValue, ",") {
			segments := strings.Split(entry, ";")
			if len(segments) < 2 {
				continue
			}

			target := strings.TrimSpace(segments[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			u, err := url.Parse(strings.Trim(target, "<>"))
			if err != nil {
				continue
			}

			for _, param := range segments[1:] {
				name, value, found := strings.Cut(strings.TrimSpace(param), "=")
				if !found || name != "rel" {
					continue
				}
				switch strings.Trim(value, `"`) {
				case "first":
					links.First = u
				case "prev":
					links.Prev = u
				case "next":
					links.Next = u
				case "last":
					links.Last = u
				}
			}
		}
	}
	return links
}
