package pagination

import (
	"strings"

	"github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// DefaultPathMarker is the path segment separating the store's public base URL
// from the request path in pagination links returned by Blaze.
const DefaultPathMarker = "/fhir"

// NextLink returns the "next" link of a search bundle, if any.
func NextLink(links []fhir.BundleLink) (fhir.BundleLink, bool) {
	for _, l := range links {
		if l.Relation == "next" {
			return l, true
		}
	}
	return fhir.BundleLink{}, false
}

// NextPath extracts the continuation request path from a search bundle's links.
// The store advertises absolute URLs; the portion after marker is spliced onto
// the configured base URL by the caller. Returns false when the bundle has no
// "next" link or the link URL lacks the marker.
func NextPath(links []fhir.BundleLink, marker string) (string, bool) {
	if marker == "" {
		marker = DefaultPathMarker
	}
	next, ok := NextLink(links)
	if !ok {
		return "", false
	}
	idx := strings.Index(next.Url, marker)
	if idx < 0 {
		return "", false
	}
	path := next.Url[idx+len(marker):]
	if path == "" || path[0] != '/' && path[0] != '?' {
		return "", false
	}
	return path, true
}
