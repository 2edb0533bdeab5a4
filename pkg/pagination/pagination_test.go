package pagination

import (
	"testing"

	"github.com/samply/golang-fhir-models/fhir-models/fhir"
)

func TestNextPath_FollowsNextLink(t *testing.T) {
	links := []fhir.BundleLink{
		{Relation: "self", Url: "http://blaze:8080/fhir/Specimen?_count=50"},
		{Relation: "next", Url: "http://blaze:8080/fhir/Specimen?_count=50&__t=42&__page-id=X1"},
	}

	path, ok := NextPath(links, "/fhir")
	if !ok {
		t.Fatal("expected a next path")
	}
	if path != "/Specimen?_count=50&__t=42&__page-id=X1" {
		t.Errorf("unexpected next path: %q", path)
	}
}

func TestNextPath_NoNextLink(t *testing.T) {
	links := []fhir.BundleLink{
		{Relation: "self", Url: "http://blaze:8080/fhir/Specimen"},
	}

	if _, ok := NextPath(links, "/fhir"); ok {
		t.Error("expected no next path for a bundle without a next link")
	}
}

func TestNextPath_MarkerAbsent(t *testing.T) {
	links := []fhir.BundleLink{
		{Relation: "next", Url: "http://blaze:8080/elsewhere/Specimen?page=2"},
	}

	if _, ok := NextPath(links, "/fhir"); ok {
		t.Error("expected termination when the link URL lacks the path marker")
	}
}

func TestNextPath_EmptyLinks(t *testing.T) {
	if _, ok := NextPath(nil, "/fhir"); ok {
		t.Error("expected no next path for empty links")
	}
}

func TestNextPath_DefaultMarker(t *testing.T) {
	links := []fhir.BundleLink{
		{Relation: "next", Url: "http://blaze:8080/fhir/Organization?__page-id=A"},
	}

	path, ok := NextPath(links, "")
	if !ok {
		t.Fatal("expected a next path with the default marker")
	}
	if path != "/Organization?__page-id=A" {
		t.Errorf("unexpected next path: %q", path)
	}
}

func TestNextLink_ScansAllEntries(t *testing.T) {
	// Blaze is not obliged to put "next" last; every entry is considered.
	links := []fhir.BundleLink{
		{Relation: "next", Url: "http://blaze:8080/fhir/Specimen?__page-id=B"},
		{Relation: "self", Url: "http://blaze:8080/fhir/Specimen"},
	}

	l, ok := NextLink(links)
	if !ok {
		t.Fatal("expected to find the next link")
	}
	if l.Url != "http://blaze:8080/fhir/Specimen?__page-id=B" {
		t.Errorf("unexpected link: %q", l.Url)
	}
}
