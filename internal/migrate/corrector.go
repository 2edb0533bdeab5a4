package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bbmri-cz/custodian-sync/internal/catalog"
	"github.com/bbmri-cz/custodian-sync/internal/platform/blaze"
	"github.com/bbmri-cz/custodian-sync/pkg/fhirmodels"
	"github.com/bbmri-cz/custodian-sync/pkg/pagination"
)

// UnmappedPolicy decides what happens to records whose material type code has
// no entry in the routing table.
type UnmappedPolicy string

const (
	// UnmappedFail aborts correction of the resource type.
	UnmappedFail UnmappedPolicy = "fail"
	// UnmappedFallback routes the record to the designated fallback collection.
	UnmappedFallback UnmappedPolicy = "fallback"
)

// CorrectorOptions wires a Corrector.
type CorrectorOptions struct {
	Client             *blaze.Client
	Catalog            catalog.Catalog
	Index              OrgIndex
	Policy             UnmappedPolicy
	FallbackCollection string
	PathMarker         string
	Logger             zerolog.Logger
}

// Corrector pages through all records of a resource type and repairs each
// record's custodian extension so it references the organization mapped from
// the record's material type code. Records are handled as raw maps so fields
// this tool does not know about survive the read-modify-write round trip.
type Corrector struct {
	client   *blaze.Client
	cat      catalog.Catalog
	index    OrgIndex
	policy   UnmappedPolicy
	fallback string
	marker   string
	log      zerolog.Logger
}

func NewCorrector(opts CorrectorOptions) *Corrector {
	return &Corrector{
		client:   opts.Client,
		cat:      opts.Catalog,
		index:    opts.Index,
		policy:   opts.Policy,
		fallback: opts.FallbackCollection,
		marker:   opts.PathMarker,
		log:      opts.Logger,
	}
}

// Stats summarizes one correction pass.
type Stats struct {
	Pages          int
	Records        int
	Updated        int
	AlreadyCorrect int
	Conflicts      int
	Skipped        int
}

// Run corrects every record of the given resource type, following pagination
// links until a page has no "next" link or the link lacks the path marker.
// Each update is an independent write; on error, work done so far is kept.
func (c *Corrector) Run(ctx context.Context, resourceType string) (Stats, error) {
	var stats Stats
	path := "/" + resourceType
	for {
		bundle, err := c.client.SearchPage(ctx, path)
		if err != nil {
			return stats, fmt.Errorf("fetch %s page: %w", resourceType, err)
		}
		stats.Pages++
		for _, entry := range bundle.Entry {
			if len(entry.Resource) == 0 {
				continue
			}
			var resource map[string]any
			if err := json.Unmarshal(entry.Resource, &resource); err != nil {
				return stats, fmt.Errorf("decode %s entry: %w", resourceType, err)
			}
			stats.Records++

			id, _ := resource["id"].(string)
			if id == "" {
				stats.Skipped++
				c.log.Warn().Str("resource_type", resourceType).Msg("skipping record without an id")
				continue
			}
			c.log.Debug().Str("id", id).Msg("working on record")

			changed, err := c.repair(resource)
			if err != nil {
				return stats, fmt.Errorf("%s/%s: %w", resourceType, id, err)
			}
			if !changed {
				stats.AlreadyCorrect++
				continue
			}

			status, err := c.client.UpdateResource(ctx, resourceType, id, resource, resourceVersion(resource))
			if err != nil {
				return stats, err
			}
			switch {
			case status == http.StatusConflict || status == http.StatusPreconditionFailed:
				stats.Conflicts++
				c.log.Warn().Str("id", id).Int("status", status).
					Msg("record changed concurrently, leaving it alone")
			case status >= 400:
				return stats, fmt.Errorf("update %s/%s: status %d", resourceType, id, status)
			default:
				stats.Updated++
				c.log.Info().Str("id", id).Int("status", status).Msg("record updated")
			}
		}

		next, ok := pagination.NextPath(bundle.Link, c.marker)
		if !ok {
			break
		}
		path = next
	}
	return stats, nil
}

// repair rewrites the record's extension list in place so it carries exactly
// one custodian extension referencing the expected organization. It reports
// whether the record changed.
func (c *Corrector) repair(resource map[string]any) (bool, error) {
	collectionID, err := c.resolveCollection(typeCode(resource))
	if err != nil {
		return false, err
	}
	orgID, ok := c.index[collectionID]
	if !ok {
		return false, fmt.Errorf("collection %s is not in the organization index (seeding incomplete?)", collectionID)
	}
	want := "Organization/" + orgID

	exts, _ := resource["extension"].([]any)
	kept := make([]any, 0, len(exts)+1)
	changed := false
	seen := false
	for _, e := range exts {
		ext, ok := e.(map[string]any)
		if !ok || ext["url"] != fhirmodels.CustodianExtensionURL {
			kept = append(kept, e)
			continue
		}
		if seen {
			// duplicate custodian entries are dropped
			changed = true
			continue
		}
		seen = true
		vr, ok := ext["valueReference"].(map[string]any)
		if !ok {
			vr = map[string]any{}
			ext["valueReference"] = vr
			changed = true
		}
		if vr["reference"] != want {
			vr["reference"] = want
			changed = true
		}
		kept = append(kept, ext)
	}
	if !seen {
		kept = append(kept, map[string]any{
			"url":            fhirmodels.CustodianExtensionURL,
			"valueReference": map[string]any{"reference": want},
		})
		changed = true
	}
	if changed {
		resource["extension"] = kept
	}
	return changed, nil
}

func (c *Corrector) resolveCollection(code string) (string, error) {
	if id, ok := c.cat.CollectionForType(code); ok {
		return id, nil
	}
	if c.policy == UnmappedFallback {
		return c.fallback, nil
	}
	if code == "" {
		return "", fmt.Errorf("record has no material type code")
	}
	return "", fmt.Errorf("material type code %q has no collection mapping", code)
}

// typeCode extracts the material type code from type.coding, preferring a
// coding from the BBMRI SampleMaterialType system when several are present.
func typeCode(resource map[string]any) string {
	t, _ := resource["type"].(map[string]any)
	codings, _ := t["coding"].([]any)
	first := ""
	for _, entry := range codings {
		coding, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		code, _ := coding["code"].(string)
		if code == "" {
			continue
		}
		if system, _ := coding["system"].(string); system == fhirmodels.SampleMaterialTypeSystem {
			return code
		}
		if first == "" {
			first = code
		}
	}
	return first
}

func resourceVersion(resource map[string]any) string {
	meta, _ := resource["meta"].(map[string]any)
	version, _ := meta["versionId"].(string)
	return version
}
