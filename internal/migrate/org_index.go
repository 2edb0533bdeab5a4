package migrate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samply/golang-fhir-models/fhir-models/fhir"

	"github.com/bbmri-cz/custodian-sync/internal/platform/blaze"
	"github.com/bbmri-cz/custodian-sync/pkg/pagination"
)

// OrgIndex maps business identifiers to store-assigned Organization IDs.
// It is built fresh each run and passed explicitly to the corrector.
type OrgIndex map[string]string

// BuildOrgIndex enumerates all Organization records, following pagination,
// and indexes each by its first identifier value. Duplicate identifiers keep
// the last record seen.
func BuildOrgIndex(ctx context.Context, client *blaze.Client, marker string, log zerolog.Logger) (OrgIndex, error) {
	idx := make(OrgIndex)
	path := "/Organization"
	for {
		bundle, err := client.SearchPage(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("list organizations: %w", err)
		}
		for _, entry := range bundle.Entry {
			org, err := fhir.UnmarshalOrganization(entry.Resource)
			if err != nil {
				log.Warn().Err(err).Msg("skipping unreadable organization entry")
				continue
			}
			if org.Id == nil || len(org.Identifier) == 0 || org.Identifier[0].Value == nil {
				log.Warn().Msg("skipping organization without identifier")
				continue
			}
			key := *org.Identifier[0].Value
			if prev, ok := idx[key]; ok && prev != *org.Id {
				log.Warn().Str("identifier", key).Str("previous_id", prev).Str("id", *org.Id).
					Msg("duplicate organization identifier, keeping the record seen last")
			}
			idx[key] = *org.Id
			log.Debug().Str("identifier", key).Str("id", *org.Id).Msg("organization indexed")
		}
		next, ok := pagination.NextPath(bundle.Link, marker)
		if !ok {
			break
		}
		path = next
	}
	log.Info().Int("organizations", len(idx)).Msg("organization index built")
	return idx, nil
}
