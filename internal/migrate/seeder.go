// Package migrate implements the reconciliation phases: seeding the
// collection catalog into the store, indexing organization records, and
// correcting custodian linkage on clinical resources.
package migrate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samply/golang-fhir-models/fhir-models/fhir"

	"github.com/bbmri-cz/custodian-sync/internal/catalog"
	"github.com/bbmri-cz/custodian-sync/internal/platform/blaze"
	"github.com/bbmri-cz/custodian-sync/pkg/fhirmodels"
)

// Seeder ensures the collection catalog exists in the store as Organization
// records. Presence is checked by business identifier before each create, so
// repeated runs are no-ops.
type Seeder struct {
	client *blaze.Client
	cat    catalog.Catalog
	log    zerolog.Logger
}

func NewSeeder(client *blaze.Client, cat catalog.Catalog, log zerolog.Logger) *Seeder {
	return &Seeder{client: client, cat: cat, log: log}
}

func (s *Seeder) EnsureCollections(ctx context.Context) error {
	s.log.Info().Int("collections", len(s.cat.Collections)).Msg("seeding collections")
	for _, col := range s.cat.Collections {
		n, err := s.client.ResourceCount(ctx, "Organization", col.Identifier)
		if err != nil {
			return fmt.Errorf("check collection %s: %w", col.Identifier, err)
		}
		if n > 0 {
			s.log.Info().Str("collection", col.Identifier).Msg("collection already present")
			continue
		}
		if err := s.client.CreateResource(ctx, "Organization", collectionOrganization(col)); err != nil {
			return fmt.Errorf("create collection %s: %w", col.Identifier, err)
		}
		s.log.Info().Str("collection", col.Identifier).Msg("collection added")
	}
	return nil
}

// collectionOrganization shapes a catalog descriptor as a BBMRI Collection
// profiled Organization. The store assigns the resource ID on create.
func collectionOrganization(col catalog.Collection) fhir.Organization {
	org := fhir.Organization{
		Meta: &fhir.Meta{Profile: []string{fhirmodels.CollectionProfile}},
		Identifier: []fhir.Identifier{{
			System: strPtr(fhirmodels.BBMRIERICIdentifierSystem),
			Value:  strPtr(col.Identifier),
		}},
		Active: boolPtr(true),
		Name:   strPtr(col.Name),
	}
	if col.Acronym != "" {
		org.Alias = []string{col.Acronym}
	}
	return org
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
