// Package catalog holds the deployment's collection descriptors and the
// material-type to collection routing table. The MMCI biobank values are
// built in; a YAML file can replace both tables without code changes.
package catalog

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/bbmri-cz/custodian-sync/pkg/fhirmodels"
)

// Collection describes one organization record to keep present in the store.
// The identifier is the stable BBMRI-ERIC directory key, never the
// store-assigned resource ID.
type Collection struct {
	Identifier string `mapstructure:"identifier"`
	Name       string `mapstructure:"name"`
	Acronym    string `mapstructure:"acronym"`
}

type Catalog struct {
	Collections      []Collection      `mapstructure:"collections"`
	TypeToCollection map[string]string `mapstructure:"type_to_collection"`
}

// MMCI collection identifiers.
const (
	CollectionBloodSamples = "bbmri-eric:ID:CZ_MMCI:collection:Blood_samples"
	CollectionCells        = "bbmri-eric:ID:CZ_MMCI:collection:Cells"
	CollectionDNA          = "bbmri-eric:ID:CZ_MMCI:collection:DNA"
	CollectionOther        = "bbmri-eric:ID:CZ_MMCI:collection:Other"
	CollectionTissue       = "bbmri-eric:ID:CZ_MMCI:collection:Tissue"
)

// Default returns the built-in MMCI deployment tables.
func Default() Catalog {
	return Catalog{
		Collections: []Collection{
			{Identifier: CollectionBloodSamples, Name: "Blood samples", Acronym: "BS"},
			{Identifier: CollectionCells, Name: "Cells"},
			{Identifier: CollectionDNA, Name: "DNA", Acronym: "DNA"},
			{Identifier: CollectionOther, Name: "Other"},
			{Identifier: CollectionTissue, Name: "Tissue"},
		},
		TypeToCollection: map[string]string{
			fhirmodels.MaterialTissueFrozen:         CollectionCells,
			fhirmodels.MaterialTissueOther:          CollectionCells,
			fhirmodels.MaterialPeripheralBloodCells: CollectionCells,
			fhirmodels.MaterialBloodPlasma:          CollectionBloodSamples,
			fhirmodels.MaterialLiquidOther:          CollectionBloodSamples,
			fhirmodels.MaterialSerum:                CollectionBloodSamples,
			fhirmodels.MaterialDNA:                  CollectionDNA,
		},
	}
}

// Load reads a catalog from a YAML file. An empty path yields the built-in
// default. Note that the loader lowercases routing-table keys; BBMRI material
// type codes are lowercase already.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Catalog{}, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	var cat Catalog
	if err := v.Unmarshal(&cat); err != nil {
		return Catalog{}, fmt.Errorf("unmarshal catalog file %s: %w", path, err)
	}
	return cat, nil
}

// CollectionForType resolves a material type code to a collection identifier.
func (c Catalog) CollectionForType(code string) (string, bool) {
	id, ok := c.TypeToCollection[code]
	return id, ok
}

// Contains reports whether the catalog declares the given collection identifier.
func (c Catalog) Contains(identifier string) bool {
	for _, col := range c.Collections {
		if col.Identifier == identifier {
			return true
		}
	}
	return false
}

// Validate checks internal consistency: descriptors need identifiers and
// names, identifiers must be unique, and every routing-table target must be a
// declared collection (otherwise seeding cannot guarantee the corrector's
// lookups succeed).
func (c Catalog) Validate() error {
	if len(c.Collections) == 0 {
		return fmt.Errorf("catalog declares no collections")
	}
	seen := make(map[string]bool, len(c.Collections))
	for _, col := range c.Collections {
		if col.Identifier == "" {
			return fmt.Errorf("collection %q has no identifier", col.Name)
		}
		if col.Name == "" {
			return fmt.Errorf("collection %s has no name", col.Identifier)
		}
		if seen[col.Identifier] {
			return fmt.Errorf("duplicate collection identifier %s", col.Identifier)
		}
		seen[col.Identifier] = true
	}
	for code, target := range c.TypeToCollection {
		if !seen[target] {
			return fmt.Errorf("type code %q maps to undeclared collection %s", code, target)
		}
	}
	return nil
}
