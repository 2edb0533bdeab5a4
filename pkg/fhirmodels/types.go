package fhirmodels

// Common BBMRI FHIR profile constants used across the application.

// Extension and profile URLs from the BBMRI.DE implementation guide.
const (
	CustodianExtensionURL = "https://fhir.bbmri.de/StructureDefinition/Custodian"
	CollectionProfile     = "https://fhir.bbmri.de/StructureDefinition/Collection"
	SpecimenProfile       = "https://fhir.bbmri.de/StructureDefinition/Specimen"
)

// Identifier system for BBMRI-ERIC directory identifiers.
const BBMRIERICIdentifierSystem = "http://www.bbmri-eric.eu/"

// SampleMaterialType code system for Specimen.type codings.
const SampleMaterialTypeSystem = "https://fhir.bbmri.de/CodeSystem/SampleMaterialType"

// SampleMaterialType codes.
const (
	MaterialTissueFrozen         = "tissue-frozen"
	MaterialTissueOther          = "tissue-other"
	MaterialPeripheralBloodCells = "peripheral-blood-cells-vital"
	MaterialBloodPlasma          = "blood-plasma"
	MaterialLiquidOther          = "liquid-other"
	MaterialSerum                = "serum"
	MaterialDNA                  = "dna"
)
