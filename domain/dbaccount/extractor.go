package dbaccount

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CapabilityExtractor translates one vendor's raw snapshot categories into
// normalized roles, privileges, and derived capabilities. One implementation
// exists per vendor; adding a vendor means adding an implementation, not
// touching shared dispatch code.
type CapabilityExtractor interface {
	// DbType returns the vendor this extractor handles.
	DbType() DbType

	// RequiredCategories lists the category keys the version-4 contract
	// requires for this vendor.
	RequiredCategories() []string

	// Extract populates facts from the snapshot categories. Malformed
	// category payloads are recorded in facts.Errors; extraction continues
	// on whatever decodes.
	Extract(facts *PermissionFacts, categories map[string]json.RawMessage)
}

// defaultExtractors returns the extractor registry for all supported vendors.
func defaultExtractors() map[DbType]CapabilityExtractor {
	return map[DbType]CapabilityExtractor{
		DbTypeMySQL:     &mysqlExtractor{},
		DbTypePostgres:  &postgresExtractor{},
		DbTypeSQLServer: &sqlserverExtractor{},
		DbTypeOracle:    &oracleExtractor{},
	}
}

// checkRequiredCategories verifies the vendor's required keys are present,
// recording a type-specific contract violation listing the missing ones.
func checkRequiredCategories(facts *PermissionFacts, categories map[string]json.RawMessage, required []string) {
	var missing []string
	for _, key := range required {
		if _, ok := categories[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		facts.failTypeContract(ErrCodeMissingRequiredFields,
			fmt.Sprintf("missing required categories: %s", strings.Join(missing, ", ")))
	}
}

// decodeStringList decodes a category holding a flat list of strings.
// Returns nil (and records the fault) when the payload is malformed.
func decodeStringList(facts *PermissionFacts, categories map[string]json.RawMessage, key string) []string {
	raw, ok := categories[key]
	if !ok {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		facts.AddError(fmt.Sprintf("category %s: %v", key, err))
		return nil
	}
	return values
}

// decodeStringListMap decodes a category holding lists keyed by database name.
func decodeStringListMap(facts *PermissionFacts, categories map[string]json.RawMessage, key string) map[string][]string {
	raw, ok := categories[key]
	if !ok {
		return nil
	}
	var values map[string][]string
	if err := json.Unmarshal(raw, &values); err != nil {
		facts.AddError(fmt.Sprintf("category %s: %v", key, err))
		return nil
	}
	return values
}

// decodeBoolMap decodes a category holding attribute-name to flag pairs.
func decodeBoolMap(facts *PermissionFacts, categories map[string]json.RawMessage, key string) map[string]bool {
	raw, ok := categories[key]
	if !ok {
		return nil
	}
	var values map[string]bool
	if err := json.Unmarshal(raw, &values); err != nil {
		facts.AddError(fmt.Sprintf("category %s: %v", key, err))
		return nil
	}
	return values
}

// scopedPrivilege renders a database-scoped privilege as "<db>:<privilege>"
// so the flat per-scope list keeps its provenance.
func scopedPrivilege(database, privilege string) string {
	return database + ":" + privilege
}
