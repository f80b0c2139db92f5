package dbaccount

import (
	"encoding/json"
	"fmt"
)

// oracleExtractor normalizes Oracle account permissions. The DBA role
// carries both superuser and grant-administration capability; GRANT ANY
// PRIVILEGE alone marks a grant administrator.
type oracleExtractor struct{}

func (e *oracleExtractor) DbType() DbType {
	return DbTypeOracle
}

func (e *oracleExtractor) RequiredCategories() []string {
	return []string{
		CategoryOracleRoles,
		CategoryOracleSystemPrivileges,
	}
}

func (e *oracleExtractor) Extract(facts *PermissionFacts, categories map[string]json.RawMessage) {
	checkRequiredCategories(facts, categories, e.RequiredCategories())

	perms := OraclePermissions{
		Roles:                decodeStringList(facts, categories, CategoryOracleRoles),
		SystemPrivileges:     decodeStringList(facts, categories, CategoryOracleSystemPrivileges),
		TablespacePrivileges: decodeStringList(facts, categories, CategoryOracleTablespacePrivileges),
	}

	for _, role := range perms.Roles {
		facts.AddRole(role)
	}

	facts.AddPrivileges(ScopeSystem, perms.SystemPrivileges...)
	facts.AddPrivileges(ScopeTablespace, perms.TablespacePrivileges...)

	if facts.HasRole("DBA") {
		reason := fmt.Sprintf("%s contains DBA", CategoryOracleRoles)
		facts.AddCapability(CapabilitySuperuser, reason)
		facts.AddCapability(CapabilityGrantAdmin, reason)
	}
	for _, privilege := range perms.SystemPrivileges {
		if privilege == "GRANT ANY PRIVILEGE" {
			facts.AddCapability(CapabilityGrantAdmin,
				fmt.Sprintf("%s contains GRANT ANY PRIVILEGE", CategoryOracleSystemPrivileges))
		}
	}
}
