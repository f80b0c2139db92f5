package dbaccount

import (
	"encoding/json"
	"fmt"
	"sort"
)

// postgresExtractor normalizes PostgreSQL account permissions. Every
// true-valued role attribute becomes a capability under its own name; the
// superuser and role-creation attributes additionally map onto the
// cross-vendor SUPERUSER and GRANT_ADMIN capabilities.
type postgresExtractor struct{}

func (e *postgresExtractor) DbType() DbType {
	return DbTypePostgres
}

func (e *postgresExtractor) RequiredCategories() []string {
	return []string{
		CategoryPostgresRoleAttributes,
		CategoryPostgresPredefinedRoles,
	}
}

func (e *postgresExtractor) Extract(facts *PermissionFacts, categories map[string]json.RawMessage) {
	checkRequiredCategories(facts, categories, e.RequiredCategories())

	perms := PostgresPermissions{
		RoleAttributes:     decodeBoolMap(facts, categories, CategoryPostgresRoleAttributes),
		PredefinedRoles:    decodeStringList(facts, categories, CategoryPostgresPredefinedRoles),
		DatabasePrivileges: decodeStringListMap(facts, categories, CategoryPostgresDatabasePrivileges),
	}

	for _, role := range perms.PredefinedRoles {
		facts.AddRole(role)
	}

	databases := make([]string, 0, len(perms.DatabasePrivileges))
	for database := range perms.DatabasePrivileges {
		databases = append(databases, database)
	}
	sort.Strings(databases)
	for _, database := range databases {
		for _, privilege := range perms.DatabasePrivileges[database] {
			facts.AddPrivileges(ScopeDatabase, scopedPrivilege(database, privilege))
		}
	}

	attributes := make([]string, 0, len(perms.RoleAttributes))
	for attribute := range perms.RoleAttributes {
		attributes = append(attributes, attribute)
	}
	sort.Strings(attributes)
	for _, attribute := range attributes {
		if !perms.RoleAttributes[attribute] {
			continue
		}
		reason := fmt.Sprintf("%s.%s=true", CategoryPostgresRoleAttributes, attribute)
		facts.AddCapability(attribute, reason)

		switch attribute {
		case "can_super", "rolsuper":
			facts.AddCapability(CapabilitySuperuser, reason)
		case "can_create_role", "rolcreaterole":
			facts.AddCapability(CapabilityGrantAdmin, reason)
		}
	}
}
