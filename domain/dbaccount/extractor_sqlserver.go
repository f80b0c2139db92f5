package dbaccount

import (
	"encoding/json"
	"fmt"
	"sort"
)

// sqlserverExtractor normalizes SQL Server login permissions. Role
// membership is the union of server roles and flattened per-database roles;
// sysadmin marks a superuser, securityadmin or CONTROL SERVER marks a grant
// administrator.
type sqlserverExtractor struct{}

func (e *sqlserverExtractor) DbType() DbType {
	return DbTypeSQLServer
}

func (e *sqlserverExtractor) RequiredCategories() []string {
	return []string{
		CategoryServerRoles,
		CategoryServerPermissions,
	}
}

func (e *sqlserverExtractor) Extract(facts *PermissionFacts, categories map[string]json.RawMessage) {
	checkRequiredCategories(facts, categories, e.RequiredCategories())

	perms := SQLServerPermissions{
		ServerRoles:         decodeStringList(facts, categories, CategoryServerRoles),
		ServerPermissions:   decodeStringList(facts, categories, CategoryServerPermissions),
		DatabaseRoles:       decodeStringListMap(facts, categories, CategoryDatabaseRoles),
		DatabasePermissions: decodeStringListMap(facts, categories, CategoryDatabasePermissions),
	}

	for _, role := range perms.ServerRoles {
		facts.AddRole(role)
	}
	databases := make([]string, 0, len(perms.DatabaseRoles))
	for database := range perms.DatabaseRoles {
		databases = append(databases, database)
	}
	sort.Strings(databases)
	for _, database := range databases {
		for _, role := range perms.DatabaseRoles[database] {
			facts.AddRole(role)
		}
	}

	facts.AddPrivileges(ScopeServer, perms.ServerPermissions...)

	permDatabases := make([]string, 0, len(perms.DatabasePermissions))
	for database := range perms.DatabasePermissions {
		permDatabases = append(permDatabases, database)
	}
	sort.Strings(permDatabases)
	for _, database := range permDatabases {
		for _, permission := range perms.DatabasePermissions[database] {
			facts.AddPrivileges(ScopeDatabase, scopedPrivilege(database, permission))
		}
	}

	if facts.HasRole("sysadmin") {
		facts.AddCapability(CapabilitySuperuser,
			fmt.Sprintf("%s contains sysadmin", CategoryServerRoles))
	}
	if facts.HasRole("securityadmin") {
		facts.AddCapability(CapabilityGrantAdmin,
			fmt.Sprintf("%s contains securityadmin", CategoryServerRoles))
	}
	for _, permission := range perms.ServerPermissions {
		if permission == "CONTROL SERVER" {
			facts.AddCapability(CapabilityGrantAdmin,
				fmt.Sprintf("%s contains CONTROL SERVER", CategoryServerPermissions))
		}
	}
}
