package dbaccount

import (
	"encoding/json"
	"fmt"
	"sort"
)

// mysqlExtractor normalizes MySQL account permissions. Role membership is
// the union of directly granted and default-activated roles; GRANT OPTION at
// the global level marks the account as a grant administrator.
type mysqlExtractor struct{}

func (e *mysqlExtractor) DbType() DbType {
	return DbTypeMySQL
}

func (e *mysqlExtractor) RequiredCategories() []string {
	return []string{
		CategoryMySQLGlobalPrivileges,
		CategoryMySQLGrantedRoles,
		CategoryMySQLDefaultRoles,
	}
}

func (e *mysqlExtractor) Extract(facts *PermissionFacts, categories map[string]json.RawMessage) {
	checkRequiredCategories(facts, categories, e.RequiredCategories())

	perms := MySQLPermissions{
		GlobalPrivileges:   decodeStringList(facts, categories, CategoryMySQLGlobalPrivileges),
		GrantedRoles:       decodeStringList(facts, categories, CategoryMySQLGrantedRoles),
		DefaultRoles:       decodeStringList(facts, categories, CategoryMySQLDefaultRoles),
		DatabasePrivileges: decodeStringListMap(facts, categories, CategoryMySQLDatabasePrivileges),
	}

	for _, role := range perms.GrantedRoles {
		facts.AddRole(role)
	}
	for _, role := range perms.DefaultRoles {
		facts.AddRole(role)
	}

	facts.AddPrivileges(ScopeGlobal, perms.GlobalPrivileges...)

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

	for _, privilege := range perms.GlobalPrivileges {
		if privilege == "GRANT OPTION" {
			facts.AddCapability(CapabilityGrantAdmin,
				fmt.Sprintf("%s contains GRANT OPTION", CategoryMySQLGlobalPrivileges))
		}
	}
}
