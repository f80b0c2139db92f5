package dbaccount

import (
	"encoding/json"
	"time"
)

// SnapshotVersion is the only collector payload version the normalizer
// accepts. Collectors emitting any other version are contract violations.
const SnapshotVersion = 4

// Category keys for the version-4 collector contract. Keys are
// vendor-prefixed; an unprefixed or unknown key is a contract violation,
// never silently remapped.
const (
	// MySQL
	CategoryMySQLGlobalPrivileges   = "mysql_global_privileges"
	CategoryMySQLGrantedRoles       = "mysql_granted_roles"
	CategoryMySQLDefaultRoles       = "mysql_default_roles"
	CategoryMySQLDatabasePrivileges = "mysql_database_privileges"

	// PostgreSQL
	CategoryPostgresRoleAttributes     = "postgres_role_attributes"
	CategoryPostgresPredefinedRoles    = "postgres_predefined_roles"
	CategoryPostgresDatabasePrivileges = "postgres_database_privileges"

	// SQL Server
	CategoryServerRoles         = "server_roles"
	CategoryServerPermissions   = "server_permissions"
	CategoryDatabaseRoles       = "database_roles"
	CategoryDatabasePermissions = "database_permissions"

	// Oracle
	CategoryOracleRoles                = "oracle_roles"
	CategoryOracleSystemPrivileges     = "oracle_system_privileges"
	CategoryOracleTablespacePrivileges = "oracle_tablespace_privileges"
)

// RawPermissionSnapshot is the vendor-tagged, versioned permission payload a
// collector produces for a single account. It is opaque to everything except
// the normalizer: the Version field stays raw so that a numeric-looking
// string never passes the version check by accident, and each category value
// stays undecoded until the vendor extractor claims it.
type RawPermissionSnapshot struct {
	DbType     DbType                     `json:"db_type"`
	Version    json.RawMessage            `json:"version"`
	Categories map[string]json.RawMessage `json:"categories"`
}

// NewSnapshot builds a well-formed version-4 snapshot. Intended for
// collectors and tests; the normalizer never assumes its input came from
// here.
func NewSnapshot(dbType DbType, categories map[string]json.RawMessage) *RawPermissionSnapshot {
	version, _ := json.Marshal(SnapshotVersion)
	return &RawPermissionSnapshot{
		DbType:     dbType,
		Version:    version,
		Categories: categories,
	}
}

// AccountSnapshot pairs one account's identity flags with its raw
// permission payload as collected from the remote instance.
type AccountSnapshot struct {
	Username    string                 `json:"username"`
	IsSuperuser bool                   `json:"is_superuser"`
	IsLocked    bool                   `json:"is_locked"`
	Permissions *RawPermissionSnapshot `json:"permissions"`
}

// InstanceSnapshot is the complete result of one collector run against one
// instance: every account visible to the collector, each with its raw
// permission snapshot.
type InstanceSnapshot struct {
	InstanceID  string            `json:"instance_id"`
	DbType      DbType            `json:"db_type"`
	CollectedAt time.Time         `json:"collected_at"`
	Accounts    []AccountSnapshot `json:"accounts"`
}

// MySQLPermissions is the decoded shape of the MySQL snapshot categories.
type MySQLPermissions struct {
	GlobalPrivileges   []string
	GrantedRoles       []string
	DefaultRoles       []string
	DatabasePrivileges map[string][]string
}

// PostgresPermissions is the decoded shape of the PostgreSQL snapshot
// categories. RoleAttributes maps pg_roles attribute names to their values
// (e.g. can_create_role -> true).
type PostgresPermissions struct {
	RoleAttributes     map[string]bool
	PredefinedRoles    []string
	DatabasePrivileges map[string][]string
}

// SQLServerPermissions is the decoded shape of the SQL Server snapshot
// categories. Database-scoped entries are keyed by database name.
type SQLServerPermissions struct {
	ServerRoles         []string
	ServerPermissions   []string
	DatabaseRoles       map[string][]string
	DatabasePermissions map[string][]string
}

// OraclePermissions is the decoded shape of the Oracle snapshot categories.
type OraclePermissions struct {
	Roles                []string
	SystemPrivileges     []string
	TablespacePrivileges []string
}
