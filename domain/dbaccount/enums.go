package dbaccount

// DbType identifies a supported database engine vendor.
type DbType string

const (
	DbTypeMySQL     DbType = "mysql"
	DbTypePostgres  DbType = "postgres"
	DbTypeSQLServer DbType = "sqlserver"
	DbTypeOracle    DbType = "oracle"
)

// IsValid returns true if the DbType names a supported vendor.
func (t DbType) IsValid() bool {
	switch t {
	case DbTypeMySQL, DbTypePostgres, DbTypeSQLServer, DbTypeOracle:
		return true
	}
	return false
}

// Scope identifies where a privilege applies within a database engine.
type Scope string

const (
	ScopeGlobal     Scope = "global"
	ScopeServer     Scope = "server"
	ScopeSystem     Scope = "system"
	ScopeDatabase   Scope = "database"
	ScopeTablespace Scope = "tablespace"
)

// Cross-vendor capability names. Vendor-specific role attributes (e.g.
// can_create_db on PostgreSQL) become capabilities under their own names.
const (
	CapabilitySuperuser  = "SUPERUSER"
	CapabilityGrantAdmin = "GRANT_ADMIN"
)

// Contract error codes recorded in PermissionFacts.Meta when normalization
// input violates the collector contract.
const (
	ErrCodeSnapshotMissing       = "SNAPSHOT_MISSING"
	ErrCodePermissionDataMissing = "PERMISSION_DATA_MISSING"
	ErrCodeUnknownVersion        = "INTERNAL_CONTRACT_UNKNOWN_VERSION"
	ErrCodeMissingRequiredFields = "INTERNAL_CONTRACT_MISSING_REQUIRED_FIELDS"
)
