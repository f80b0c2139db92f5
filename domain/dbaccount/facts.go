package dbaccount

import (
	"encoding/json"
	"sort"
)

// FactsMeta carries contract-validation flags for a normalization run.
// SnapshotContractOk covers the envelope (presence, version, categories);
// TypeSpecificContractOk covers the vendor's required category keys.
type FactsMeta struct {
	SnapshotContractOk     bool   `json:"snapshot_contract_ok"`
	TypeSpecificContractOk bool   `json:"type_specific_contract_ok"`
	ErrorCode              string `json:"error_code,omitempty"`
}

// PermissionFacts is the normalized, vendor-independent representation of an
// account's permissions. Capabilities are always explainable: every entry in
// Capabilities has at least one provenance string in CapabilityReasons.
type PermissionFacts struct {
	DbType      DbType             `json:"db_type"`
	IsSuperuser bool               `json:"is_superuser"`
	IsLocked    bool               `json:"is_locked"`
	Roles       []string           `json:"roles"`
	Privileges  map[Scope][]string `json:"privileges"`

	Capabilities      []string            `json:"capabilities"`
	CapabilityReasons map[string][]string `json:"capability_reasons"`

	Errors []string  `json:"errors,omitempty"`
	Meta   FactsMeta `json:"meta"`

	roleSet map[string]bool
	capSet  map[string]bool
}

// NewPermissionFacts creates empty facts for an account. Contract flags start
// true and are lowered as violations are discovered.
func NewPermissionFacts(dbType DbType, isSuperuser, isLocked bool) *PermissionFacts {
	return &PermissionFacts{
		DbType:            dbType,
		IsSuperuser:       isSuperuser,
		IsLocked:          isLocked,
		Roles:             []string{},
		Privileges:        map[Scope][]string{},
		Capabilities:      []string{},
		CapabilityReasons: map[string][]string{},
		Meta: FactsMeta{
			SnapshotContractOk:     true,
			TypeSpecificContractOk: true,
		},
		roleSet: map[string]bool{},
		capSet:  map[string]bool{},
	}
}

// AddRole records a role membership, deduplicating and keeping Roles sorted.
func (f *PermissionFacts) AddRole(role string) {
	if role == "" || f.roleSet[role] {
		return
	}
	f.roleSet[role] = true
	f.Roles = append(f.Roles, role)
	sort.Strings(f.Roles)
}

// HasRole reports whether the account holds the given role.
func (f *PermissionFacts) HasRole(role string) bool {
	return f.roleSet[role]
}

// AddPrivileges appends privileges under a scope, preserving order and
// skipping duplicates within the scope.
func (f *PermissionFacts) AddPrivileges(scope Scope, privileges ...string) {
	existing := make(map[string]bool, len(f.Privileges[scope]))
	for _, p := range f.Privileges[scope] {
		existing[p] = true
	}
	for _, p := range privileges {
		if p == "" || existing[p] {
			continue
		}
		existing[p] = true
		f.Privileges[scope] = append(f.Privileges[scope], p)
	}
}

// HasPrivilege reports whether the given privilege is present in a scope.
func (f *PermissionFacts) HasPrivilege(scope Scope, privilege string) bool {
	for _, p := range f.Privileges[scope] {
		if p == privilege {
			return true
		}
	}
	return false
}

// AddCapability records a derived capability with its provenance reason.
// The reason is mandatory: an unexplainable capability is rejected rather
// than recorded. Repeated derivations of the same capability accumulate
// reasons, not duplicate entries.
func (f *PermissionFacts) AddCapability(capability, reason string) {
	if capability == "" || reason == "" {
		return
	}
	if !f.capSet[capability] {
		f.capSet[capability] = true
		f.Capabilities = append(f.Capabilities, capability)
		sort.Strings(f.Capabilities)
	}
	for _, r := range f.CapabilityReasons[capability] {
		if r == reason {
			return
		}
	}
	f.CapabilityReasons[capability] = append(f.CapabilityReasons[capability], reason)
}

// HasCapability reports whether the capability was derived for this account.
func (f *PermissionFacts) HasCapability(capability string) bool {
	return f.capSet[capability]
}

// AddError records a non-fatal normalization problem.
func (f *PermissionFacts) AddError(msg string) {
	if msg == "" {
		return
	}
	f.Errors = append(f.Errors, msg)
}

// failSnapshotContract lowers the envelope contract flag with a specific code.
func (f *PermissionFacts) failSnapshotContract(code, msg string) {
	f.Meta.SnapshotContractOk = false
	f.Meta.ErrorCode = code
	f.AddError(msg)
}

// failTypeContract lowers the vendor contract flag with a specific code.
func (f *PermissionFacts) failTypeContract(code, msg string) {
	f.Meta.TypeSpecificContractOk = false
	f.Meta.ErrorCode = code
	f.AddError(msg)
}

// Encode serializes the facts for storage.
func (f *PermissionFacts) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFacts deserializes stored facts and restores internal lookup state.
func DecodeFacts(data []byte) (*PermissionFacts, error) {
	var facts PermissionFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, err
	}
	if facts.Privileges == nil {
		facts.Privileges = map[Scope][]string{}
	}
	if facts.CapabilityReasons == nil {
		facts.CapabilityReasons = map[string][]string{}
	}
	facts.rebuildSets()
	return &facts, nil
}

// rebuildSets restores the internal lookup sets after deserialization.
func (f *PermissionFacts) rebuildSets() {
	f.roleSet = make(map[string]bool, len(f.Roles))
	for _, r := range f.Roles {
		f.roleSet[r] = true
	}
	f.capSet = make(map[string]bool, len(f.Capabilities))
	for _, c := range f.Capabilities {
		f.capSet[c] = true
	}
}
