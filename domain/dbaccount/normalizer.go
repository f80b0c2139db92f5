package dbaccount

import (
	"encoding/json"
	"fmt"
)

// Normalizer turns raw, vendor-specific permission snapshots into
// PermissionFacts. It never fails: malformed input produces facts with the
// contract flags lowered and the fault recorded in facts.Errors, so a bad
// collector payload is auditable data rather than an aborted sync.
type Normalizer struct {
	extractors map[DbType]CapabilityExtractor
}

// NewNormalizer creates a normalizer with the standard vendor extractors.
func NewNormalizer() *Normalizer {
	return &Normalizer{extractors: defaultExtractors()}
}

// NewNormalizerWithExtractors creates a normalizer with an explicit extractor
// set. Used by tests and by deployments that carry extra vendors.
func NewNormalizerWithExtractors(extractors map[DbType]CapabilityExtractor) *Normalizer {
	return &Normalizer{extractors: extractors}
}

// Normalize produces facts for one account. isSuperuser and isLocked come
// from account metadata and are folded in independently of the snapshot:
// a superuser flag always yields the SUPERUSER capability even when the
// snapshot is unusable (union, not override).
func (n *Normalizer) Normalize(dbType DbType, isSuperuser, isLocked bool, snapshot *RawPermissionSnapshot) *PermissionFacts {
	facts := NewPermissionFacts(dbType, isSuperuser, isLocked)

	if isSuperuser {
		facts.AddCapability(CapabilitySuperuser, "is_superuser=True")
	}

	if snapshot == nil {
		facts.failSnapshotContract(ErrCodeSnapshotMissing, "permission snapshot missing")
		return facts
	}

	if !n.checkVersion(facts, snapshot.Version) {
		return facts
	}

	if len(snapshot.Categories) == 0 {
		facts.failSnapshotContract(ErrCodePermissionDataMissing, "snapshot has no permission categories")
		return facts
	}

	extractor, ok := n.extractors[dbType]
	if !ok {
		facts.failTypeContract(ErrCodeMissingRequiredFields,
			fmt.Sprintf("no capability extractor for db type %q", dbType))
		return facts
	}

	extractor.Extract(facts, snapshot.Categories)
	return facts
}

// checkVersion enforces the version-4 envelope contract. The version must be
// the JSON integer 4: a missing field or a non-integer value (including a
// numeric-looking string) is a missing-required-fields violation, and any
// other integer is an unknown version. Strings are never parsed as numbers.
func (n *Normalizer) checkVersion(facts *PermissionFacts, raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		facts.failSnapshotContract(ErrCodeMissingRequiredFields, "snapshot version missing")
		return false
	}

	var version int
	if err := json.Unmarshal(raw, &version); err != nil {
		facts.failSnapshotContract(ErrCodeMissingRequiredFields,
			fmt.Sprintf("snapshot version is not an integer: %s", string(raw)))
		return false
	}

	if version != SnapshotVersion {
		facts.failSnapshotContract(ErrCodeUnknownVersion,
			fmt.Sprintf("unsupported snapshot version %d", version))
		return false
	}

	return true
}
