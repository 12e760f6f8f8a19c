package models

import (
	"hatchery/contracts/spawn"
)

// IndexKey names one of the registry's four address indices: the
// global active and inactive lists, and the per-owner active and
// inactive lists. Owner is zero for the global pair.
//
// The four indices are disjoint views of the same records: every
// registered instance appears in exactly one global index and exactly
// one index of its owner, and both always agree with the record's
// Status.
type IndexKey struct {
	Status RecordStatus
	Owner  spawn.Address
}

// GlobalIndex keys the registry-wide index for a status.
func GlobalIndex(status RecordStatus) IndexKey {
	return IndexKey{Status: status}
}

// OwnerIndex keys one owner's index for a status.
func OwnerIndex(status RecordStatus, owner spawn.Address) IndexKey {
	return IndexKey{Status: status, Owner: owner}
}

// IsGlobal reports whether the key names a registry-wide index.
func (k IndexKey) IsGlobal() bool {
	return k.Owner.IsZero()
}
