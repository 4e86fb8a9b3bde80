package syncer

import (
	"gorm.io/gorm"
)

// Merge appends the candidates whose reference is not yet in the store and
// returns how many were inserted. One bulk reference read, one batched
// insert, committed per call: re-merging an already-ingested period inserts
// nothing, and a later period's failure never rolls back an earlier one.
// Existing rows are never touched, so a candidate re-observed with a
// different payload keeps its original payload.
func Merge(db *gorm.DB, candidates []Notification) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	existing, err := ExistingReferences(db)
	if err != nil {
		return 0, err
	}

	fresh := make([]Notification, 0, len(candidates))
	for _, c := range candidates {
		if c.Reference == "" {
			continue
		}
		if _, ok := existing[c.Reference]; ok {
			continue
		}
		// A reference can repeat within one fetched batch as well.
		existing[c.Reference] = struct{}{}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&fresh, 500).Error
	})
	if err != nil {
		return 0, err
	}
	return len(fresh), nil
}
