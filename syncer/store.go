package syncer

import (
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Notification{}); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenQueryDB opens an existing store for querying without mutating schema.
// Used when inspecting a pulled replica before adopting it.
func OpenQueryDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// ExistingReferences returns the full set of reference keys in one bulk read.
// The store grows unbounded, so the merge path must not probe row-by-row.
func ExistingReferences(db *gorm.DB) (map[string]struct{}, error) {
	var refs []string
	if err := db.Model(&Notification{}).Pluck("reference", &refs).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		out[r] = struct{}{}
	}
	return out, nil
}

// LatestCaseDate is the sync cursor: the maximum case date present in the
// store, nil when the store is empty or holds only dateless rows. A nil
// cursor makes the resolver fall back to the configured epoch, which is safe
// because merging is idempotent.
func LatestCaseDate(db *gorm.DB) (*time.Time, error) {
	var n Notification
	err := db.Where("case_date IS NOT NULL").
		Order("case_date DESC").
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n.CaseDate, nil
}

func CountNotifications(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Notification{}).Count(&n).Error
	return n, err
}
