package syncer

import "time"

// Notification is one food-safety alert as published by the weekly RASFF
// exports. Reference is the upstream identifier and the only key; rows are
// append-only (first observation wins, no update or delete path).
type Notification struct {
	Reference        string     `gorm:"primaryKey;size:64"`
	CaseDate         *time.Time `gorm:"index"`
	NotifyingCountry string     `gorm:"size:128"`
	OriginCountry    string     `gorm:"size:128"`
	Product          string     `gorm:"type:text"`
	ProductCategory  string     `gorm:"size:128"`
	// Mapped taxonomy fields. Always populated; unmapped raw values carry
	// the "Unknown" sentinel, never the empty string.
	SpecificProductCategory string `gorm:"size:128;index"`
	ProductGroup            string `gorm:"size:64;index"`
	HazardSubstance         string `gorm:"type:text"`
	HazardCategory          string `gorm:"size:128"`
	SpecificHazardCategory  string `gorm:"size:128;index"`
	HazardGroup             string `gorm:"size:64;index"`
	Classification          string `gorm:"size:128"`
	RiskDecision            string `gorm:"size:128"`
	Distribution            string `gorm:"type:text"`
	Attention               string `gorm:"type:text"`
	FollowUp                string `gorm:"type:text"`
	// Calendar fields derived from CaseDate; nil when the date did not parse.
	Year       *int      `gorm:"index"`
	Month      *int      `gorm:"index"`
	ISOWeek    *int      `gorm:"column:iso_week;index"`
	IngestedAt time.Time `gorm:"index"`
}
