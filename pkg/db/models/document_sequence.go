package models

// DocumentSequence is the per-prefix, per-day counter behind document numbers.
type DocumentSequence struct {
	Prefix    string `gorm:"column:prefix;primaryKey"`
	Day       string `gorm:"column:day;primaryKey"`
	LastValue int64  `gorm:"column:last_value;not null"`
}
