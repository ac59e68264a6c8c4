package models

import "time"

// Bundle represents a sub-unit of a batch sharing one serial prefix.
type Bundle struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BatchID      uint64 `gorm:"not null;index"`                 // Owning batch.
	SerialPrefix string `gorm:"type:text;not null;uniqueIndex"` // Globally unique serial prefix.

	Cards []Card `gorm:"foreignKey:BundleID"` // Owned cards, exclusive to this bundle.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
