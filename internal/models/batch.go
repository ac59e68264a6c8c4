package models

import "time"

// Generation types recorded on batches and cards.
const (
	// GenerationOriginal marks first-issue stock.
	GenerationOriginal = "original"
	// GenerationReplacement marks stock issued to replace invalidated cards.
	GenerationReplacement = "replacement"
)

// Batch represents a top-level issuance unit of one denomination.
type Batch struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BatchNumber    string `gorm:"type:text;not null;uniqueIndex"`        // Human-readable batch code.
	Denomination   int64  `gorm:"not null"`                              // Card value in minor currency units, uniform across the batch.
	GenerationType string `gorm:"type:text;not null;default:'original'"` // original or replacement.
	Active         bool   `gorm:"not null;default:true"`                 // Cleared when every card in the batch is invalidated.
	Note           string `gorm:"type:text"`                             // Free-form operator note.

	Bundles []Bundle `gorm:"foreignKey:BatchID"` // Owned bundles, exclusive to this batch.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
