package models

import "time"

// Card lifecycle statuses.
const (
	// CardStatusAvailable marks stock that can still be sold.
	CardStatusAvailable = "available"
	// CardStatusSoldUnused marks sold cards awaiting redemption.
	CardStatusSoldUnused = "sold_unused"
	// CardStatusUsed marks redeemed cards. Terminal.
	CardStatusUsed = "used"
	// CardStatusInvalidated marks cards withdrawn from circulation. Terminal.
	CardStatusInvalidated = "invalidated"
)

// Sales channels recorded on sold cards.
const (
	// ChannelPhysical marks cards printed and handed over.
	ChannelPhysical = "physical"
	// ChannelDigital marks cards sold through an online flow.
	ChannelDigital = "digital"
)

// Card represents an individual voucher instance.
type Card struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BundleID     uint64 `gorm:"not null;index"`                 // Owning bundle.
	SerialNumber string `gorm:"type:text;not null;uniqueIndex"` // Globally unique serial with check digit.
	PINHash      string `gorm:"type:text;not null"`             // Salted one-way hash; raw PINs are never stored.
	Denomination int64  `gorm:"not null"`                       // Card value in minor currency units.

	Status  string  `gorm:"type:text;not null;index;default:'available'"` // Lifecycle status.
	SoldVia *string `gorm:"type:text"`                                    // physical or digital once sold, nil before.

	Regenerated    bool   `gorm:"not null;default:false"`                // Set once when a replacement card has been issued.
	GenerationType string `gorm:"type:text;not null;default:'original'"` // original or replacement.

	BundleSerialPrefix string `gorm:"type:text;not null"` // Denormalized bundle prefix for display only.

	CreatedAt     time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	SoldAt        *time.Time // Set by the sale transition.
	UsedAt        *time.Time // Set by the redemption transition.
	InvalidatedAt *time.Time // Set by the invalidation transition.
}
