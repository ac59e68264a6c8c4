package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions recorded by the voucher service.
const (
	AuditActionIssueBatch = "issue_batch"
	AuditActionInvalidate = "invalidate"
	AuditActionMarkSold   = "mark_sold"
	AuditActionRegenerate = "regenerate"
	AuditActionRedeem     = "redeem"
)

// AuditLog records one issuance or bulk mutation with its full report.
type AuditLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Actor  string `gorm:"type:text;not null"`       // Admin username or system actor.
	Action string `gorm:"type:text;not null;index"` // One of the AuditAction constants.
	Scope  string `gorm:"type:text;not null"`       // Target, e.g. "batch:12" or "bundle:3".

	Payload datatypes.JSON `gorm:"type:json"` // Affected/skipped report as returned to the caller.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
