package voucher

import "github.com/cardvault/voucher-service/internal/models"

// AffectedCard identifies a card changed by a bulk operation.
type AffectedCard struct {
	ID           uint64 `json:"id"`
	SerialNumber string `json:"serial_number"`
}

// SkippedCard identifies a card a bulk operation left untouched, with the
// specific reason.
type SkippedCard struct {
	ID           uint64 `json:"id"`
	SerialNumber string `json:"serial_number"`
	Reason       string `json:"reason"`
}

// BulkReport is the complete affected/skipped result of a bulk mutation.
type BulkReport struct {
	Affected []AffectedCard `json:"affected"`
	Skipped  []SkippedCard  `json:"skipped"`
}

// CardSecret pairs a freshly issued card with its raw PIN. It exists only
// in the issuance response; the PIN is never persisted or logged.
type CardSecret struct {
	CardID       uint64 `json:"card_id"`
	SerialNumber string `json:"serial_number"`
	PIN          string `json:"pin"`
}

// IssuedBatch is the all-or-nothing result of a batch issuance.
type IssuedBatch struct {
	Batch   models.Batch `json:"batch"`
	Secrets []CardSecret `json:"secrets"`
}

// RegenerationReport describes one regeneration pass: replacement cards
// with their one-time secrets, the originals marked as regenerated, and
// the candidates skipped.
type RegenerationReport struct {
	NewCards        []CardSecret  `json:"new_cards"`
	OriginalsMarked []uint64      `json:"originals_marked"`
	Skipped         []SkippedCard `json:"skipped"`
}
