// Package lifecycle owns the card status state machine. Every write to a
// card's status goes through it; rejected transitions leave the card
// untouched.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/voucher-service/internal/models"
)

// ErrInvalidTransition indicates a status transition outside the table.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// Skip reasons reported by bulk operations for ineligible cards.
const (
	ReasonAlreadyUsed        = "already used"
	ReasonAlreadyInvalidated = "already invalidated"
	ReasonAlreadySold        = "already sold"
	ReasonSoldDigitally      = "sold via digital channel"
	ReasonAlreadyRegenerated = "already regenerated"
	ReasonNotInvalidated     = "not invalidated"
)

// MarkSold moves an available card to sold_unused over the given channel
// and stamps SoldAt.
func MarkSold(card *models.Card, channel string, now time.Time) error {
	if channel != models.ChannelPhysical && channel != models.ChannelDigital {
		return fmt.Errorf("lifecycle: unknown channel %q", channel)
	}
	if card.Status != models.CardStatusAvailable {
		return ErrInvalidTransition
	}
	card.Status = models.CardStatusSoldUnused
	card.SoldVia = &channel
	card.SoldAt = &now
	return nil
}

// Redeem moves a sold_unused card to used and stamps UsedAt. This is the
// only path into the used state.
func Redeem(card *models.Card, now time.Time) error {
	if card.Status != models.CardStatusSoldUnused {
		return ErrInvalidTransition
	}
	card.Status = models.CardStatusUsed
	card.UsedAt = &now
	return nil
}

// Invalidate permanently withdraws a card and stamps InvalidatedAt.
// Permitted from available, or from sold_unused when sold physically.
func Invalidate(card *models.Card, now time.Time) error {
	if !CanInvalidate(card) {
		return ErrInvalidTransition
	}
	card.Status = models.CardStatusInvalidated
	card.InvalidatedAt = &now
	return nil
}

// CanInvalidate reports whether the invalidation guard admits the card:
// available, or sold_unused via the physical channel.
func CanInvalidate(card *models.Card) bool {
	switch card.Status {
	case models.CardStatusAvailable:
		return true
	case models.CardStatusSoldUnused:
		return card.SoldVia != nil && *card.SoldVia == models.ChannelPhysical
	default:
		return false
	}
}

// CanRegenerate reports whether a card is eligible for replacement:
// invalidated and not yet regenerated.
func CanRegenerate(card *models.Card) bool {
	return card.Status == models.CardStatusInvalidated && !card.Regenerated
}

// InvalidateSkipReason explains why a card fails the invalidation guard.
func InvalidateSkipReason(card *models.Card) string {
	switch card.Status {
	case models.CardStatusUsed:
		return ReasonAlreadyUsed
	case models.CardStatusInvalidated:
		return ReasonAlreadyInvalidated
	case models.CardStatusSoldUnused:
		return ReasonSoldDigitally
	default:
		return ""
	}
}

// MarkSoldSkipReason explains why a card cannot be marked sold.
func MarkSoldSkipReason(card *models.Card) string {
	switch card.Status {
	case models.CardStatusSoldUnused:
		return ReasonAlreadySold
	case models.CardStatusUsed:
		return ReasonAlreadyUsed
	case models.CardStatusInvalidated:
		return ReasonAlreadyInvalidated
	default:
		return ""
	}
}

// RegenerateSkipReason explains why a card is not a regeneration candidate.
func RegenerateSkipReason(card *models.Card) string {
	if card.Status != models.CardStatusInvalidated {
		return ReasonNotInvalidated
	}
	if card.Regenerated {
		return ReasonAlreadyRegenerated
	}
	return ""
}
