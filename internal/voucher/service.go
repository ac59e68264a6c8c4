// Package voucher implements batch issuance and lifecycle management for
// gift card stock: all-or-nothing generation, bulk invalidation and sale,
// regeneration of invalidated cards, and redemption notification.
package voucher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/voucher-service/internal/aggregate"
	dbutil "github.com/cardvault/voucher-service/internal/db"
	"github.com/cardvault/voucher-service/internal/lifecycle"
	"github.com/cardvault/voucher-service/internal/models"
	"github.com/cardvault/voucher-service/internal/security"
	"github.com/cardvault/voucher-service/internal/serial"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options tunes issuance limits and generation parameters.
type Options struct {
	// PINLength is the generated PIN length in digits.
	PINLength int
	// SerialNumberWidth is the zero-padded width of the serial's numeric part.
	SerialNumberWidth int
	// MaxBundlesPerBatch bounds one issuance call.
	MaxBundlesPerBatch int
	// MaxCardsPerBundle bounds one issuance call.
	MaxCardsPerBundle int
	// Reservations optionally backs serial reservation with redis for
	// multi-node issuance. Nil keeps reservation on the database alone.
	Reservations *redis.Client
}

// normalize fills zero values with defaults.
func (o Options) normalize() Options {
	if o.PINLength == 0 {
		o.PINLength = 6
	}
	if o.SerialNumberWidth == 0 {
		o.SerialNumberWidth = 6
	}
	if o.MaxBundlesPerBatch == 0 {
		o.MaxBundlesPerBatch = 100
	}
	if o.MaxCardsPerBundle == 0 {
		o.MaxCardsPerBundle = 1000
	}
	return o
}

// Service owns every mutation of the batch/bundle/card hierarchy.
type Service struct {
	db   *gorm.DB
	opts Options
}

// NewService constructs a Service over an opened database.
func NewService(conn *gorm.DB, opts Options) *Service {
	return &Service{db: conn, opts: opts.normalize()}
}

// newGenerator builds a serial generator whose uniqueness checks see the
// given transaction's in-flight rows.
func (s *Service) newGenerator(tx *gorm.DB) *serial.Generator {
	var index serial.Index = serial.NewGormIndex(tx)
	if s.opts.Reservations != nil {
		index = serial.NewRedisIndex(s.opts.Reservations, index)
	}
	gen := serial.NewGenerator(index)
	gen.NumberWidth = s.opts.SerialNumberWidth
	return gen
}

// seedBatchSequence starts the generator's batch number sequence after the
// batches already issued today, so a generator built for this transaction
// does not replay numbers taken by earlier transactions. The generator's
// retry loop still covers concurrent issuances racing past the same count.
func seedBatchSequence(tx *gorm.DB, gen *serial.Generator) error {
	var count int64
	pattern := "B" + time.Now().UTC().Format("20060102") + "-%"
	if err := tx.Model(&models.Batch{}).Where("batch_number LIKE ?", pattern).Count(&count).Error; err != nil {
		return fmt.Errorf("voucher: seed batch sequence: %w", err)
	}
	gen.SeedSequence(uint32(count))
	return nil
}

// lockCards adds a row lock on dialects that support one. SQLite serializes
// writers on its own and rejects FOR UPDATE syntax.
func lockCards(tx *gorm.DB) *gorm.DB {
	if dbutil.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// IssueBatch generates a fully populated batch. The call is all-or-nothing:
// any generation failure rolls back every bundle and card created so far.
// Raw PINs appear only in the returned secrets.
func (s *Service) IssueBatch(ctx context.Context, denomination int64, bundleCount, cardsPerBundle int, note, actor string) (*IssuedBatch, error) {
	if denomination <= 0 {
		return nil, fmt.Errorf("voucher: denomination must be positive, got %d", denomination)
	}
	if bundleCount <= 0 || bundleCount > s.opts.MaxBundlesPerBatch {
		return nil, fmt.Errorf("voucher: bundle count must be between 1 and %d, got %d", s.opts.MaxBundlesPerBatch, bundleCount)
	}
	if cardsPerBundle <= 0 || cardsPerBundle > s.opts.MaxCardsPerBundle {
		return nil, fmt.Errorf("voucher: cards per bundle must be between 1 and %d, got %d", s.opts.MaxCardsPerBundle, cardsPerBundle)
	}

	var issued *IssuedBatch
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gen := s.newGenerator(tx)
		if errSeed := seedBatchSequence(tx, gen); errSeed != nil {
			return errSeed
		}

		batchNumber, errNumber := gen.GenerateBatchNumber(ctx)
		if errNumber != nil {
			return errNumber
		}
		batch := models.Batch{
			BatchNumber:    batchNumber,
			Denomination:   denomination,
			GenerationType: models.GenerationOriginal,
			Active:         true,
			Note:           note,
		}
		if errCreate := tx.Create(&batch).Error; errCreate != nil {
			return fmt.Errorf("voucher: create batch: %w", errCreate)
		}

		secrets := make([]CardSecret, 0, bundleCount*cardsPerBundle)
		for b := 0; b < bundleCount; b++ {
			prefix, errPrefix := gen.GenerateBundlePrefix(ctx)
			if errPrefix != nil {
				return errPrefix
			}
			bundle := models.Bundle{BatchID: batch.ID, SerialPrefix: prefix}
			if errCreate := tx.Create(&bundle).Error; errCreate != nil {
				return fmt.Errorf("voucher: create bundle: %w", errCreate)
			}

			for c := 0; c < cardsPerBundle; c++ {
				secret, errCard := s.createCard(ctx, tx, gen, &bundle, denomination, c+1, models.GenerationOriginal)
				if errCard != nil {
					return errCard
				}
				secrets = append(secrets, *secret)
			}
			batch.Bundles = append(batch.Bundles, bundle)
		}

		payload := map[string]any{
			"batch_id":     batch.ID,
			"batch_number": batch.BatchNumber,
			"bundles":      bundleCount,
			"cards":        bundleCount * cardsPerBundle,
		}
		if errAudit := writeAudit(tx, actor, models.AuditActionIssueBatch, fmt.Sprintf("batch:%d", batch.ID), payload); errAudit != nil {
			return errAudit
		}

		issued = &IssuedBatch{Batch: batch, Secrets: secrets}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	log.WithFields(log.Fields{
		"batch":   issued.Batch.BatchNumber,
		"bundles": bundleCount,
		"cards":   bundleCount * cardsPerBundle,
	}).Info("issued batch")
	return issued, nil
}

// createCard generates a serial and PIN for one card and persists it.
// The raw PIN leaves this function only inside the returned secret.
func (s *Service) createCard(ctx context.Context, tx *gorm.DB, gen *serial.Generator, bundle *models.Bundle, denomination int64, index int, generationType string) (*CardSecret, error) {
	serialNumber, errSerial := gen.GenerateCardSerial(ctx, bundle.SerialPrefix, index)
	if errSerial != nil {
		return nil, errSerial
	}
	pin, errPIN := security.GeneratePIN(s.opts.PINLength)
	if errPIN != nil {
		return nil, errPIN
	}
	pinHash, errHash := security.HashPIN(pin)
	if errHash != nil {
		return nil, errHash
	}

	card := models.Card{
		BundleID:           bundle.ID,
		SerialNumber:       serialNumber,
		PINHash:            pinHash,
		Denomination:       denomination,
		Status:             models.CardStatusAvailable,
		Regenerated:        false,
		GenerationType:     generationType,
		BundleSerialPrefix: bundle.SerialPrefix,
	}
	if errCreate := tx.Create(&card).Error; errCreate != nil {
		return nil, fmt.Errorf("voucher: create card: %w", errCreate)
	}
	bundle.Cards = append(bundle.Cards, card)

	return &CardSecret{CardID: card.ID, SerialNumber: serialNumber, PIN: pin}, nil
}

// Invalidate withdraws every eligible card in the scope. Ineligible cards
// are reported as skipped; re-invoking on a fully invalidated scope yields
// an empty affected set.
func (s *Service) Invalidate(ctx context.Context, scope Scope, actor string) (*BulkReport, error) {
	report := &BulkReport{Affected: []AffectedCard{}, Skipped: []SkippedCard{}}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batchID, cards, errLoad := s.loadScopeCards(ctx, tx, scope)
		if errLoad != nil {
			return errLoad
		}

		now := time.Now().UTC()
		for i := range cards {
			card := &cards[i]
			if errApply := lifecycle.Invalidate(card, now); errApply != nil {
				report.Skipped = append(report.Skipped, SkippedCard{
					ID:           card.ID,
					SerialNumber: card.SerialNumber,
					Reason:       lifecycle.InvalidateSkipReason(card),
				})
				continue
			}
			updates := map[string]any{"status": card.Status, "invalidated_at": card.InvalidatedAt}
			if errUpdate := tx.Model(&models.Card{}).Where("id = ?", card.ID).Updates(updates).Error; errUpdate != nil {
				return fmt.Errorf("voucher: invalidate card %d: %w", card.ID, errUpdate)
			}
			report.Affected = append(report.Affected, AffectedCard{ID: card.ID, SerialNumber: card.SerialNumber})
		}

		if len(report.Affected) > 0 {
			if errSync := s.syncBatchActive(ctx, tx, batchID); errSync != nil {
				return errSync
			}
		}
		return writeAudit(tx, actor, models.AuditActionInvalidate, scope.String(), report)
	})
	if errTx != nil {
		return nil, errTx
	}

	log.WithFields(log.Fields{
		"scope":    scope.String(),
		"affected": len(report.Affected),
		"skipped":  len(report.Skipped),
	}).Info("invalidated cards")
	return report, nil
}

// MarkSold transitions the given cards from available to sold_unused over
// one channel. Cards in any other state are skipped and reported.
func (s *Service) MarkSold(ctx context.Context, cardIDs []uint64, channel, actor string) (*BulkReport, error) {
	if channel != models.ChannelPhysical && channel != models.ChannelDigital {
		return nil, fmt.Errorf("voucher: unknown channel %q", channel)
	}
	if len(cardIDs) == 0 {
		return nil, fmt.Errorf("voucher: no card ids given")
	}

	report := &BulkReport{Affected: []AffectedCard{}, Skipped: []SkippedCard{}}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cards []models.Card
		if errFind := lockCards(tx).Where("id IN ?", cardIDs).Find(&cards).Error; errFind != nil {
			return fmt.Errorf("voucher: load cards: %w", errFind)
		}
		byID := make(map[uint64]*models.Card, len(cards))
		for i := range cards {
			byID[cards[i].ID] = &cards[i]
		}

		now := time.Now().UTC()
		for _, id := range cardIDs {
			card, ok := byID[id]
			if !ok {
				report.Skipped = append(report.Skipped, SkippedCard{ID: id, Reason: "not found"})
				continue
			}
			if errApply := lifecycle.MarkSold(card, channel, now); errApply != nil {
				report.Skipped = append(report.Skipped, SkippedCard{
					ID:           card.ID,
					SerialNumber: card.SerialNumber,
					Reason:       lifecycle.MarkSoldSkipReason(card),
				})
				continue
			}
			updates := map[string]any{"status": card.Status, "sold_via": channel, "sold_at": card.SoldAt}
			if errUpdate := tx.Model(&models.Card{}).Where("id = ?", card.ID).Updates(updates).Error; errUpdate != nil {
				return fmt.Errorf("voucher: mark card %d sold: %w", card.ID, errUpdate)
			}
			report.Affected = append(report.Affected, AffectedCard{ID: card.ID, SerialNumber: card.SerialNumber})
		}

		return writeAudit(tx, actor, models.AuditActionMarkSold, fmt.Sprintf("cards:%d", len(cardIDs)), report)
	})
	if errTx != nil {
		return nil, errTx
	}
	return report, nil
}

// Regenerate issues replacement cards for every invalidated, not yet
// regenerated card in the scope. Each original is marked regenerated
// exactly once and keeps its status; the replacement joins the same bundle
// as available stock. A batch left fully invalidated becomes active again.
func (s *Service) Regenerate(ctx context.Context, scope Scope, actor string) (*RegenerationReport, error) {
	report := &RegenerationReport{NewCards: []CardSecret{}, OriginalsMarked: []uint64{}, Skipped: []SkippedCard{}}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batchID, cards, errLoad := s.loadScopeCards(ctx, tx, scope)
		if errLoad != nil {
			return errLoad
		}
		gen := s.newGenerator(tx)

		// Next serial index per bundle starts after the existing cards.
		nextIndex := map[uint64]int{}
		bundles := map[uint64]*models.Bundle{}
		for i := range cards {
			nextIndex[cards[i].BundleID]++
		}

		for i := range cards {
			card := &cards[i]
			if !lifecycle.CanRegenerate(card) {
				// Cards that were never invalidated are simply not
				// candidates; only report invalidated-but-regenerated ones.
				if card.Status == models.CardStatusInvalidated {
					report.Skipped = append(report.Skipped, SkippedCard{
						ID:           card.ID,
						SerialNumber: card.SerialNumber,
						Reason:       lifecycle.RegenerateSkipReason(card),
					})
				}
				continue
			}

			bundle, ok := bundles[card.BundleID]
			if !ok {
				bundle = &models.Bundle{}
				if errFind := tx.First(bundle, card.BundleID).Error; errFind != nil {
					return fmt.Errorf("voucher: load bundle %d: %w", card.BundleID, errFind)
				}
				bundles[card.BundleID] = bundle
			}

			if errMark := tx.Model(&models.Card{}).Where("id = ?", card.ID).Update("regenerated", true).Error; errMark != nil {
				return fmt.Errorf("voucher: mark card %d regenerated: %w", card.ID, errMark)
			}
			report.OriginalsMarked = append(report.OriginalsMarked, card.ID)

			nextIndex[card.BundleID]++
			secret, errCard := s.createCard(ctx, tx, gen, bundle, card.Denomination, nextIndex[card.BundleID], models.GenerationReplacement)
			if errCard != nil {
				return errCard
			}
			report.NewCards = append(report.NewCards, *secret)
		}

		if len(report.NewCards) > 0 {
			if errSync := s.syncBatchActive(ctx, tx, batchID); errSync != nil {
				return errSync
			}
		}

		// The audit payload must not carry raw PINs.
		audit := map[string]any{
			"originals_marked": report.OriginalsMarked,
			"new_cards":        affectedFromSecrets(report.NewCards),
			"skipped":          report.Skipped,
		}
		return writeAudit(tx, actor, models.AuditActionRegenerate, scope.String(), audit)
	})
	if errTx != nil {
		return nil, errTx
	}

	log.WithFields(log.Fields{
		"scope":     scope.String(),
		"new_cards": len(report.NewCards),
		"skipped":   len(report.Skipped),
	}).Info("regenerated cards")
	return report, nil
}

// NotifyRedeemed applies the sold_unused → used transition for a card. It
// is the only entry point into the used state; the redemption protocol
// itself lives outside this service.
func (s *Service) NotifyRedeemed(ctx context.Context, cardID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card models.Card
		if errFind := lockCards(tx).First(&card, cardID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("voucher: load card: %w", errFind)
		}

		if errApply := lifecycle.Redeem(&card, time.Now().UTC()); errApply != nil {
			return errApply
		}
		updates := map[string]any{"status": card.Status, "used_at": card.UsedAt}
		if errUpdate := tx.Model(&models.Card{}).Where("id = ?", card.ID).Updates(updates).Error; errUpdate != nil {
			return fmt.Errorf("voucher: redeem card %d: %w", card.ID, errUpdate)
		}

		payload := map[string]any{"card_id": card.ID, "serial_number": card.SerialNumber}
		return writeAudit(tx, "redemption-service", models.AuditActionRedeem, fmt.Sprintf("card:%d", card.ID), payload)
	})
}

// loadScopeCards resolves a scope to its owning batch id and cards, locked
// for the duration of the transaction. Unknown scope ids yield ErrNotFound.
func (s *Service) loadScopeCards(ctx context.Context, tx *gorm.DB, scope Scope) (uint64, []models.Card, error) {
	var cards []models.Card

	if scope.BundleID != 0 {
		var bundle models.Bundle
		if errFind := tx.First(&bundle, scope.BundleID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return 0, nil, ErrNotFound
			}
			return 0, nil, fmt.Errorf("voucher: load bundle: %w", errFind)
		}
		if errFind := lockCards(tx).Where("bundle_id = ?", bundle.ID).Order("id ASC").Find(&cards).Error; errFind != nil {
			return 0, nil, fmt.Errorf("voucher: load bundle cards: %w", errFind)
		}
		return bundle.BatchID, cards, nil
	}

	var batch models.Batch
	if errFind := tx.First(&batch, scope.BatchID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("voucher: load batch: %w", errFind)
	}
	if errFind := lockCards(tx).
		Joins("JOIN bundles ON bundles.id = cards.bundle_id").
		Where("bundles.batch_id = ?", batch.ID).
		Order("cards.id ASC").
		Find(&cards).Error; errFind != nil {
		return 0, nil, fmt.Errorf("voucher: load batch cards: %w", errFind)
	}
	return batch.ID, cards, nil
}

// syncBatchActive re-derives the batch's Active flag from card ground
// truth: false once every card is invalidated, true again as soon as the
// batch holds live stock.
func (s *Service) syncBatchActive(ctx context.Context, tx *gorm.DB, batchID uint64) error {
	var batch models.Batch
	if errFind := tx.Preload("Bundles.Cards").First(&batch, batchID).Error; errFind != nil {
		return fmt.Errorf("voucher: load batch %d: %w", batchID, errFind)
	}
	active := !aggregate.FullyInvalidated(&batch)
	if batch.Active == active {
		return nil
	}
	if errUpdate := tx.Model(&models.Batch{}).Where("id = ?", batchID).Update("active", active).Error; errUpdate != nil {
		return fmt.Errorf("voucher: update batch %d active: %w", batchID, errUpdate)
	}
	return nil
}

// writeAudit persists one audit record inside the mutation's transaction.
func writeAudit(tx *gorm.DB, actor, action, scope string, payload any) error {
	raw, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return fmt.Errorf("voucher: marshal audit payload: %w", errMarshal)
	}
	entry := models.AuditLog{Actor: actor, Action: action, Scope: scope, Payload: datatypes.JSON(raw)}
	if errCreate := tx.Create(&entry).Error; errCreate != nil {
		return fmt.Errorf("voucher: write audit log: %w", errCreate)
	}
	return nil
}

// affectedFromSecrets strips PINs from secrets for audit payloads.
func affectedFromSecrets(secrets []CardSecret) []AffectedCard {
	out := make([]AffectedCard, 0, len(secrets))
	for _, secret := range secrets {
		out = append(out, AffectedCard{ID: secret.CardID, SerialNumber: secret.SerialNumber})
	}
	return out
}
