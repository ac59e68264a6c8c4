package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cardvault/voucher-service/internal/aggregate"
	dbutil "github.com/cardvault/voucher-service/internal/db"
	"github.com/cardvault/voucher-service/internal/lifecycle"
	"github.com/cardvault/voucher-service/internal/models"
	"github.com/cardvault/voucher-service/internal/security"
	"gorm.io/gorm"
)

// QueryFilter narrows the hierarchy view. Zero values mean no filtering.
type QueryFilter struct {
	// Search matches case-insensitive substrings of bundle prefixes and
	// card serials.
	Search string
	// BundleClass keeps only bundles with this classification.
	BundleClass string
	// CardStatus trims card rows inside bundles to this status.
	CardStatus string
}

// CardView is a card row safe for display: the PIN hash appears only in
// masked short form.
type CardView struct {
	ID                 uint64  `json:"id"`
	SerialNumber       string  `json:"serial_number"`
	PINMask            string  `json:"pin_mask"`
	Denomination       int64   `json:"denomination"`
	Status             string  `json:"status"`
	SoldVia            *string `json:"sold_via"`
	Regenerated        bool    `json:"regenerated"`
	GenerationType     string  `json:"generation_type"`
	BundleSerialPrefix string  `json:"bundle_serial_prefix"`
}

// BundleView carries a bundle with derived counts and classification.
type BundleView struct {
	ID             uint64         `json:"id"`
	SerialPrefix   string         `json:"serial_prefix"`
	Classification string         `json:"classification"`
	StatusCounts   map[string]int `json:"status_counts"`
	Cards          []CardView     `json:"cards"`
}

// BatchView carries a batch with derived bundle and card counts.
type BatchView struct {
	ID             uint64         `json:"id"`
	BatchNumber    string         `json:"batch_number"`
	Denomination   int64          `json:"denomination"`
	GenerationType string         `json:"generation_type"`
	Active         bool           `json:"active"`
	Note           string         `json:"note,omitempty"`
	BundleCounts   map[string]int `json:"bundle_counts"`
	CardCounts     map[string]int `json:"card_counts"`
	Bundles        []BundleView   `json:"bundles"`
}

// Query returns the batch hierarchy with derived counts, filtered by
// search and status. Counts and classifications are always recomputed from
// the full card ground truth before any display trimming.
func (s *Service) Query(ctx context.Context, filter QueryFilter) ([]BatchView, error) {
	tx := s.db.WithContext(ctx)
	query := tx.Model(&models.Batch{}).Preload("Bundles.Cards").Order("created_at DESC, id DESC")

	search := strings.TrimSpace(filter.Search)
	if search != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+search+"%")
		byPrefix := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Bundle{}).
			Select("batch_id").
			Where(dbutil.CaseInsensitiveLikeExpr(s.db, "serial_prefix"), pattern)
		bySerial := tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Card{}).
			Select("bundles.batch_id").
			Joins("JOIN bundles ON bundles.id = cards.bundle_id").
			Where(dbutil.CaseInsensitiveLikeExpr(s.db, "serial_number"), pattern)
		query = query.Where("id IN (?) OR id IN (?)", byPrefix, bySerial)
	}

	var batches []models.Batch
	if errFind := query.Find(&batches).Error; errFind != nil {
		return nil, fmt.Errorf("voucher: query batches: %w", errFind)
	}

	views := make([]BatchView, 0, len(batches))
	for i := range batches {
		view := s.buildBatchView(&batches[i], filter)
		if len(view.Bundles) == 0 && (search != "" || filter.BundleClass != "") {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// GetBatch returns the full view of one batch.
func (s *Service) GetBatch(ctx context.Context, id uint64) (*BatchView, error) {
	var batch models.Batch
	if errFind := s.db.WithContext(ctx).Preload("Bundles.Cards").First(&batch, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("voucher: load batch: %w", errFind)
	}
	view := s.buildBatchView(&batch, QueryFilter{})
	return &view, nil
}

// buildBatchView derives counts from the complete batch, then applies
// search and status trimming for display.
func (s *Service) buildBatchView(batch *models.Batch, filter QueryFilter) BatchView {
	view := BatchView{
		ID:             batch.ID,
		BatchNumber:    batch.BatchNumber,
		Denomination:   batch.Denomination,
		GenerationType: batch.GenerationType,
		Active:         batch.Active,
		Note:           batch.Note,
		BundleCounts:   aggregate.BatchBundleCounts(batch),
		CardCounts:     aggregate.BatchCardCounts(batch),
		Bundles:        []BundleView{},
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for i := range batch.Bundles {
		bundle := &batch.Bundles[i]
		classification := aggregate.ClassifyBundle(bundle)
		if filter.BundleClass != "" && classification != filter.BundleClass {
			continue
		}

		prefixMatch := search == "" || strings.Contains(strings.ToLower(bundle.SerialPrefix), search)
		cards := make([]CardView, 0, len(bundle.Cards))
		anySerialMatch := false
		for j := range bundle.Cards {
			card := &bundle.Cards[j]
			serialMatch := search != "" && strings.Contains(strings.ToLower(card.SerialNumber), search)
			if serialMatch {
				anySerialMatch = true
			}
			if !prefixMatch && search != "" && !serialMatch {
				continue
			}
			if filter.CardStatus != "" && card.Status != filter.CardStatus {
				continue
			}
			cards = append(cards, CardView{
				ID:                 card.ID,
				SerialNumber:       card.SerialNumber,
				PINMask:            security.MaskHash(card.PINHash),
				Denomination:       card.Denomination,
				Status:             card.Status,
				SoldVia:            card.SoldVia,
				Regenerated:        card.Regenerated,
				GenerationType:     card.GenerationType,
				BundleSerialPrefix: card.BundleSerialPrefix,
			})
		}

		if search != "" && !prefixMatch && !anySerialMatch {
			continue
		}
		view.Bundles = append(view.Bundles, BundleView{
			ID:             bundle.ID,
			SerialPrefix:   bundle.SerialPrefix,
			Classification: classification,
			StatusCounts:   aggregate.BundleStatusCounts(bundle),
			Cards:          cards,
		})
	}
	return view
}

// InvalidatableCardIDs applies the invalidation guard as a pure predicate
// over a card list.
func InvalidatableCardIDs(cards []models.Card) []uint64 {
	out := make([]uint64, 0, len(cards))
	for i := range cards {
		if lifecycle.CanInvalidate(&cards[i]) {
			out = append(out, cards[i].ID)
		}
	}
	return out
}
