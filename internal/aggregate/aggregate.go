// Package aggregate derives bundle and batch level summaries from card
// ground truth. Nothing here mutates or caches; every call recomputes from
// the cards it is handed.
package aggregate

import "github.com/cardvault/voucher-service/internal/models"

// Bundle classifications for list and filter views.
const (
	// ClassAvailable applies when any card is still available.
	ClassAvailable = "available"
	// ClassSold applies when no card is available and any card is
	// sold_unused or used.
	ClassSold = "sold"
	// ClassInvalidated applies only when every card is invalidated.
	ClassInvalidated = "invalidated"
	// ClassEmpty applies to bundles without cards.
	ClassEmpty = "empty"
)

// BundleStatusCounts folds a bundle's cards into a status → count map.
func BundleStatusCounts(bundle *models.Bundle) map[string]int {
	counts := map[string]int{}
	for i := range bundle.Cards {
		counts[bundle.Cards[i].Status]++
	}
	return counts
}

// ClassifyBundle resolves a single classification for a possibly
// mixed-status bundle. Priority is fixed: available beats sold, and
// invalidated applies only when every card is invalidated. A bundle
// holding both sold_unused and used cards but nothing available is sold.
func ClassifyBundle(bundle *models.Bundle) string {
	if len(bundle.Cards) == 0 {
		return ClassEmpty
	}
	counts := BundleStatusCounts(bundle)
	if counts[models.CardStatusAvailable] > 0 {
		return ClassAvailable
	}
	if counts[models.CardStatusSoldUnused] > 0 || counts[models.CardStatusUsed] > 0 {
		return ClassSold
	}
	return ClassInvalidated
}

// BatchBundleCounts counts a batch's bundles per classification, for
// batch-level summary tiles.
func BatchBundleCounts(batch *models.Batch) map[string]int {
	counts := map[string]int{}
	for i := range batch.Bundles {
		counts[ClassifyBundle(&batch.Bundles[i])]++
	}
	return counts
}

// BatchCardCounts folds every card in the batch into a status → count map.
func BatchCardCounts(batch *models.Batch) map[string]int {
	counts := map[string]int{}
	for i := range batch.Bundles {
		for j := range batch.Bundles[i].Cards {
			counts[batch.Bundles[i].Cards[j].Status]++
		}
	}
	return counts
}

// FullyInvalidated reports whether the batch holds cards and every one of
// them is invalidated.
func FullyInvalidated(batch *models.Batch) bool {
	total := 0
	for i := range batch.Bundles {
		for j := range batch.Bundles[i].Cards {
			if batch.Bundles[i].Cards[j].Status != models.CardStatusInvalidated {
				return false
			}
			total++
		}
	}
	return total > 0
}
