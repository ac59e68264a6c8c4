package aggregate

import (
	"testing"

	"github.com/cardvault/voucher-service/internal/models"
)

func bundleOf(statuses ...string) *models.Bundle {
	bundle := &models.Bundle{}
	for _, status := range statuses {
		bundle.Cards = append(bundle.Cards, models.Card{Status: status})
	}
	return bundle
}

func TestBundleStatusCountsSumEqualsCardCount(t *testing.T) {
	bundle := bundleOf(
		models.CardStatusAvailable,
		models.CardStatusAvailable,
		models.CardStatusSoldUnused,
		models.CardStatusUsed,
		models.CardStatusInvalidated,
	)
	counts := BundleStatusCounts(bundle)

	sum := 0
	for _, n := range counts {
		sum += n
	}
	if sum != len(bundle.Cards) {
		t.Fatalf("counts sum %d != card count %d", sum, len(bundle.Cards))
	}
	if counts[models.CardStatusAvailable] != 2 {
		t.Fatalf("expected 2 available, got %d", counts[models.CardStatusAvailable])
	}
}

func TestClassifyBundlePriorityOrder(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all available", []string{models.CardStatusAvailable, models.CardStatusAvailable}, ClassAvailable},
		{"available beats sold", []string{models.CardStatusAvailable, models.CardStatusSoldUnused, models.CardStatusUsed}, ClassAvailable},
		{"available beats invalidated", []string{models.CardStatusAvailable, models.CardStatusInvalidated}, ClassAvailable},
		{"sold when no available", []string{models.CardStatusSoldUnused, models.CardStatusInvalidated}, ClassSold},
		{"used counts as sold", []string{models.CardStatusUsed, models.CardStatusInvalidated}, ClassSold},
		{"mixed sold_unused and used is sold", []string{models.CardStatusSoldUnused, models.CardStatusUsed}, ClassSold},
		{"invalidated only when every card is", []string{models.CardStatusInvalidated, models.CardStatusInvalidated}, ClassInvalidated},
		{"no cards", nil, ClassEmpty},
	}
	for _, tc := range cases {
		if got := ClassifyBundle(bundleOf(tc.statuses...)); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestBatchBundleCountsCountsBundlesNotCards(t *testing.T) {
	batch := &models.Batch{Bundles: []models.Bundle{
		*bundleOf(models.CardStatusAvailable, models.CardStatusAvailable, models.CardStatusAvailable),
		*bundleOf(models.CardStatusSoldUnused, models.CardStatusUsed),
		*bundleOf(models.CardStatusInvalidated),
	}}
	counts := BatchBundleCounts(batch)

	if counts[ClassAvailable] != 1 || counts[ClassSold] != 1 || counts[ClassInvalidated] != 1 {
		t.Fatalf("unexpected bundle counts: %v", counts)
	}
}

func TestFullyInvalidated(t *testing.T) {
	full := &models.Batch{Bundles: []models.Bundle{
		*bundleOf(models.CardStatusInvalidated, models.CardStatusInvalidated),
	}}
	if !FullyInvalidated(full) {
		t.Fatalf("expected batch to be fully invalidated")
	}

	mixed := &models.Batch{Bundles: []models.Bundle{
		*bundleOf(models.CardStatusInvalidated, models.CardStatusAvailable),
	}}
	if FullyInvalidated(mixed) {
		t.Fatalf("expected mixed batch to not be fully invalidated")
	}

	empty := &models.Batch{}
	if FullyInvalidated(empty) {
		t.Fatalf("expected empty batch to not count as invalidated")
	}
}

func TestBatchCardCounts(t *testing.T) {
	batch := &models.Batch{Bundles: []models.Bundle{
		*bundleOf(models.CardStatusAvailable, models.CardStatusSoldUnused),
		*bundleOf(models.CardStatusUsed),
	}}
	counts := BatchCardCounts(batch)
	if counts[models.CardStatusAvailable] != 1 || counts[models.CardStatusSoldUnused] != 1 || counts[models.CardStatusUsed] != 1 {
		t.Fatalf("unexpected card counts: %v", counts)
	}
}
