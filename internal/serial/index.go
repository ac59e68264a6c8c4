package serial

import (
	"context"
	"fmt"
	"sync"

	"github.com/cardvault/voucher-service/internal/models"
	"gorm.io/gorm"
)

// MemoryIndex is an in-process reservation index for tests and single-node
// deployments.
type MemoryIndex struct {
	mu       sync.Mutex
	batches  map[string]struct{}
	prefixes map[string]struct{}
	serials  map[string]struct{}
}

// NewMemoryIndex constructs an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		batches:  map[string]struct{}{},
		prefixes: map[string]struct{}{},
		serials:  map[string]struct{}{},
	}
}

// ReserveBatchNumber implements Index.
func (m *MemoryIndex) ReserveBatchNumber(_ context.Context, number string) (bool, error) {
	return m.reserve(m.batches, number), nil
}

// ReservePrefix implements Index.
func (m *MemoryIndex) ReservePrefix(_ context.Context, prefix string) (bool, error) {
	return m.reserve(m.prefixes, prefix), nil
}

// ReserveSerial implements Index.
func (m *MemoryIndex) ReserveSerial(_ context.Context, serial string) (bool, error) {
	return m.reserve(m.serials, serial), nil
}

func (m *MemoryIndex) reserve(set map[string]struct{}, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := set[value]; taken {
		return false
	}
	set[value] = struct{}{}
	return true
}

// GormIndex checks reservations against the persisted hierarchy. The unique
// indexes on batch_number, serial_prefix and serial_number are the final
// arbiter at insert time; this check keeps the generator's retry loop ahead
// of constraint violations.
type GormIndex struct {
	conn *gorm.DB
}

// NewGormIndex constructs a GormIndex over a connection or transaction.
// Passing the issuance transaction makes in-flight rows visible to the check.
func NewGormIndex(conn *gorm.DB) *GormIndex {
	return &GormIndex{conn: conn}
}

// ReserveBatchNumber implements Index.
func (g *GormIndex) ReserveBatchNumber(ctx context.Context, number string) (bool, error) {
	return g.absent(ctx, &models.Batch{}, "batch_number = ?", number)
}

// ReservePrefix implements Index.
func (g *GormIndex) ReservePrefix(ctx context.Context, prefix string) (bool, error) {
	return g.absent(ctx, &models.Bundle{}, "serial_prefix = ?", prefix)
}

// ReserveSerial implements Index.
func (g *GormIndex) ReserveSerial(ctx context.Context, serial string) (bool, error) {
	return g.absent(ctx, &models.Card{}, "serial_number = ?", serial)
}

func (g *GormIndex) absent(ctx context.Context, model any, query string, value string) (bool, error) {
	var count int64
	if errCount := g.conn.WithContext(ctx).Model(model).Where(query, value).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("serial: uniqueness check: %w", errCount)
	}
	return count == 0, nil
}
