package voucher

import "fmt"

// Scope targets a bulk operation at a whole batch or a single bundle.
// Exactly one id is set.
type Scope struct {
	BatchID  uint64
	BundleID uint64
}

// BatchScope targets every card in a batch.
func BatchScope(id uint64) Scope { return Scope{BatchID: id} }

// BundleScope targets every card in a bundle.
func BundleScope(id uint64) Scope { return Scope{BundleID: id} }

// String renders the scope for audit records, e.g. "batch:12".
func (s Scope) String() string {
	if s.BundleID != 0 {
		return fmt.Sprintf("bundle:%d", s.BundleID)
	}
	return fmt.Sprintf("batch:%d", s.BatchID)
}
