package voucher

import "errors"

// ErrNotFound indicates an unknown batch, bundle or card id.
var ErrNotFound = errors.New("voucher: not found")
