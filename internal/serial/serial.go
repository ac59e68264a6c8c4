// Package serial generates batch numbers, bundle prefixes and card serials,
// and enforces their global uniqueness through a reservation index.
package serial

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// ErrGenerationExhausted indicates every retry attempt was spent
// without reserving a unique identifier. Issuance must treat it as fatal.
var ErrGenerationExhausted = errors.New("serial: generation exhausted")

// prefixAlphabet excludes ambiguous characters (0/O, 1/I) so printed
// serials survive manual entry.
const prefixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// maxAttempts bounds every reservation loop.
	maxAttempts = 5
	// prefixLength is the generated bundle prefix length.
	prefixLength = 6
	// indexBump shifts the numeric part on serial collisions so a retry
	// lands on a fresh index without changing the serial shape.
	indexBump = 100000
)

// Index reserves identifiers atomically. A reservation must be
// check-and-reserve in one step so concurrent issuers cannot both claim
// the same value.
type Index interface {
	// ReserveBatchNumber claims a batch number; false means already taken.
	ReserveBatchNumber(ctx context.Context, number string) (bool, error)
	// ReservePrefix claims a bundle serial prefix; false means already taken.
	ReservePrefix(ctx context.Context, prefix string) (bool, error)
	// ReserveSerial claims a full card serial; false means already taken.
	ReserveSerial(ctx context.Context, serial string) (bool, error)
}

// Generator produces unique identifiers backed by a reservation index.
type Generator struct {
	index Index
	// NumberWidth is the zero-padded width of the numeric serial part.
	NumberWidth int

	seq atomic.Uint32
}

// NewGenerator constructs a Generator over the given index.
func NewGenerator(index Index) *Generator {
	return &Generator{index: index, NumberWidth: 6}
}

// SeedSequence advances the batch number sequence so the next number starts
// after n. Callers seed a fresh generator with the count of numbers already
// persisted for the day; without that the sequence restarts at 1 and replays
// numbers the uniqueness index has claimed.
func (g *Generator) SeedSequence(n uint32) {
	g.seq.Store(n)
}

// GenerateBatchNumber returns a unique date-based batch number such as
// "B20260831-0007". On collision it advances the sequence and retries.
func (g *Generator) GenerateBatchNumber(ctx context.Context) (string, error) {
	date := time.Now().UTC().Format("20060102")
	for attempt := 0; attempt < maxAttempts; attempt++ {
		number := fmt.Sprintf("B%s-%04d", date, g.seq.Add(1)%10000)
		ok, err := g.index.ReserveBatchNumber(ctx, number)
		if err != nil {
			return "", fmt.Errorf("serial: reserve batch number: %w", err)
		}
		if ok {
			return number, nil
		}
	}
	return "", ErrGenerationExhausted
}

// GenerateBundlePrefix returns a globally unique random alphanumeric prefix.
func (g *Generator) GenerateBundlePrefix(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		prefix, err := randomFromAlphabet(prefixLength)
		if err != nil {
			return "", err
		}
		ok, err := g.index.ReservePrefix(ctx, prefix)
		if err != nil {
			return "", fmt.Errorf("serial: reserve prefix: %w", err)
		}
		if ok {
			return prefix, nil
		}
	}
	return "", ErrGenerationExhausted
}

// GenerateCardSerial builds and reserves the serial for a card at the given
// index inside a bundle. On a collision it retries with a shifted index,
// bounded by maxAttempts.
func (g *Generator) GenerateCardSerial(ctx context.Context, prefix string, index int) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("serial: negative card index %d", index)
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := CardSerial(prefix, index+attempt*indexBump, g.NumberWidth)
		ok, err := g.index.ReserveSerial(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("serial: reserve serial: %w", err)
		}
		if ok {
			return candidate, nil
		}
	}
	return "", ErrGenerationExhausted
}

// CardSerial derives the serial for a prefix and index: the prefix, the
// zero-padded index, and one check digit over the preceding characters.
func CardSerial(prefix string, index, width int) string {
	body := fmt.Sprintf("%s%0*d", prefix, width, index)
	return body + string(checkDigit(body))
}

// ValidateSerial reports whether a serial's check digit matches its body,
// detecting single mistyped characters downstream.
func ValidateSerial(serial string) bool {
	if len(serial) < 2 {
		return false
	}
	body := serial[:len(serial)-1]
	return checkDigit(body) == serial[len(serial)-1]
}

// checkDigit computes a weighted sum mod 10 over the body, alternating
// weights 3 and 1 from the rightmost character.
func checkDigit(body string) byte {
	sum := 0
	weight := 3
	for i := len(body) - 1; i >= 0; i-- {
		sum += charValue(body[i]) * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return byte('0' + (10-sum%10)%10)
}

// charValue maps serial characters onto numeric values for the checksum.
func charValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	default:
		return 0
	}
}

// randomFromAlphabet returns a random string drawn from prefixAlphabet.
func randomFromAlphabet(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("serial: random prefix: %w", err)
	}
	var builder strings.Builder
	builder.Grow(length)
	for _, b := range buf {
		builder.WriteByte(prefixAlphabet[int(b)%len(prefixAlphabet)])
	}
	return builder.String(), nil
}
