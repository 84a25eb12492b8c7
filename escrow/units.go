package escrow

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// MistPerSui is the number of MIST in one SUI.
const MistPerSui uint64 = 1_000_000_000

// MistToSui converts MIST to SUI for display.
func MistToSui(mist uint64) float64 {
	return float64(mist) / float64(MistPerSui)
}

// SuiToMist converts a display amount to MIST, rounding to the nearest unit.
// Negative and non-finite inputs yield 0.
func SuiToMist(sui float64) uint64 {
	if math.IsNaN(sui) || sui <= 0 {
		return 0
	}
	v := math.Round(sui * float64(MistPerSui))
	if v >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(v)
}

// ParseSui parses a decimal SUI amount such as "1.5" exactly into MIST.
func ParseSui(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("%w: invalid amount %q", interfaces.ErrInvalidArgument, s)
	}
	if r.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative amount %q", interfaces.ErrInvalidArgument, s)
	}

	r.Mul(r, new(big.Rat).SetInt64(int64(MistPerSui)))
	if !r.IsInt() {
		return 0, fmt.Errorf("%w: amount %q has more than 9 decimals", interfaces.ErrInvalidArgument, s)
	}
	if !r.Num().IsUint64() {
		return 0, fmt.Errorf("%w: amount %q overflows", interfaces.ErrInvalidArgument, s)
	}
	return r.Num().Uint64(), nil
}

// FormatSui renders MIST as an exact decimal SUI string.
func FormatSui(mist uint64) string {
	whole := mist / MistPerSui
	frac := mist % MistPerSui
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%09d", whole, frac), "0")
}

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// IsValidAddress reports whether s is a full-length 0x-prefixed address.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// FormatAddress shortens an address to prefix...suffix keeping chars digits on each side.
func FormatAddress(addr string, chars int) string {
	if chars <= 0 {
		chars = 6
	}
	if len(addr) <= 2+2*chars {
		return addr
	}
	return addr[:2+chars] + "..." + addr[len(addr)-chars:]
}
