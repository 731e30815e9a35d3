package models

import "github.com/holiman/uint256"

// LimitKeys locate each bound inside a user's class-limit vector. A negative
// key disables the bound. An index beyond the vector reads as zero.
type LimitKeys struct {
	EmissionCeiling     int
	EmissionFloor       int
	ReceptionCeiling    int
	ReceptionFloor      int
	HoldingPeriod       int
	TransactionCooldown int
	EmissionCooldown    int
	ReceptionCooldown   int
}

// DefaultLimitKeys is the vector layout used by the user registry: emission
// ceiling, reception ceiling and reception floor in the first three slots.
func DefaultLimitKeys() LimitKeys {
	return LimitKeys{
		EmissionCeiling:     0,
		ReceptionCeiling:    1,
		ReceptionFloor:      2,
		EmissionFloor:       -1,
		HoldingPeriod:       -1,
		TransactionCooldown: -1,
		EmissionCooldown:    -1,
		ReceptionCooldown:   -1,
	}
}

// Lookup returns the bound at key and whether it is enabled.
func Lookup(limits []uint256.Int, key int) (*uint256.Int, bool) {
	if key < 0 {
		return nil, false
	}
	if key >= len(limits) {
		return new(uint256.Int), true
	}
	v := limits[key]
	return &v, true
}

// MaxLimitKey is the highest index a class-limit vector may be addressed at.
const MaxLimitKey = 255

// Valid reports whether every key is disabled (-1) or within the vector range.
func (k LimitKeys) Valid() bool {
	for _, key := range []int{
		k.EmissionCeiling, k.EmissionFloor, k.ReceptionCeiling, k.ReceptionFloor,
		k.HoldingPeriod, k.TransactionCooldown, k.EmissionCooldown, k.ReceptionCooldown,
	} {
		if key < -1 || key > MaxLimitKey {
			return false
		}
	}
	return true
}
