// Package escrow holds the pool arithmetic and prize split for staked rooms.
//
// Every product is formed as a 128-bit value with math/bits before dividing, so
// pool*50 cannot wrap for any uint64 pool.
package escrow

import (
	"errors"
	"math/bits"
)

// ErrArithmeticOverflow is returned when a value would not fit in a uint64.
var ErrArithmeticOverflow = errors.New("escrow arithmetic overflow")

// PrizePercents is the split of the pool between first, second and third place.
var PrizePercents = [3]uint64{50, 30, 20}

// Shares is the result of splitting a pool.
type Shares struct {
	Prizes [3]uint64 // by position: first, second, third
	Dust   uint64    // pool minus the sum of Prizes
}

// Total is the sum of the three prizes.
func (s Shares) Total() uint64 {
	return s.Prizes[0] + s.Prizes[1] + s.Prizes[2]
}

// ComputeShares splits pool 50/30/20, truncating each share toward zero.
func ComputeShares(pool uint64) (Shares, error) {
	var s Shares
	var total uint64
	for i, pct := range PrizePercents {
		share, err := MulDiv(pool, pct, 100)
		if err != nil {
			return Shares{}, err
		}
		s.Prizes[i] = share
		total += share // each share <= pool*pct/100 and the percents sum to 100
	}
	if total > pool {
		return Shares{}, ErrArithmeticOverflow
	}
	s.Dust = pool - total
	return s, nil
}

// MulDiv returns floor(a*b/d) using a 128-bit intermediate product.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrArithmeticOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// PoolFor is entryFee*occupancy, or ErrArithmeticOverflow.
func PoolFor(entryFee uint64, occupancy uint8) (uint64, error) {
	hi, lo := bits.Mul64(entryFee, uint64(occupancy))
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// Add is a checked a+b.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// Sub is a checked a-b.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}
