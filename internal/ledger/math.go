package ledger

import (
	"math"
	"math/bits"

	"github.com/holiman/uint256"
)

// bpsDenominator converts basis points to a fraction
var bpsDenominator = uint256.NewInt(10_000)

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// applyBps returns floor(amount * bps / 10000) in widened arithmetic
func applyBps(amount uint64, bps uint16) *uint256.Int {
	x := uint256.NewInt(amount)
	x.Mul(x, uint256.NewInt(uint64(bps)))
	return x.Div(x, bpsDenominator)
}

// low64 returns the low 64 bits of x. Fee and reward amounts are computed
// wide and truncated for storage.
func low64(x *uint256.Int) uint64 {
	return x.Uint64()
}

// mulDiv returns floor(a * b / d) truncated to 64 bits. The product of two
// u64 values always fits the wide intermediate. d must be non-zero.
func mulDiv(a, b, d uint64) uint64 {
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	return low64(x.Div(x, uint256.NewInt(d)))
}

// spanPolicy decides what a resting time that does not fit in int64 counts as
type spanPolicy int

const (
	// spanSaturate counts an unrepresentable span as MaxInt64 seconds (fills)
	spanSaturate spanPolicy = iota
	// spanDiscard counts an unrepresentable span as zero (cancels)
	spanDiscard
)

// liquidityAccrual weighs how long an order rested by its size:
// max(0, (now - created) * size), saturating at MaxInt64 like the signed
// seconds it is derived from.
func liquidityAccrual(created, now int64, size uint64, policy spanPolicy) uint64 {
	if now <= created || size == 0 {
		return 0
	}
	active := uint64(now) - uint64(created)
	if active > math.MaxInt64 {
		if policy == spanDiscard {
			return 0
		}
		active = math.MaxInt64
	}
	hi, lo := bits.Mul64(active, size)
	if hi != 0 || lo > math.MaxInt64 {
		return math.MaxInt64
	}
	return lo
}
