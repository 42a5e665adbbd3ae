package processor

import "math/bits"

// computeBps returns amount * bps / 10000 using a widened intermediate so the
// multiplication cannot overflow. Callers guarantee bps <= BpsDenominator,
// which keeps the 128-bit quotient within uint64 range.
func computeBps(amount uint64, bps uint16) uint64 {
	if bps == 0 {
		return 0
	}
	hi, lo := bits.Mul64(amount, uint64(bps))
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q
}

// mulDiv returns amount * num / den, reporting false when the result does not
// fit the fixed-width amount type or den is zero.
func mulDiv(amount, num, den uint64) (uint64, bool) {
	if den == 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(amount, num)
	if hi >= den {
		return 0, false
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, true
}
