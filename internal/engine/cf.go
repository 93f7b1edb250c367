package engine

import (
	"math"
	"math/big"
)

var roundScale = big.NewInt(1000000)

// Combine merges two independent certainty estimates for the same
// proposition (MYCIN-style). Non-finite inputs count as 0.
//
// The function is commutative but not associative: evidence for one fact
// must be folded in arrival order.
func Combine(a, b float64) float64 {
	a, b = finite(a), finite(b)

	switch {
	case a >= 0 && b >= 0:
		return a + b*(1-a)
	case a <= 0 && b <= 0:
		return a + b*(1+a)
	}

	// Conflicting evidence
	denom := 1 - math.Min(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return (a + b) / denom
}

// Round rounds a certainty to 6 decimal places. The exact binary value is
// rounded in decimal with ties going away from zero.
func Round(v float64) float64 {
	v = finite(v)

	r := new(big.Rat).SetFloat64(v)
	r.Mul(r, new(big.Rat).SetInt(roundScale))

	q, m := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	m.Abs(m).Lsh(m, 1)
	if m.Cmp(r.Denom()) >= 0 {
		if r.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}

	out, _ := new(big.Rat).SetFrac(q, roundScale).Float64()
	if out == 0 {
		return 0 // normalize -0
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
