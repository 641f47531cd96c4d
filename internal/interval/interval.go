// Package interval implements the integer interval lattice used by
// internal/quant to infer finite enumeration domains for quantified
// variables. A nil bound means infinity: unbounded integers need a
// representation of "no bound" distinct from any finite value, and
// *big.Int-or-nil keeps finite bounds exact.
package interval

import "math/big"

// Interval is a closed range [Lo, Hi] of the integer lattice. A nil bound
// means unbounded in that direction. Bottom is the distinguished empty
// interval (Bot == true); Lo/Hi are meaningless when Bot is set.
type Interval struct {
	Lo, Hi *big.Int
	Bot    bool
}

// Top is the unconstrained interval (-inf, +inf).
func Top() Interval { return Interval{} }

// Bottom is the empty interval.
func Bottom() Interval { return Interval{Bot: true} }

// Point is the single-value interval [n, n].
func Point(n int64) Interval {
	b := big.NewInt(n)
	return Interval{Lo: b, Hi: new(big.Int).Set(b)}
}

// Range is [lo, hi].
func Range(lo, hi int64) Interval {
	return Interval{Lo: big.NewInt(lo), Hi: big.NewInt(hi)}
}

func (i Interval) IsBottom() bool { return i.Bot }

// IsBounded reports whether both ends are finite, i.e. Values() can
// enumerate without the caller supplying an external bound.
func (i Interval) IsBounded() bool {
	return !i.Bot && i.Lo != nil && i.Hi != nil
}

func (i Interval) String() string {
	if i.Bot {
		return "[bot]"
	}
	lo, hi := "-inf", "+inf"
	if i.Lo != nil {
		lo = i.Lo.String()
	}
	if i.Hi != nil {
		hi = i.Hi.String()
	}
	return "[" + lo + ", " + hi + "]"
}

func minBig(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return nil
	}
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func maxBig(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return nil
	}
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// lowerOf returns the pointwise max of two possibly-nil lower bounds (nil
// meaning -inf is the weakest, so the other side wins).
func lowerOf(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return maxBig(a, b)
}

func upperOf(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return minBig(a, b)
}

// Meet is the lattice meet (intersection): narrows both bounds.
func Meet(a, b Interval) Interval {
	if a.Bot || b.Bot {
		return Bottom()
	}
	lo := lowerOf(a.Lo, b.Lo)
	hi := upperOf(a.Hi, b.Hi)
	if lo != nil && hi != nil && lo.Cmp(hi) > 0 {
		return Bottom()
	}
	return Interval{Lo: lo, Hi: hi}
}

// Join is the lattice join (union-bound): widens both bounds to cover
// either operand. This is an over-approximation when a and b are disjoint,
// which is the standard, sound choice for interval analysis.
func Join(a, b Interval) Interval {
	if a.Bot {
		return b
	}
	if b.Bot {
		return a
	}
	var lo, hi *big.Int
	if a.Lo == nil || b.Lo == nil {
		lo = nil
	} else {
		lo = minBig(a.Lo, b.Lo)
	}
	if a.Hi == nil || b.Hi == nil {
		hi = nil
	} else {
		hi = maxBig(a.Hi, b.Hi)
	}
	return Interval{Lo: lo, Hi: hi}
}

// AddConst shifts the interval by a constant (used when linearizing `x + c`
// comparisons).
func (i Interval) AddConst(c *big.Int) Interval {
	if i.Bot {
		return i
	}
	var lo, hi *big.Int
	if i.Lo != nil {
		lo = new(big.Int).Add(i.Lo, c)
	}
	if i.Hi != nil {
		hi = new(big.Int).Add(i.Hi, c)
	}
	return Interval{Lo: lo, Hi: hi}
}

// Add is pointwise interval addition; an unbounded end stays unbounded.
func Add(a, b Interval) Interval {
	if a.Bot || b.Bot {
		return Bottom()
	}
	var lo, hi *big.Int
	if a.Lo != nil && b.Lo != nil {
		lo = new(big.Int).Add(a.Lo, b.Lo)
	}
	if a.Hi != nil && b.Hi != nil {
		hi = new(big.Int).Add(a.Hi, b.Hi)
	}
	return Interval{Lo: lo, Hi: hi}
}

// Neg mirrors the interval around zero.
func Neg(a Interval) Interval {
	if a.Bot {
		return a
	}
	var lo, hi *big.Int
	if a.Hi != nil {
		lo = new(big.Int).Neg(a.Hi)
	}
	if a.Lo != nil {
		hi = new(big.Int).Neg(a.Lo)
	}
	return Interval{Lo: lo, Hi: hi}
}

// Sub is a - b.
func Sub(a, b Interval) Interval {
	return Add(a, Neg(b))
}

// Mul multiplies two intervals. Bounded operands take the extrema of the
// four corner products; the zero point annihilates; anything else is too
// imprecise to bound and yields Top.
func Mul(a, b Interval) Interval {
	if a.Bot || b.Bot {
		return Bottom()
	}
	if a.IsZero() || b.IsZero() {
		return Point(0)
	}
	if !a.IsBounded() || !b.IsBounded() {
		return Top()
	}
	corners := []*big.Int{
		new(big.Int).Mul(a.Lo, b.Lo),
		new(big.Int).Mul(a.Lo, b.Hi),
		new(big.Int).Mul(a.Hi, b.Lo),
		new(big.Int).Mul(a.Hi, b.Hi),
	}
	lo, hi := corners[0], corners[0]
	for _, c := range corners[1:] {
		lo = minBig(lo, c)
		hi = maxBig(hi, c)
	}
	return Interval{Lo: lo, Hi: hi}
}

// IsZero reports whether the interval is exactly [0, 0].
func (i Interval) IsZero() bool {
	return !i.Bot && i.Lo != nil && i.Hi != nil && i.Lo.Sign() == 0 && i.Hi.Sign() == 0
}

// IsPoint reports whether the interval holds exactly one value.
func (i Interval) IsPoint() bool {
	return !i.Bot && i.Lo != nil && i.Hi != nil && i.Lo.Cmp(i.Hi) == 0
}

// Size returns the number of values in a bounded interval.
func (i Interval) Size() *big.Int {
	if i.Bot {
		return big.NewInt(0)
	}
	if !i.IsBounded() {
		return nil
	}
	n := new(big.Int).Sub(i.Hi, i.Lo)
	return n.Add(n, big.NewInt(1))
}

// DivideLE returns the tightest interval for x such that a*x <= b for all
// a in A's interval, b in B's interval, used by the linear-comparison
// rewrite in internal/quant: the sign of A decides which direction the
// division constrains x from.
func DivideLE(a, b Interval) Interval {
	if a.Bot || b.Bot {
		return Bottom()
	}
	// Only the common, decidable case is handled: a is a known-sign point
	// interval. Anything else (a spans zero, or is unbounded) yields top.
	if a.Lo == nil || a.Hi == nil || a.Lo.Cmp(a.Hi) != 0 {
		return Top()
	}
	coeff := a.Lo
	switch coeff.Sign() {
	case 0:
		// 0 <= b: either always true (top) or always false (bottom),
		// depending on b; conservatively top, since callers fold in the
		// comparison's own base case separately.
		return Top()
	case 1:
		if b.Hi == nil {
			return Interval{Lo: nil, Hi: nil}
		}
		hi := new(big.Int).Div(b.Hi, coeff)
		return Interval{Lo: nil, Hi: hi}
	default: // negative coefficient flips the inequality direction
		if b.Hi == nil {
			return Interval{Lo: nil, Hi: nil}
		}
		lo := new(big.Int).Div(b.Hi, coeff)
		return Interval{Lo: lo, Hi: nil}
	}
}

// Values enumerates every integer in a bounded interval, inclusive. The
// caller (internal/quant) must check IsBounded first; this panics on an
// unbounded interval because an unbounded enumeration is a programmer
// error, not a runtime Failure (the InfiniteDomain Failure is raised by the
// caller before Values is ever reached).
func (i Interval) Values() []int64 {
	if !i.IsBounded() {
		panic("interval: Values called on an unbounded interval")
	}
	var out []int64
	cur := new(big.Int).Set(i.Lo)
	one := big.NewInt(1)
	for cur.Cmp(i.Hi) <= 0 {
		out = append(out, cur.Int64())
		cur.Add(cur, one)
	}
	return out
}

// LessOrEqual reports whether i is included in j (i is a refinement of j).
func LessOrEqual(i, j Interval) bool {
	if i.Bot {
		return true
	}
	if j.Bot {
		return false
	}
	if j.Lo != nil && (i.Lo == nil || i.Lo.Cmp(j.Lo) < 0) {
		return false
	}
	if j.Hi != nil && (i.Hi == nil || i.Hi.Cmp(j.Hi) > 0) {
		return false
	}
	return true
}
