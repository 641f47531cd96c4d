package generator

// Choice records one resolved non-deterministic decision: which position of
// the generator's ordering was taken, out of how many the ordering offered.
// The sequence of Choices made during a run is its trail; re-running with a
// prefix that diverges at one position replays the run up to that decision
// and explores the sibling branch, which is how the execution driver
// enumerates paths depth-first without holding more than one branch's state
// at a time.
type Choice struct {
	Taken, Arity int
}

// Chooser resolves non-deterministic choices for a single run. Each choice
// consults the Generator for the ordering of alternatives, takes the entry
// the forced prefix dictates (or the first entry once past the prefix), and
// records the decision on the trail.
type Chooser struct {
	gen    Generator
	prefix []int
	trail  []Choice
}

func NewChooser(gen Generator, prefix []int) *Chooser {
	return &Chooser{gen: gen, prefix: prefix}
}

func (c *Chooser) pick(arity int) int {
	k := 0
	if len(c.trail) < len(c.prefix) {
		k = c.prefix[len(c.trail)]
	}
	if k >= arity {
		// A replayed prefix can only diverge at its last position, and the
		// driver never increments past the recorded arity, so this indicates
		// a non-reproducible run.
		panic("generator: choice prefix does not match the run being replayed")
	}
	c.trail = append(c.trail, Choice{Taken: k, Arity: arity})
	return k
}

// Bool resolves a free boolean choice.
func (c *Chooser) Bool() bool {
	opts := c.gen.Bools()
	return opts[c.pick(len(opts))]
}

// Int resolves a free integer choice over the (non-empty) domain dom.
func (c *Chooser) Int(dom []int64) int64 {
	opts := c.gen.Ints(dom)
	return opts[c.pick(len(opts))]
}

// Index resolves a choice among n alternatives, returning the chosen index.
// n must be positive; callers surface an empty alternative set as a failure
// before asking.
func (c *Chooser) Index(n int) int {
	opts := c.gen.Indices(n)
	return opts[c.pick(len(opts))]
}

// Trail returns the decisions this run made, in order.
func (c *Chooser) Trail() []Choice {
	return c.trail
}

// NextPrefix computes the depth-first successor of a completed run's trail:
// the longest prefix whose final decision still has an untried sibling, with
// that decision advanced by one. ok is false when the trail is exhausted and
// no further runs remain.
func NextPrefix(trail []Choice) (prefix []int, ok bool) {
	for i := len(trail) - 1; i >= 0; i-- {
		if trail[i].Taken+1 < trail[i].Arity {
			p := make([]int, i+1)
			for j := 0; j < i; j++ {
				p[j] = trail[j].Taken
			}
			p[i] = trail[i].Taken + 1
			return p, true
		}
	}
	return nil, false
}
