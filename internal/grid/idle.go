package grid

import (
	"math"
	"math/rand"
)

// IdleAnimator pseudo-randomly activates and deactivates cells so an
// idle grid still shows motion. Purely decorative: the only invariant
// is that touched cells eventually return to inactive, and cells owned
// by a real detection are never touched.
type IdleAnimator struct {
	mapper  *Mapper
	rng     *rand.Rand
	decay   float64
	radius  int
	maxLive int
	live    map[int]int // cell id -> remaining ticks
}

// NewIdleAnimator builds an animator over the mapper's grid. The seed
// makes the activation sequence reproducible in tests.
func NewIdleAnimator(m *Mapper, seed int64) *IdleAnimator {
	return &IdleAnimator{
		mapper:  m,
		rng:     rand.New(rand.NewSource(seed)),
		decay:   0.35, // cosmetic, not a contract
		radius:  2,
		maxLive: 6,
		live:    make(map[int]int),
	}
}

// Tick advances the animation one step: expired cells go back to
// inactive, and at most one new cell lights up with a decayed glow
// spread to its neighbors.
func (a *IdleAnimator) Tick() {
	for id, left := range a.live {
		if left > 1 {
			a.live[id] = left - 1
			continue
		}
		delete(a.live, id)
		c := &a.mapper.cells[id]
		if c.Owner == -1 {
			c.State = StateInactive
			c.Confidence = 0
		}
	}

	if len(a.live) >= a.maxLive || len(a.mapper.cells) == 0 {
		return
	}

	id := a.rng.Intn(len(a.mapper.cells))
	c := &a.mapper.cells[id]
	if c.State != StateInactive {
		return
	}
	confidence := 0.05 + 0.1*a.rng.Float64()
	c.State = StateActive
	c.Confidence = confidence
	a.live[id] = 2 + a.rng.Intn(4)
	a.spread(id, confidence)
}

// spread raises neighbor confidence, decayed by Euclidean grid
// distance from the activated cell.
func (a *IdleAnimator) spread(id int, confidence float64) {
	n := a.mapper.n
	row, col := id/n, id%n
	for dr := -a.radius; dr <= a.radius; dr++ {
		for dc := -a.radius; dc <= a.radius; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			nr, nc := row+dr, col+dc
			if nr < 0 || nr >= n || nc < 0 || nc >= n {
				continue
			}
			dist := math.Sqrt(float64(dr*dr + dc*dc))
			if dist > float64(a.radius) {
				continue
			}
			neighbor := &a.mapper.cells[nr*n+nc]
			if neighbor.State != StateInactive || neighbor.Owner != -1 {
				continue
			}
			v := confidence * math.Exp(-a.decay*dist)
			neighbor.State = StateActive
			if v > neighbor.Confidence {
				neighbor.Confidence = v
			}
			if _, ok := a.live[neighbor.ID]; !ok {
				a.live[neighbor.ID] = 1 + a.rng.Intn(2)
			}
		}
	}
}

// Reset returns every animated cell to inactive immediately.
func (a *IdleAnimator) Reset() {
	for id := range a.live {
		c := &a.mapper.cells[id]
		if c.Owner == -1 {
			c.State = StateInactive
			c.Confidence = 0
		}
		delete(a.live, id)
	}
}

// LiveCount reports how many cells the animator currently holds lit.
func (a *IdleAnimator) LiveCount() int { return len(a.live) }
