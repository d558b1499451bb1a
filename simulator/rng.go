package simulator

import (
	"encoding/binary"
	"math"
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"
)

// gaussResampleLimit bounds how many times a truncated Gaussian draw is redrawn
// before the last sample is clamped into [min, max].
const gaussResampleLimit = 64

// StreamSeed derives a stable seed for one RNG stream from the run seed, the
// trial index and a stable identity (actor name, "actor/buff", ...). Streams
// with different identities are independent of each other, so adding a new
// stream never perturbs the sequence of an existing one.
func StreamSeed(runSeed int64, trial int, identity string) int64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(runSeed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(trial))
	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(identity)
	sum := d.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// RNG is a seeded, reproducible random stream.
type RNG struct {
	r     *rand.Rand
	seed  int64
	draws uint64
}

// NewRNG creates a stream from an explicit seed.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed)), seed: seed}
}

// NewStream creates the stream for identity within trial of a run.
func NewStream(runSeed int64, trial int, identity string) *RNG {
	return NewRNG(StreamSeed(runSeed, trial, identity))
}

// Seed returns the seed the stream was last (re)seeded with.
func (g *RNG) Seed() int64 { return g.seed }

// Draws returns the number of uniform draws consumed since the last reseed.
func (g *RNG) Draws() uint64 { return g.draws }

// Reseed restarts the stream from seed without reallocating it.
func (g *RNG) Reseed(seed int64) {
	g.r.Seed(seed)
	g.seed = seed
	g.draws = 0
}

// Float64 returns a uniform real in [0, 1).
func (g *RNG) Float64() float64 {
	g.draws++
	return g.r.Float64()
}

// Roll returns true with probability p. Certain outcomes (p <= 0, p >= 1) do
// not consume a draw.
func (g *RNG) Roll(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.Float64() < p
}

// Range returns a uniform real in [min, max).
func (g *RNG) Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + g.Float64()*(max-min)
}

// RangeInt returns a uniform integer in [min, max] inclusive.
func (g *RNG) RangeInt(min, max int) int {
	if min >= max {
		return min
	}
	g.draws++
	return min + g.r.Intn(max-min+1)
}

// RangeDuration returns a uniform duration in [min, max).
func (g *RNG) RangeDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(g.Float64()*float64(max-min))
}

// Gauss returns a normal sample with the given mean and standard deviation.
func (g *RNG) Gauss(mean, stddev float64) float64 {
	if stddev <= 0 {
		return mean
	}
	g.draws++
	return mean + g.r.NormFloat64()*stddev
}

// GaussAB returns a normal sample truncated to [min, max]. Out-of-range samples
// are redrawn up to gaussResampleLimit times; if every draw misses, the last
// one is clamped into range.
func (g *RNG) GaussAB(mean, stddev, min, max float64) float64 {
	precondition(min <= max, "gauss bounds inverted: [%v, %v]", min, max)
	if stddev <= 0 {
		return clamp(mean, min, max)
	}
	var x float64
	for i := 0; i < gaussResampleLimit; i++ {
		x = g.Gauss(mean, stddev)
		if x >= min && x <= max {
			return x
		}
	}
	return clamp(x, min, max)
}

// GaussDuration draws a normal duration truncated to [0, mean+6σ].
func (g *RNG) GaussDuration(mean, stddev time.Duration) time.Duration {
	hi := float64(mean) + 6*float64(stddev)
	if hi < 0 {
		hi = 0
	}
	return time.Duration(g.GaussAB(float64(mean), float64(stddev), 0, hi))
}

// Exponential returns an exponential sample with the given mean.
func (g *RNG) Exponential(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	u := g.Float64()
	if u == 0 {
		u = 1e-10 // Avoid log(0)
	}
	return -mean * math.Log(u)
}

// Shuffle permutes n elements in place (Fisher–Yates) through swap.
func (g *RNG) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := g.RangeInt(0, i)
		swap(i, j)
	}
}

// ShuffleSlice permutes s in place.
func ShuffleSlice[T any](g *RNG, s []T) {
	g.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}

// Pick returns a uniformly chosen element of s. s must not be empty.
func Pick[T any](g *RNG, s []T) T {
	precondition(len(s) > 0, "pick from empty slice")
	return s[g.RangeInt(0, len(s)-1)]
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
