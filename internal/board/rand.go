package board

// Numerical Recipes LCG constants. Layouts are stored as seeds only, so the
// recurrence has to stay bit-for-bit stable across releases.
const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
	lcgModulus    = 1 << 32
)

// Rand is a 32-bit linear congruential generator.
// It is not safe for concurrent use; every generation owns its own instance.
type Rand struct {
	state uint64
}

func NewRand(seed int64) *Rand {
	return &Rand{state: uint64(seed) % lcgModulus}
}

// Next advances the generator and returns the new raw state.
func (that *Rand) Next() uint32 {
	that.state = (that.state*lcgMultiplier + lcgIncrement) % lcgModulus
	return uint32(that.state)
}

// Float64 returns the next value scaled into [0, 1).
func (that *Rand) Float64() float64 {
	return float64(that.Next()) / lcgModulus
}

// Intn returns floor(Float64() * n).
func (that *Rand) Intn(n int) int {
	return int(that.Float64() * float64(n))
}
