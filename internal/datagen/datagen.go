// Package datagen builds deterministic synthetic columns for benchmark sweeps.
// Every generator seeds its own source with Seed, so identical parameters
// always produce identical output across calls and runs.
package datagen

import (
	"fmt"
	"math"
	"math/rand"
)

// Seed seeds every generator.
const Seed = 1

// Integer is the set of element types the integer generators produce.
type Integer interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64
}

// Number is the set of element types LogScale produces.
type Number interface {
	Integer | ~float64
}

func newSource() *rand.Rand {
	return rand.New(rand.NewSource(Seed))
}

// LogScale returns numPoints values spaced evenly in log10 space over
// [min, max], converted to T. Consecutive duplicates left by the conversion
// are removed and the last value is forced to max, so a sweep always reaches
// its upper bound.
func LogScale[T Number](numPoints int, min, max float64) ([]T, error) {
	if numPoints < 1 {
		return nil, fmt.Errorf("datagen: numPoints must be positive, got %d", numPoints)
	}
	if min <= 0 || max < min {
		return nil, fmt.Errorf("datagen: invalid log-scale range [%g, %g]", min, max)
	}
	if numPoints == 1 {
		return []T{T(max)}, nil
	}

	logMin, logMax := math.Log10(min), math.Log10(max)
	points := make([]T, 0, numPoints)
	for i := 0; i < numPoints; i++ {
		t := float64(i) / float64(numPoints-1)
		v := math.Pow(10, t*(logMax-logMin)+logMin)
		// pow(10, log10(x)) may land one ulp outside the range
		v = math.Min(math.Max(v, min), max)
		p := T(v)
		if len(points) > 0 && points[len(points)-1] == p {
			continue
		}
		points = append(points, p)
	}
	points[len(points)-1] = T(max)
	return points, nil
}

// Uniform returns n values drawn uniformly from [lo, hi].
func Uniform[T Integer](n int, lo, hi T) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("datagen: negative size %d", n)
	}
	if hi < lo {
		return nil, fmt.Errorf("datagen: empty range [%v, %v]", lo, hi)
	}
	return uniform(newSource(), n, lo, hi), nil
}

func uniform[T Integer](r *rand.Rand, n int, lo, hi T) []T {
	// width is 0 when [lo, hi] spans all 64-bit values
	width := uint64(hi) - uint64(lo) + 1
	data := make([]T, n)
	for i := range data {
		data[i] = lo + T(draw(r, width))
	}
	return data
}

// draw returns a value uniformly distributed in [0, width), or over every
// uint64 when width is 0.
func draw(r *rand.Rand, width uint64) uint64 {
	switch {
	case width == 0:
		return r.Uint64()
	case width <= math.MaxInt64:
		return uint64(r.Int63n(int64(width)))
	}
	for {
		if v := r.Uint64(); v < width {
			return v
		}
	}
}

// PartiallySorted returns n values in [1, 100] arranged as a sawtooth of
// sections of 100*numRepeats values: ascending 1..100 in one section,
// descending 100..1 in the next, each value repeated numRepeats times.
// Within every section floor(0.5 * percentRandom/100 * sectionSize) swaps of
// distinct, never reused positions are applied. percentRandom 0 yields the
// pure sawtooth; 100 is delegated to Uniform(n, 1, 100).
func PartiallySorted[T Integer](n, numRepeats int, percentRandom float64) ([]T, error) {
	if percentRandom < 0 || percentRandom > 100 {
		return nil, fmt.Errorf("datagen: percentRandom must be in [0, 100], got %g", percentRandom)
	}
	if numRepeats < 1 {
		return nil, fmt.Errorf("datagen: numRepeats must be positive, got %d", numRepeats)
	}
	if n < 0 {
		return nil, fmt.Errorf("datagen: negative size %d", n)
	}
	if int(percentRandom) == 100 {
		return Uniform[T](n, 1, 100)
	}

	r := newSource()
	sectionSize := 100 * numRepeats
	data := make([]T, 0, n)
	increasing := true
	for start := 0; start < n; start += sectionSize {
		value := T(1)
		if !increasing {
			value = 100
		}
		for j := 0; j < 100 && len(data) < n; j++ {
			for k := 0; k < numRepeats && len(data) < n; k++ {
				data = append(data, value)
			}
			if increasing {
				value++
			} else {
				value--
			}
		}
		increasing = !increasing

		section := data[start:]
		swaps := int(0.5 * (percentRandom / 100) * float64(len(section)))
		shuffleSection(r, section, swaps)
	}
	return data, nil
}

// shuffleSection swaps `swaps` pairs of positions, never touching a position
// twice. swaps is at most len(section)/2, so free positions always remain.
func shuffleSection[T any](r *rand.Rand, section []T, swaps int) {
	used := make(map[int]struct{}, 2*swaps)
	pick := func() int {
		for {
			i := r.Intn(len(section))
			if _, taken := used[i]; !taken {
				used[i] = struct{}{}
				return i
			}
		}
	}
	for s := 0; s < swaps; s++ {
		i, j := pick(), pick()
		section[i], section[j] = section[j], section[i]
	}
}
