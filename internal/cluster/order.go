// Package cluster produces bounded-locality permutations and applies them to
// columnar tables, for benchmarking engines on data whose physical order is
// only approximately sorted.
package cluster

import (
	"fmt"
	"math/rand"
)

// Seed seeds the bucket assignment and the per-bucket shuffles.
const Seed = 1

// Order returns a permutation of [0, n) in which row i is assigned to a
// bucket drawn uniformly from [max(0, i+1-spread), min(i, n-spread)]. Buckets
// are shuffled independently and concatenated in order, so a row never moves
// far from where it started: spread 1 yields the identity, spread n a full
// shuffle.
func Order(n, spread int) ([]uint32, error) {
	if n < 0 {
		return nil, fmt.Errorf("cluster: negative row count %d", n)
	}
	if n == 0 {
		return []uint32{}, nil
	}
	if spread < 1 || spread > n {
		return nil, fmt.Errorf("cluster: spread %d outside [1, %d]", spread, n)
	}

	r := rand.New(rand.NewSource(Seed))
	buckets := make([][]uint32, 1+n-spread)
	for i := 0; i < n; i++ {
		lo := max(0, 1+i-spread)
		hi := min(i, n-spread)
		b := lo + r.Intn(hi-lo+1)
		buckets[b] = append(buckets[b], uint32(i))
	}

	order := make([]uint32, 0, n)
	for _, bucket := range buckets {
		r.Shuffle(len(bucket), func(i, j int) {
			bucket[i], bucket[j] = bucket[j], bucket[i]
		})
		order = append(order, bucket...)
	}
	return order, nil
}

// ClampSpread bounds a requested spread to [1, n].
func ClampSpread(spread, n int) int {
	if spread < 1 {
		return 1
	}
	if spread > n {
		return n
	}
	return spread
}
