package memory

import "math"

// joinFilterFPR is the target false positive rate of join key filters.
const joinFilterFPR = 0.01

// keyFilter is a bloom filter over key hashes. A join consults it before the
// hash table so that outer rows whose key is absent from the build side skip
// the bucket lookup. It has no false negatives.
type keyFilter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

func newKeyFilter(expectedKeys int, fpr float64) *keyFilter {
	numBits, numHashes := filterParameters(expectedKeys, fpr)
	words := (numBits + 63) / 64
	return &keyFilter{
		bits:      make([]uint64, words),
		numBits:   uint64(words * 64),
		numHashes: uint64(numHashes),
	}
}

// filterParameters returns the bit and hash counts minimizing the filter size
// for n keys at false positive rate p:
//
//	m = -n * ln(p) / ln(2)^2
//	k = (m/n) * ln(2)
func filterParameters(n int, p float64) (numBits, numHashes int) {
	if n < 1 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = joinFilterFPR
	}
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	numBits = max(int(math.Ceil(m)), 64)
	numHashes = max(int(math.Ceil(m/float64(n)*math.Ln2)), 1)
	return numBits, numHashes
}

// positions derives the filter positions of h by double hashing on its halves.
func (f *keyFilter) positions(h uint64, fn func(pos uint64) bool) {
	h1, h2 := h, h>>32|h<<32|1
	for i := uint64(0); i < f.numHashes; i++ {
		if !fn((h1 + i*h2) % f.numBits) {
			return
		}
	}
}

func (f *keyFilter) add(h uint64) {
	f.positions(h, func(pos uint64) bool {
		f.bits[pos/64] |= 1 << (pos % 64)
		return true
	})
	f.count++
}

func (f *keyFilter) mayContain(h uint64) bool {
	found := true
	f.positions(h, func(pos uint64) bool {
		found = f.bits[pos/64]&(1<<(pos%64)) != 0
		return found
	})
	return found
}

// falsePositiveRate estimates the rate from the keys added so far:
// (1 - e^(-k*n/m))^k.
func (f *keyFilter) falsePositiveRate() float64 {
	if f.count == 0 {
		return 0
	}
	k, n, m := float64(f.numHashes), float64(f.count), float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
