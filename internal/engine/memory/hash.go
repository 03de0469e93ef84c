package memory

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/enginebench/pkg/expr"
)

// keyHasher hashes tuples of key values with murmur3. The scratch buffer is
// reused across rows.
type keyHasher struct {
	buf []byte
}

func (h *keyHasher) hash(keys []vec, row int) uint64 {
	h.buf = h.buf[:0]
	for _, k := range keys {
		switch k.typ {
		case expr.Int64Type:
			h.buf = binary.LittleEndian.AppendUint64(h.buf, uint64(k.int(row)))
		case expr.Float64Type:
			h.buf = binary.LittleEndian.AppendUint64(h.buf, math.Float64bits(k.float(row)))
		case expr.StringType:
			s := k.str(row)
			h.buf = binary.LittleEndian.AppendUint32(h.buf, uint32(len(s)))
			h.buf = append(h.buf, s...)
		default:
			if k.boolean(row) {
				h.buf = append(h.buf, 1)
			} else {
				h.buf = append(h.buf, 0)
			}
		}
	}
	return murmur3.Sum64(h.buf)
}

func keysEqual(a []vec, i int, b []vec, j int) bool {
	for k := range a {
		if c, err := compare(a[k], i, b[k], j); err != nil || c != 0 {
			return false
		}
	}
	return true
}

// hashTable maps key hashes to the rows that carry them. Rows with equal
// hashes are disambiguated with keysEqual.
type hashTable struct {
	keys    []vec
	buckets map[uint64][]int
	filter  *keyFilter
	hasher  keyHasher

	// filtered counts lookups rejected by filter
	filtered int
}

func newHashTable(keys []vec, rows int) *hashTable {
	t := &hashTable{
		keys:    keys,
		buckets: make(map[uint64][]int),
		filter:  newKeyFilter(rows, joinFilterFPR),
	}
	for i := 0; i < rows; i++ {
		h := t.hasher.hash(keys, i)
		t.buckets[h] = append(t.buckets[h], i)
		t.filter.add(h)
	}
	return t
}

// lookup calls fn for every build row whose key equals row `row` of outer.
func (t *hashTable) lookup(outer []vec, row int, hasher *keyHasher, fn func(buildRow int)) {
	h := hasher.hash(outer, row)
	if !t.filter.mayContain(h) {
		t.filtered++
		return
	}
	for _, candidate := range t.buckets[h] {
		if keysEqual(t.keys, candidate, outer, row) {
			fn(candidate)
		}
	}
}

// groupRows assigns every row a group id in order of first appearance and
// returns the first row of each group.
func groupRows(keys []vec, rows int) (groupOf []int, firsts []uint32) {
	groupOf = make([]int, rows)
	seen := make(map[uint64][]int)
	var hasher keyHasher
	for i := 0; i < rows; i++ {
		h := hasher.hash(keys, i)
		g := -1
		for _, candidate := range seen[h] {
			if keysEqual(keys, int(firsts[candidate]), keys, i) {
				g = candidate
				break
			}
		}
		if g < 0 {
			g = len(firsts)
			firsts = append(firsts, uint32(i))
			seen[h] = append(seen[h], g)
		}
		groupOf[i] = g
	}
	return groupOf, firsts
}
