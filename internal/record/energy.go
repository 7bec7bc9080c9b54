package record

import (
	"gonum.org/v1/gonum/floats"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// DefaultBuckets is the fixed seek-bar resolution. The bucket count never
// grows with session length; bucket capacity doubles instead.
const DefaultBuckets = 256

// FrameEnergy reduces an amplitude vector to a scalar: the sum of all
// column heights.
func FrameEnergy(amps []int) int {
	v := make([]float64, len(amps))
	for i, a := range amps {
		v[i] = float64(a)
	}
	return int(floats.Sum(v))
}

// EnergyIndexBuilder maintains a fixed-size energy overview of a growing
// session. Each bucket covers a contiguous frame range and holds the
// maximum frame energy seen in that range. When all buckets fill up,
// adjacent pairs are merged and per-bucket capacity doubles, so appends
// stay O(1) amortized and the seek bar renders from a constant number of
// buckets no matter how long the session runs.
type EnergyIndexBuilder struct {
	limit    int
	capacity int64
	energies []int
	counts   []int64
	total    int64
}

// NewEnergyIndexBuilder returns a builder with the given bucket limit.
func NewEnergyIndexBuilder(limit int) *EnergyIndexBuilder {
	if limit <= 0 {
		limit = DefaultBuckets
	}
	return &EnergyIndexBuilder{limit: limit, capacity: 1}
}

// Add folds one frame's energy into the current bucket.
func (b *EnergyIndexBuilder) Add(energy int) {
	if n := len(b.counts); n == b.limit && b.counts[n-1] == b.capacity {
		b.merge()
	}
	if n := len(b.counts); n > 0 && b.counts[n-1] < b.capacity {
		b.counts[n-1]++
		if energy > b.energies[n-1] {
			b.energies[n-1] = energy
		}
	} else {
		b.energies = append(b.energies, energy)
		b.counts = append(b.counts, 1)
	}
	b.total++
}

// merge halves the bucket count by combining adjacent pairs and doubles
// the per-bucket capacity. Every bucket before the merge is full, so all
// merged buckets except possibly the last are full afterwards too.
func (b *EnergyIndexBuilder) merge() {
	half := (len(b.counts) + 1) / 2
	for i := 0; i < half; i++ {
		j := 2 * i
		e, c := b.energies[j], b.counts[j]
		if j+1 < len(b.counts) {
			if b.energies[j+1] > e {
				e = b.energies[j+1]
			}
			c += b.counts[j+1]
		}
		b.energies[i], b.counts[i] = e, c
	}
	b.energies = b.energies[:half]
	b.counts = b.counts[:half]
	b.capacity *= 2
}

// Len returns the number of frames folded in so far.
func (b *EnergyIndexBuilder) Len() int64 {
	return b.total
}

// Buckets returns the current index. The returned ranges partition
// [0, Len()) in order with no gaps or overlaps.
func (b *EnergyIndexBuilder) Buckets() []model.EnergyBucket {
	out := make([]model.EnergyBucket, len(b.counts))
	var first int64
	for i := range b.counts {
		out[i] = model.EnergyBucket{
			Index:      i,
			FirstFrame: first,
			FrameCount: b.counts[i],
			Energy:     b.energies[i],
		}
		first += b.counts[i]
	}
	return out
}

// Reset clears the index for a new session.
func (b *EnergyIndexBuilder) Reset() {
	b.capacity = 1
	b.energies = b.energies[:0]
	b.counts = b.counts[:0]
	b.total = 0
}
