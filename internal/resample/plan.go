package resample

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/paulmach/orb"
)

// minShard is the smallest query slice worth handing to its own goroutine.
const minShard = 1024

// Plan is the resolved nearest-source lookup for one query set.
type Plan struct {
	source int
	index  []int32 // -1 marks NoData
}

// Len returns the number of query points.
func (p *Plan) Len() int { return len(p.index) }

// Sources returns the number of source points the plan was resolved against.
func (p *Plan) Sources() int { return p.source }

// Covered returns how many query points have a source within the cutoff.
func (p *Plan) Covered() int {
	n := 0
	for _, idx := range p.index {
		if idx >= 0 {
			n++
		}
	}
	return n
}

// Source returns the source index matched to query point i, or false when
// the point is out of range.
func (p *Plan) Source(i int) (int, bool) {
	idx := p.index[i]
	return int(idx), idx >= 0
}

// Apply maps values onto the query points.
func (p *Plan) Apply(values []float64) ([]Sample, error) {
	if len(values) != p.source {
		return nil, fmt.Errorf("apply plan: %d values for %d source points: %w", len(values), p.source, ErrShapeMismatch)
	}
	out := make([]Sample, len(p.index))
	for i, idx := range p.index {
		if idx < 0 {
			continue
		}
		out[i] = Sample{Value: values[idx], Valid: true}
	}
	return out, nil
}

// ApplySamples is Apply for inputs that carry their own NoData markers;
// an invalid source sample stays invalid in the output.
func (p *Plan) ApplySamples(values []Sample) ([]Sample, error) {
	if len(values) != p.source {
		return nil, fmt.Errorf("apply plan: %d values for %d source points: %w", len(values), p.source, ErrShapeMismatch)
	}
	out := make([]Sample, len(p.index))
	for i, idx := range p.index {
		if idx < 0 {
			continue
		}
		out[i] = values[idx]
	}
	return out, nil
}

// PlanConcurrent is Plan with the query set split across workers goroutines.
// workers <= 0 uses runtime.NumCPU(). The result is identical to Plan.
func (r *Resampler) PlanConcurrent(query []orb.Point, workers int) (*Plan, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if shards := (len(query) + minShard - 1) / minShard; shards < workers {
		workers = shards
	}
	if workers <= 1 {
		return r.Plan(query)
	}
	if i := firstNonFinite(query); i >= 0 {
		return nil, fmt.Errorf("plan: query point %d is %v: %w", i, query[i], ErrInvalidInput)
	}

	p := &Plan{source: r.n, index: make([]int32, len(query))}
	chunk := (len(query) + workers - 1) / workers

	var wg sync.WaitGroup
	for lo := 0; lo < len(query); lo += chunk {
		hi := min(lo+chunk, len(query))
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			r.resolve(query[lo:hi], p.index[lo:hi])
		}(lo, hi)
	}
	wg.Wait()
	return p, nil
}
