package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	// ErrInvalidInput is returned for an empty source set, non-finite
	// coordinates or a negative cutoff.
	ErrInvalidInput = errors.New("invalid input")

	// ErrShapeMismatch is returned when a value array does not line up with
	// the source points the resampler was built from.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Sample is one resampled value. Valid is false when no source point lies
// within the cutoff, which keeps "no data" distinct from a reading of zero.
type Sample struct {
	Value float64
	Valid bool
}

// NoData is the Sample returned for query points without a nearby source.
var NoData = Sample{}

// Resampler is an immutable nearest-neighbour index over a fixed set of
// source points.
type Resampler struct {
	tree    *kdTree
	n       int
	maxDist float64
}

// Build indexes points for nearest-neighbour queries. maxDist is the largest
// distance at which a source point still contributes; +Inf disables the
// cutoff.
func Build(points []orb.Point, maxDist float64) (*Resampler, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("build resampler: no source points: %w", ErrInvalidInput)
	}
	if math.IsNaN(maxDist) || maxDist < 0 {
		return nil, fmt.Errorf("build resampler: max distance %v: %w", maxDist, ErrInvalidInput)
	}
	if len(points) > math.MaxInt32 {
		return nil, fmt.Errorf("build resampler: %d source points: %w", len(points), ErrInvalidInput)
	}
	if i := firstNonFinite(points); i >= 0 {
		return nil, fmt.Errorf("build resampler: source point %d is %v: %w", i, points[i], ErrInvalidInput)
	}

	return &Resampler{
		tree:    newKDTree(points),
		n:       len(points),
		maxDist: maxDist,
	}, nil
}

// Len returns the number of source points.
func (r *Resampler) Len() int { return r.n }

// MaxDist returns the distance cutoff.
func (r *Resampler) MaxDist() float64 { return r.maxDist }

// Nearest returns the index of the source point closest to q and its
// distance, ignoring the cutoff. Ties go to the lowest index.
func (r *Resampler) Nearest(q orb.Point) (int, float64) {
	nb := r.tree.nearest(q[0], q[1])
	return int(nb.id), nb.dist()
}

// Apply resamples values (aligned with the source points) onto query.
// The result is aligned with query.
func (r *Resampler) Apply(query []orb.Point, values []float64) ([]Sample, error) {
	if len(values) != r.n {
		return nil, fmt.Errorf("apply: %d values for %d source points: %w", len(values), r.n, ErrShapeMismatch)
	}
	plan, err := r.Plan(query)
	if err != nil {
		return nil, err
	}
	return plan.Apply(values)
}

// Plan resolves the nearest source point for every query point so the same
// lookup can be applied to several value arrays.
func (r *Resampler) Plan(query []orb.Point) (*Plan, error) {
	if i := firstNonFinite(query); i >= 0 {
		return nil, fmt.Errorf("plan: query point %d is %v: %w", i, query[i], ErrInvalidInput)
	}
	p := &Plan{source: r.n, index: make([]int32, len(query))}
	r.resolve(query, p.index)
	return p, nil
}

// resolve writes the nearest in-range source index (or -1) for each point
// of query into dst.
func (r *Resampler) resolve(query []orb.Point, dst []int32) {
	for i, q := range query {
		nb := r.tree.nearest(q[0], q[1])
		if nb.dist() > r.maxDist {
			dst[i] = -1
			continue
		}
		dst[i] = nb.id
	}
}

func firstNonFinite(points []orb.Point) int {
	for i, p := range points {
		if !finite(p[0]) || !finite(p[1]) {
			return i
		}
	}
	return -1
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
