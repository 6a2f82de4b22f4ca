package resample_test

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/couchcryptid/radar-regrid/internal/resample"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid(v float64) resample.Sample { return resample.Sample{Value: v, Valid: true} }

func TestApply_ThreePointScenario(t *testing.T) {
	src := []orb.Point{{0, 0}, {10, 0}, {0, 10}}
	r, err := resample.Build(src, 6)
	require.NoError(t, err)

	out, err := r.Apply([]orb.Point{{1, 1}, {9, 1}, {100, 100}}, []float64{5, 50, 500})
	require.NoError(t, err)

	assert.Equal(t, []resample.Sample{valid(5), valid(50), resample.NoData}, out)
}

func TestApply_ZeroMaxDistMatchesOnlyCoincidentPoints(t *testing.T) {
	src := []orb.Point{{0, 0}, {10, 0}, {0, 10}}
	r, err := resample.Build(src, 0)
	require.NoError(t, err)

	out, err := r.Apply([]orb.Point{{10, 0}, {10, 0.0001}}, []float64{5, 50, 500})
	require.NoError(t, err)

	assert.Equal(t, valid(50), out[0])
	assert.False(t, out[1].Valid)
}

func TestApply_TinyOffsetsKeepCoincidence(t *testing.T) {
	// Squared offsets of 1e-200 underflow to zero.
	src := []orb.Point{{0, 0}, {1e-200, 0}}
	r, err := resample.Build(src, 0)
	require.NoError(t, err)

	out, err := r.Apply([]orb.Point{{1e-200, 0}, {0, 0}, {5e-201, 0}}, []float64{5, 50})
	require.NoError(t, err)

	assert.Equal(t, []resample.Sample{valid(50), valid(5), resample.NoData}, out)
}

func TestNearest_TinyOffsetsRankByDistance(t *testing.T) {
	r, err := resample.Build([]orb.Point{{3e-200, 0}, {0, 2e-200}, {1e-200, 1e-200}}, math.Inf(1))
	require.NoError(t, err)

	idx, dist := r.Nearest(orb.Point{0, 0})
	assert.Equal(t, 2, idx)
	assert.InDelta(t, math.Sqrt2*1e-200, dist, 1e-214)
}

func TestNearest_HugeOffsetsRankByDistance(t *testing.T) {
	// Squared offsets of 1e200 overflow to +Inf.
	r, err := resample.Build([]orb.Point{{2e200, 0}, {1e200, 0}, {0, -1.5e200}}, math.Inf(1))
	require.NoError(t, err)

	idx, dist := r.Nearest(orb.Point{0, 0})
	assert.Equal(t, 1, idx)
	assert.InEpsilon(t, 1e200, dist, 1e-12)

	out, err := r.Apply([]orb.Point{{0, 0}}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, valid(2), out[0])
}

func TestNearest_HugeOffsetsTieToLowestIndex(t *testing.T) {
	r, err := resample.Build([]orb.Point{{3e200, 0}, {0, 2e200}, {-2e200, 0}}, 1e300)
	require.NoError(t, err)

	idx, _ := r.Nearest(orb.Point{0, 0})
	assert.Equal(t, 1, idx)
}

func TestApply_ZeroValueIsNotNoData(t *testing.T) {
	r, err := resample.Build([]orb.Point{{0, 0}}, 1)
	require.NoError(t, err)

	out, err := r.Apply([]orb.Point{{0, 0}, {5, 5}}, []float64{0})
	require.NoError(t, err)

	assert.Equal(t, valid(0), out[0])
	assert.Equal(t, resample.NoData, out[1])
	assert.NotEqual(t, out[0], out[1])
}

func TestApply_CoincidenceForEverySourcePoint(t *testing.T) {
	src := randomPoints(rand.New(rand.NewPCG(1, 2)), 500, 1000)
	values := make([]float64, len(src))
	for i := range values {
		values[i] = float64(i) * 0.5
	}

	for _, maxDist := range []float64{0, 1, math.Inf(1)} {
		r, err := resample.Build(src, maxDist)
		require.NoError(t, err)

		out, err := r.Apply(src, values)
		require.NoError(t, err)
		for i := range src {
			// Random float coordinates are distinct, so every point matches itself.
			assert.Equal(t, valid(values[i]), out[i], "maxDist=%v point %d", maxDist, i)
		}
	}
}

func TestNearest_DuplicateCoordinatesPreferLowestIndex(t *testing.T) {
	src := []orb.Point{{3, 3}, {1, 1}, {1, 1}, {1, 1}}
	r, err := resample.Build(src, 10)
	require.NoError(t, err)

	idx, dist := r.Nearest(orb.Point{1, 1})
	assert.Equal(t, 1, idx)
	assert.Zero(t, dist)

	out, err := r.Apply([]orb.Point{{1.2, 1.1}}, []float64{0, 11, 22, 33})
	require.NoError(t, err)
	assert.Equal(t, valid(11), out[0])
}

func TestNearest_EquidistantPreferLowestIndex(t *testing.T) {
	q := orb.Point{1, 0}
	tests := []struct {
		name string
		src  []orb.Point
		want int
	}{
		{name: "lower first", src: []orb.Point{{0, 0}, {2, 0}}, want: 0},
		{name: "higher first", src: []orb.Point{{2, 0}, {0, 0}}, want: 0},
		{name: "four way", src: []orb.Point{{1, 1}, {2, 0}, {1, -1}, {0, 0}}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := resample.Build(tt.src, 5)
			require.NoError(t, err)
			idx, dist := r.Nearest(q)
			assert.Equal(t, tt.want, idx)
			assert.InDelta(t, 1.0, dist, 1e-12)
		})
	}
}

func TestNearest_TieBreakStableUnderReorderingOfUnrelatedPoints(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	q := orb.Point{500, 500}

	for run := 0; run < 20; run++ {
		far := randomPoints(rng, 200, 100)
		for i := range far {
			far[i][0] += 2000 // keep every unrelated point well away from q
		}
		rng.Shuffle(len(far), func(i, j int) { far[i], far[j] = far[j], far[i] })

		// The two tied points keep their relative order; everything else moves.
		cut := rng.IntN(len(far))
		src := append([]orb.Point{}, far[:cut]...)
		lower := len(src)
		src = append(src, orb.Point{497, 496}) // distance 5
		src = append(src, far[cut:]...)
		src = append(src, orb.Point{503, 504}) // distance 5

		values := make([]float64, len(src))
		values[lower] = 42

		r, err := resample.Build(src, 10)
		require.NoError(t, err)
		out, err := r.Apply([]orb.Point{q}, values)
		require.NoError(t, err)
		assert.Equal(t, valid(42), out[0], "run %d", run)
	}
}

func TestApply_ThresholdMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	src := randomPoints(rng, 300, 100)
	values := make([]float64, len(src))
	for i := range values {
		values[i] = float64(i)
	}
	query := randomPoints(rng, 50, 140)

	unbounded, err := resample.Build(src, math.Inf(1))
	require.NoError(t, err)

	for _, q := range query {
		idx, d := unbounded.Nearest(q)

		below, err := resample.Build(src, math.Nextafter(d, 0))
		require.NoError(t, err)
		out, err := below.Apply([]orb.Point{q}, values)
		require.NoError(t, err)
		assert.False(t, out[0].Valid, "maxDist just below %v", d)

		for _, maxDist := range []float64{d, d * 2, d + 1} {
			at, err := resample.Build(src, maxDist)
			require.NoError(t, err)
			out, err := at.Apply([]orb.Point{q}, values)
			require.NoError(t, err)
			assert.Equal(t, valid(values[idx]), out[0], "maxDist %v", maxDist)
		}
	}
}

func TestApply_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))

	// Integer lattice coordinates produce plenty of exact ties and duplicates.
	src := make([]orb.Point, 5000)
	for i := range src {
		src[i] = orb.Point{float64(rng.IntN(80)), float64(rng.IntN(80))}
	}
	query := make([]orb.Point, 4000)
	for i := range query {
		query[i] = orb.Point{float64(rng.IntN(90)) - 5 + 0.5*float64(rng.IntN(2)), float64(rng.IntN(90)) - 5}
	}
	values := make([]float64, len(src))
	for i := range values {
		values[i] = float64(i)
	}
	const maxDist = 2.5

	r, err := resample.Build(src, maxDist)
	require.NoError(t, err)
	got, err := r.Apply(query, values)
	require.NoError(t, err)

	want := make([]resample.Sample, len(query))
	for i, q := range query {
		best, bestD := -1, math.Inf(1)
		for j, p := range src {
			if d := planar.Distance(p, q); d < bestD {
				best, bestD = j, d
			}
		}
		if bestD <= maxDist {
			want[i] = valid(values[best])
		}
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("k-d tree disagrees with linear scan (-want +got):\n%s", diff)
	}
}

func TestApply_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	src := randomPoints(rng, 2000, 50)
	query := randomPoints(rng, 3000, 60)
	values := make([]float64, len(src))
	for i := range values {
		values[i] = rng.Float64()
	}

	r, err := resample.Build(src, 1.5)
	require.NoError(t, err)
	first, err := r.Apply(query, values)
	require.NoError(t, err)
	assert.Len(t, first, len(query))

	for i := 0; i < 3; i++ {
		again, err := r.Apply(query, values)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestApply_OutputLengthFollowsQuery(t *testing.T) {
	r, err := resample.Build([]orb.Point{{0, 0}, {1, 1}}, 1)
	require.NoError(t, err)

	for _, m := range []int{0, 1, 7, 1000} {
		query := make([]orb.Point, m)
		out, err := r.Apply(query, []float64{1, 2})
		require.NoError(t, err)
		assert.Len(t, out, m)
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		points  []orb.Point
		maxDist float64
	}{
		{name: "empty", points: nil, maxDist: 1},
		{name: "nan x", points: []orb.Point{{0, 0}, {math.NaN(), 1}}, maxDist: 1},
		{name: "inf y", points: []orb.Point{{0, math.Inf(-1)}}, maxDist: 1},
		{name: "negative max distance", points: []orb.Point{{0, 0}}, maxDist: -1},
		{name: "nan max distance", points: []orb.Point{{0, 0}}, maxDist: math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := resample.Build(tt.points, tt.maxDist)
			require.ErrorIs(t, err, resample.ErrInvalidInput)
			assert.Nil(t, r)
		})
	}
}

func TestBuild_InfiniteMaxDistDisablesCutoff(t *testing.T) {
	r, err := resample.Build([]orb.Point{{0, 0}}, math.Inf(1))
	require.NoError(t, err)

	out, err := r.Apply([]orb.Point{{1e9, -1e9}}, []float64{7})
	require.NoError(t, err)
	assert.Equal(t, valid(7), out[0])
}

func TestApply_NonFiniteQuery(t *testing.T) {
	r, err := resample.Build([]orb.Point{{0, 0}}, 1)
	require.NoError(t, err)

	_, err = r.Apply([]orb.Point{{0, 0}, {math.Inf(1), 0}}, []float64{1})
	require.ErrorIs(t, err, resample.ErrInvalidInput)

	_, err = r.PlanConcurrent([]orb.Point{{math.NaN(), 0}}, 4)
	require.ErrorIs(t, err, resample.ErrInvalidInput)
}

func TestApply_ShapeMismatch(t *testing.T) {
	r, err := resample.Build([]orb.Point{{0, 0}, {1, 0}, {2, 0}}, 1)
	require.NoError(t, err)

	_, err = r.Apply([]orb.Point{{0, 0}}, []float64{1, 2})
	require.ErrorIs(t, err, resample.ErrShapeMismatch)

	// The shape check happens before the query is inspected.
	_, err = r.Apply([]orb.Point{{math.NaN(), 0}}, []float64{1, 2})
	require.ErrorIs(t, err, resample.ErrShapeMismatch)

	plan, err := r.Plan([]orb.Point{{0, 0}})
	require.NoError(t, err)
	_, err = plan.Apply([]float64{1, 2, 3, 4})
	require.ErrorIs(t, err, resample.ErrShapeMismatch)
	_, err = plan.ApplySamples(nil)
	require.ErrorIs(t, err, resample.ErrShapeMismatch)
}

func TestPlan_ReusedAcrossFields(t *testing.T) {
	src := []orb.Point{{0, 0}, {10, 0}, {0, 10}}
	r, err := resample.Build(src, 6)
	require.NoError(t, err)

	plan, err := r.Plan([]orb.Point{{1, 1}, {9, 1}, {100, 100}})
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Len())
	assert.Equal(t, 3, plan.Sources())
	assert.Equal(t, 2, plan.Covered())

	idx, ok := plan.Source(1)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = plan.Source(2)
	assert.False(t, ok)

	dbz, err := plan.Apply([]float64{5, 50, 500})
	require.NoError(t, err)
	vel, err := plan.Apply([]float64{-3, 0, 3})
	require.NoError(t, err)

	assert.Equal(t, []resample.Sample{valid(5), valid(50), resample.NoData}, dbz)
	assert.Equal(t, []resample.Sample{valid(-3), valid(0), resample.NoData}, vel)
}

func TestPlan_ApplySamplesKeepsSourceNoData(t *testing.T) {
	r, err := resample.Build([]orb.Point{{0, 0}, {10, 0}}, 3)
	require.NoError(t, err)
	plan, err := r.Plan([]orb.Point{{1, 0}, {9, 0}, {5, 20}})
	require.NoError(t, err)

	out, err := plan.ApplySamples([]resample.Sample{resample.NoData, valid(-12.5)})
	require.NoError(t, err)
	assert.Equal(t, []resample.Sample{resample.NoData, valid(-12.5), resample.NoData}, out)
}

func TestPlanConcurrent_MatchesPlan(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 22))
	src := randomPoints(rng, 10000, 1000)
	query := randomPoints(rng, 20000, 1100)
	values := make([]float64, len(src))
	for i := range values {
		values[i] = float64(i)
	}

	r, err := resample.Build(src, 8)
	require.NoError(t, err)

	seq, err := r.Plan(query)
	require.NoError(t, err)
	want, err := seq.Apply(values)
	require.NoError(t, err)

	for _, workers := range []int{0, 1, 3, 8, 64} {
		par, err := r.PlanConcurrent(query, workers)
		require.NoError(t, err)
		got, err := par.Apply(values)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("workers=%d mismatch (-want +got):\n%s", workers, diff)
		}
	}
}

func TestResampler_SharedAcrossGoroutines(t *testing.T) {
	rng := rand.New(rand.NewPCG(31, 32))
	src := randomPoints(rng, 3000, 100)
	query := randomPoints(rng, 2000, 100)

	r, err := resample.Build(src, 2)
	require.NoError(t, err)

	base := make([]float64, len(src))
	for i := range base {
		base[i] = float64(i)
	}
	want, err := r.Apply(query, base)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]resample.Sample, 8)
	errs := make([]error, 8)
	for g := range results {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			results[g], errs[g] = r.Apply(query, base)
		}(g)
	}
	wg.Wait()

	for g := range results {
		require.NoError(t, errs[g])
		assert.Equal(t, want, results[g])
	}
}

func BenchmarkPlan(b *testing.B) {
	rng := rand.New(rand.NewPCG(1, 1))
	src := randomPoints(rng, 360*500, 250000)
	query := randomPoints(rng, 500*500, 250000)

	r, err := resample.Build(src, 1000)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.PlanConcurrent(query, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func randomPoints(rng *rand.Rand, n int, extent float64) []orb.Point {
	pts := make([]orb.Point, n)
	for i := range pts {
		pts[i] = orb.Point{(rng.Float64()*2 - 1) * extent, (rng.Float64()*2 - 1) * extent}
	}
	return pts
}
