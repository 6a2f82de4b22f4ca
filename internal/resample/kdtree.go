package resample

import (
	"cmp"
	"math"

	"github.com/paulmach/orb"
)

// leafSize is the number of points below which a subtree is scanned linearly
// instead of being split further.
const leafSize = 16

// kdTree is a static 2-D k-d tree stored implicitly in two flat slices.
// The median of every range [left, right] sits at (left+right)/2; points left
// of it are <= the median on the split axis, points right of it are >=.
type kdTree struct {
	ids    []int32   // original source index, in tree order
	coords []float64 // interleaved x, y in tree order
}

// neighbor is the best candidate so far. dx and dy are absolute offsets from
// the query; distances are compared through them so no precision is lost to
// squaring very small or very large offsets.
type neighbor struct {
	id     int32
	dx, dy float64
}

// dist returns the Euclidean distance of the neighbor from the query.
func (nb neighbor) dist() float64 { return math.Hypot(nb.dx, nb.dy) }

func newKDTree(points []orb.Point) *kdTree {
	t := &kdTree{
		ids:    make([]int32, len(points)),
		coords: make([]float64, 2*len(points)),
	}
	for i, p := range points {
		t.ids[i] = int32(i)
		t.coords[2*i] = p[0]
		t.coords[2*i+1] = p[1]
	}
	t.sort(0, len(points)-1, 0)
	return t
}

func (t *kdTree) sort(left, right, axis int) {
	if right-left <= leafSize {
		return
	}
	m := (left + right) >> 1
	t.selectK(m, left, right, axis)
	t.sort(left, m-1, 1-axis)
	t.sort(m+1, right, 1-axis)
}

// selectK partially orders [left, right] on axis so that position k holds the
// value it would hold if the range were sorted (Floyd-Rivest selection).
func (t *kdTree) selectK(k, left, right, axis int) {
	for right > left {
		if right-left > 600 {
			n := float64(right - left + 1)
			m := float64(k - left + 1)
			z := math.Log(n)
			s := 0.5 * math.Exp(2*z/3)
			sd := 0.5 * math.Sqrt(z*s*(n-s)/n)
			if m-n/2 < 0 {
				sd = -sd
			}
			newLeft := max(left, int(math.Floor(float64(k)-m*s/n+sd)))
			newRight := min(right, int(math.Floor(float64(k)+(n-m)*s/n+sd)))
			t.selectK(k, newLeft, newRight, axis)
		}

		v := t.coords[2*k+axis]
		i, j := left, right

		t.swap(left, k)
		if t.coords[2*right+axis] > v {
			t.swap(left, right)
		}

		for i < j {
			t.swap(i, j)
			i++
			j--
			for t.coords[2*i+axis] < v {
				i++
			}
			for t.coords[2*j+axis] > v {
				j--
			}
		}

		if t.coords[2*left+axis] == v {
			t.swap(left, j)
		} else {
			j++
			t.swap(j, right)
		}

		if j <= k {
			left = j + 1
		}
		if k <= j {
			right = j - 1
		}
	}
}

func (t *kdTree) swap(i, j int) {
	t.ids[i], t.ids[j] = t.ids[j], t.ids[i]
	t.coords[2*i], t.coords[2*j] = t.coords[2*j], t.coords[2*i]
	t.coords[2*i+1], t.coords[2*j+1] = t.coords[2*j+1], t.coords[2*i+1]
}

// nearest returns the closest stored point to (x, y). Among equidistant
// points the one with the lowest original index wins.
func (t *kdTree) nearest(x, y float64) neighbor {
	best := neighbor{id: -1}
	t.search(x, y, 0, len(t.ids)-1, 0, &best)
	return best
}

func (t *kdTree) search(x, y float64, left, right, axis int, best *neighbor) {
	if right-left <= leafSize {
		for i := left; i <= right; i++ {
			t.consider(i, x, y, best)
		}
		return
	}

	m := (left + right) >> 1
	t.consider(m, x, y, best)

	q := x
	if axis == 1 {
		q = y
	}
	diff := q - t.coords[2*m+axis]

	// The far side may still hold an equidistant point with a lower index,
	// so it is pruned only when strictly out of reach.
	if diff < 0 {
		t.search(x, y, left, m-1, 1-axis, best)
		if best.reaches(-diff) {
			t.search(x, y, m+1, right, 1-axis, best)
		}
		return
	}
	t.search(x, y, m+1, right, 1-axis, best)
	if best.reaches(diff) {
		t.search(x, y, left, m-1, 1-axis, best)
	}
}

// reaches reports whether a point at axis distance d could be as close as
// the current best.
func (nb *neighbor) reaches(d float64) bool {
	return nb.id < 0 || compareDist(d, 0, nb.dx, nb.dy) <= 0
}

func (t *kdTree) consider(i int, x, y float64, best *neighbor) {
	dx := math.Abs(t.coords[2*i] - x)
	dy := math.Abs(t.coords[2*i+1] - y)
	id := t.ids[i]
	if best.id < 0 {
		*best = neighbor{id: id, dx: dx, dy: dy}
		return
	}
	if c := compareDist(dx, dy, best.dx, best.dy); c < 0 || (c == 0 && id < best.id) {
		*best = neighbor{id: id, dx: dx, dy: dy}
	}
}

// minExactSquare is the smallest sum of squares that is compared directly.
// Below it a square may have lost bits to underflow.
const minExactSquare = 0x1p-968

// compareDist compares hypot(ax, ay) with hypot(bx, by) for non-negative
// offsets and returns -1, 0 or +1. Squared distances are compared directly
// when they are exact enough; otherwise all four offsets are scaled by a
// common power of two first, which is exact and avoids overflow and
// underflow.
func compareDist(ax, ay, bx, by float64) int {
	a2, b2 := ax*ax+ay*ay, bx*bx+by*by
	if exactSquare(a2, ax, ay) && exactSquare(b2, bx, by) {
		return cmp.Compare(a2, b2)
	}

	m := max(ax, ay, bx, by)
	if math.IsInf(m, 1) {
		return cmp.Compare(math.Hypot(ax, ay), math.Hypot(bx, by))
	}
	_, e := math.Frexp(m)
	ax, ay = math.Ldexp(ax, -e), math.Ldexp(ay, -e)
	bx, by = math.Ldexp(bx, -e), math.Ldexp(by, -e)
	return cmp.Compare(ax*ax+ay*ay, bx*bx+by*by)
}

func exactSquare(sq, x, y float64) bool {
	if math.IsInf(sq, 1) {
		return false
	}
	return sq >= minExactSquare || (x == 0 && y == 0)
}
