// Package resample maps values sampled at an irregular set of planar source
// points onto an arbitrary set of query points by nearest-neighbour lookup
// with a distance cutoff.
//
// The typical use is regridding one radar sweep: the georeferenced bins are
// the source points, the cell centres of the output raster are the query
// points. Geometry changes rarely while values change every scan, so the work
// is split in two steps:
//
//	r, err := resample.Build(binXY, 1000)   // k-d tree over the bins
//	plan, err := r.Plan(gridXY)              // nearest bin per cell
//	dbz, err := plan.Apply(reflectivity)     // once per moment
//	vel, err := plan.Apply(velocity)
//
// A [Resampler] and a [Plan] are immutable after construction and can be
// shared by any number of goroutines without locking.
//
// # Semantics
//
// Distances are Euclidean in whatever planar units the caller supplies. For
// every query point the nearest source point wins; equidistant source points
// resolve to the lowest source index. A query point whose nearest source lies
// strictly farther than the cutoff yields a [Sample] with Valid == false
// (NoData). An exact coincidence (distance 0) always matches, even with a
// cutoff of 0.
package resample
