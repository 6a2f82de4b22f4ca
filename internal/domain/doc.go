// Package domain models weather-radar sweeps and the raster products derived
// from them.
//
// # Data Source
//
// Sweeps are produced by an upstream collector that decodes radar volume
// files (ODIM HDF5, NEXRAD Level II, ...) and publishes one JSON message per
// elevation scan to the Kafka source topic. This service never parses a radar
// file format itself.
//
// # Sweep Conventions
//
// Geometry:
//
//	Azimuths are degrees clockwise from true north, one per ray.
//	Ranges are slant ranges to the bin centres in metres, shared by all rays.
//	Elevation is the antenna elevation angle in degrees.
//	Moment data is ray-major: Data[ray][bin].
//
// Bin order:
//
//	Whenever a sweep is flattened (georeferenced coordinates, moment values)
//	the flat index of ray i, bin j is i*len(Ranges)+j.
//
// Missing values:
//
//	Each moment may carry its own NoData marker (ODIM "nodata"/"undetect"
//	style). Bins equal to it, and NaN bins, are treated as absent, never as
//	a reading. A moment without a marker has no absent bins besides NaN.
//
// # Georeferencing
//
// Bins are placed on a plane tangent at the radar site using an azimuthal
// equidistant projection on a sphere of radius [EarthRadius]. Beam height and
// ground distance follow the 4/3 effective earth radius model:
//
//	h = sqrt(r² + (kₑa)² + 2·r·kₑa·sin θ) − kₑa
//	s = kₑa · asin(r·cos θ / (kₑa + h))
//
// where r is slant range, θ elevation, a the earth radius and kₑ = 4/3. The
// plane coordinates are x = s·sin(az), y = s·cos(az) in metres.
//
// # Grids
//
// Output rasters are north-up grids. Cells are addressed row-major with row 0
// on the northern edge and columns running west to east, which is also the
// order of [Grid.Centers] and of the resampled values.
//
// # ID Generation
//
// Sweep and product IDs are deterministic SHA-256 prefixes of their identifying
// fields so replays overwrite rather than duplicate catalog rows.
package domain
