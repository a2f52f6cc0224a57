package emit

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Window is the rectangular sensor-space region a crop selected. Callers use
// it to align full-grid rasters, like a quality mask, with the cropped scene.
type Window struct {
	Row0, Col0 int
	Rows, Cols int
}

// Crop clips the scene's GLT by a polygon and reduces the sensor grid to the
// bounding window covered by the surviving GLT entries. Clipping uses
// all-touched semantics: a geographic cell survives when it touches the
// polygon at all, not only when its center falls inside.
//
// The returned scene carries a re-based 1-based GLT and a geotransform that
// round-trip through Orthorectify without further adjustment. The window is
// the sensor region the scene was reduced to.
func Crop(s *Scene, shape orb.MultiPolygon) (*Scene, Window, error) {
	if s.Chunked() {
		return nil, Window{}, fmt.Errorf("%w: cannot crop a chunked scene", ErrConfiguration)
	}
	if s.Orthorectified {
		return nil, Window{}, fmt.Errorf("%w: scene %s is already orthorectified", ErrState, s.GranuleID)
	}
	if s.GLT == nil {
		return nil, Window{}, fmt.Errorf("%w: scene %s carries no GLT", ErrDataIntegrity, s.GranuleID)
	}
	if len(shape) == 0 {
		return nil, Window{}, fmt.Errorf("%w: empty clip polygon", ErrValidation)
	}

	gt := s.Geotransform
	glt := s.GLT

	// Geographic cells touched by the polygon, and their bounding window.
	touched := make([]bool, glt.Rows*glt.Cols)
	rmin, rmax, cmin, cmax := glt.Rows, -1, glt.Cols, -1
	// Sensor-space index extent of the surviving GLT entries (1-based values).
	xmin, xmax, ymin, ymax := math.MaxInt, -1, math.MaxInt, -1

	for r := 0; r < glt.Rows; r++ {
		for c := 0; c < glt.Cols; c++ {
			cell := cellBound(gt, r, c)
			if !cellTouches(shape, cell) {
				continue
			}
			touched[r*glt.Cols+c] = true
			if r < rmin {
				rmin = r
			}
			if r > rmax {
				rmax = r
			}
			if c < cmin {
				cmin = c
			}
			if c > cmax {
				cmax = c
			}
			if glt.Valid(r, c) {
				i := r*glt.Cols + c
				if glt.X[i] < xmin {
					xmin = glt.X[i]
				}
				if glt.X[i] > xmax {
					xmax = glt.X[i]
				}
				if glt.Y[i] < ymin {
					ymin = glt.Y[i]
				}
				if glt.Y[i] > ymax {
					ymax = glt.Y[i]
				}
			}
		}
	}
	if rmax < 0 {
		return nil, Window{}, fmt.Errorf("%w: polygon does not intersect granule %s extent", ErrValidation, s.GranuleID)
	}
	if xmax < 0 {
		return nil, Window{}, fmt.Errorf("%w: polygon covers no geolocated pixels of granule %s", ErrValidation, s.GranuleID)
	}

	// Geotransform of the clipped window. The extent-derived origin sits half
	// a pixel short of the pixel-corner convention, so shift both axes by
	// half a pixel to realign with the pixel-center reconstruction used when
	// orthorectifying.
	lon, lat := CoordinateVectors(gt, glt.Rows, glt.Cols)
	newGT := gt
	newGT[0] = (lon[cmin] - gt[1]) + gt[1]/2
	newGT[3] = (lat[rmin] - gt[5]) + gt[5]/2

	// Sensor-space bounding window. The -1 on the minima accounts for the
	// GLT's 1-based indexing.
	row0 := max(ymin-1, 0)
	col0 := max(xmin-1, 0)
	sensorRows, sensorCols, _ := s.Dims()
	win := Window{
		Row0: row0,
		Col0: col0,
		Rows: min(ymax, sensorRows) - row0,
		Cols: min(xmax, sensorCols) - col0,
	}
	var cropErr error
	cropped := &Scene{
		GranuleID:       s.GranuleID,
		Family:          s.Family,
		Vars:            make(map[string]*Cube, len(s.Vars)),
		Geotransform:    newGT,
		Wavelengths:     s.Wavelengths,
		FWHM:            s.FWHM,
		GoodWavelengths: s.GoodWavelengths,
		BandNames:       s.BandNames,
	}
	for name, v := range s.Vars {
		rows := min(ymax, v.Rows) - row0
		cols := min(xmax, v.Cols) - col0
		block, err := v.Block(row0, col0, rows, cols)
		if err != nil {
			cropErr = err
			break
		}
		cropped.Vars[name] = block
	}
	if cropErr != nil {
		return nil, Window{}, fmt.Errorf("failed to crop granule %s: %w", s.GranuleID, cropErr)
	}
	if s.Elevation != nil {
		rows := min(ymax, s.Elevation.Rows) - row0
		cols := min(xmax, s.Elevation.Cols) - col0
		block, err := s.Elevation.Block(row0, col0, rows, cols)
		if err != nil {
			return nil, Window{}, fmt.Errorf("failed to crop granule %s elevation: %w", s.GranuleID, err)
		}
		cropped.Elevation = block
	}

	// Re-index the clipped GLT so its minimum valid entry becomes 1 again;
	// cells outside the polygon or without a sensor pixel become no-data.
	newGLT := NewGLT(rmax-rmin+1, cmax-cmin+1)
	for r := rmin; r <= rmax; r++ {
		for c := cmin; c <= cmax; c++ {
			if !touched[r*glt.Cols+c] || !glt.Valid(r, c) {
				continue
			}
			i := r*glt.Cols + c
			j := (r-rmin)*newGLT.Cols + (c - cmin)
			newGLT.X[j] = glt.X[i] - xmin + 1
			newGLT.Y[j] = glt.Y[i] - ymin + 1
		}
	}
	cropped.GLT = newGLT

	return cropped, win, nil
}

// cellBound is the geographic rectangle of GLT cell (row, col) under the
// pixel-corner geotransform convention. Pixel height is negative, so the
// bound's min/max are sorted explicitly.
func cellBound(gt [6]float64, row, col int) orb.Bound {
	x0 := gt[0] + float64(col)*gt[1]
	x1 := x0 + gt[1]
	y0 := gt[3] + float64(row)*gt[5]
	y1 := y0 + gt[5]
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// cellTouches implements all-touched clipping for one cell: the cell survives
// when a representative point falls inside the polygon, a polygon vertex
// falls inside the cell, or a polygon edge crosses the cell.
func cellTouches(shape orb.MultiPolygon, cell orb.Bound) bool {
	if !cell.Intersects(shape.Bound()) {
		return false
	}
	probes := []orb.Point{
		cell.Center(),
		cell.Min,
		cell.Max,
		{cell.Min[0], cell.Max[1]},
		{cell.Max[0], cell.Min[1]},
	}
	for _, p := range probes {
		if planar.MultiPolygonContains(shape, p) {
			return true
		}
	}
	for _, poly := range shape {
		for _, ring := range poly {
			for i := 0; i < len(ring); i++ {
				if cell.Contains(ring[i]) {
					return true
				}
				if i+1 < len(ring) && segmentCrossesBound(ring[i], ring[i+1], cell) {
					return true
				}
			}
		}
	}
	return false
}

// segmentCrossesBound reports whether the segment a-b intersects the
// rectangle, via separating-axis style slab clipping.
func segmentCrossesBound(a, b orb.Point, bound orb.Bound) bool {
	tmin, tmax := 0.0, 1.0
	d := orb.Point{b[0] - a[0], b[1] - a[1]}
	for axis := 0; axis < 2; axis++ {
		if d[axis] == 0 {
			if a[axis] < bound.Min[axis] || a[axis] > bound.Max[axis] {
				return false
			}
			continue
		}
		t0 := (bound.Min[axis] - a[axis]) / d[axis]
		t1 := (bound.Max[axis] - a[axis]) / d[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math.Max(tmin, t0)
		tmax = math.Min(tmax, t1)
		if tmin > tmax {
			return false
		}
	}
	return true
}
