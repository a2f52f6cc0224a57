package emit

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// CoordinateVectors derives pixel-center longitude and latitude vectors from a
// geotransform and the GLT extent. EMIT geotransforms carry no rotation terms.
func CoordinateVectors(gt [6]float64, rows, cols int) (lon, lat []float64) {
	lon = make([]float64, cols)
	lat = make([]float64, rows)
	for x := 0; x < cols; x++ {
		lon[x] = gt[0] + 0.5*gt[1] + float64(x)*gt[1]
	}
	for y := 0; y < rows; y++ {
		lat[y] = gt[3] + 0.5*gt[5] + float64(y)*gt[5]
	}
	return lon, lat
}

// ApplyGLT resamples a sensor-space cube onto the geographic grid described by
// the GLT. Output cells whose GLT entry is the no-data sentinel keep fill.
// GLT indices are 1-based; entries that fall outside the source grid after
// 0-basing are treated as no-data rather than a fault.
func ApplyGLT(src *Cube, glt *GLT, fill float64) *Cube {
	out := NewFilledCube(glt.Rows, glt.Cols, src.Bands, fill)
	oob := 0
	for r := 0; r < glt.Rows; r++ {
		for c := 0; c < glt.Cols; c++ {
			i := r*glt.Cols + c
			if glt.X[i] == GLTNodata || glt.Y[i] == GLTNodata {
				continue
			}
			// glt_x indexes crosstrack (columns), glt_y downtrack (rows).
			sc := glt.X[i] - 1
			sr := glt.Y[i] - 1
			if sr < 0 || sr >= src.Rows || sc < 0 || sc >= src.Cols {
				oob++
				continue
			}
			copy(out.Pixel(r, c), src.Pixel(sr, sc))
		}
	}
	if oob > 0 {
		log.Warnf("glt: %d entries outside the %dx%d sensor grid treated as no-data", oob, src.Rows, src.Cols)
	}
	return out
}

// maskFill replaces the fill sentinel with NaN, in place. The cube is always a
// freshly allocated resample output, never caller-owned storage.
func maskFill(c *Cube, fill float64) {
	for i, v := range c.Data {
		if v == fill {
			c.Data[i] = math.NaN()
		}
	}
}

// Orthorectify resamples every data variable of a sensor-space scene onto the
// geographic grid of its GLT and reconstructs the latitude/longitude
// coordinate vectors from the geotransform. Elevation is resampled the same
// way and attached as a coordinate of the output scene.
//
// The scene must be fully materialized: the remap is random access over the
// whole grid, which a chunked scene cannot serve.
func Orthorectify(s *Scene) (*Scene, error) {
	if s.Chunked() {
		return nil, fmt.Errorf("%w: cannot orthorectify a chunked scene", ErrConfiguration)
	}
	if s.Orthorectified {
		return nil, fmt.Errorf("%w: scene %s is already orthorectified", ErrState, s.GranuleID)
	}
	if s.GLT == nil {
		return nil, fmt.Errorf("%w: scene %s carries no GLT", ErrDataIntegrity, s.GranuleID)
	}

	out := &Scene{
		GranuleID:       s.GranuleID,
		Family:          s.Family,
		Vars:            make(map[string]*Cube, len(s.Vars)),
		Geotransform:    s.Geotransform,
		Wavelengths:     s.Wavelengths,
		FWHM:            s.FWHM,
		GoodWavelengths: s.GoodWavelengths,
		BandNames:       s.BandNames,
		Orthorectified:  true,
	}

	for name, v := range s.Vars {
		ortho := ApplyGLT(v, s.GLT, FillValue)
		maskFill(ortho, FillValue)
		out.Vars[name] = ortho
	}

	out.Longitude, out.Latitude = CoordinateVectors(s.Geotransform, s.GLT.Rows, s.GLT.Cols)

	if s.Elevation != nil {
		elev := ApplyGLT(s.Elevation, s.GLT, FillValue)
		maskFill(elev, FillValue)
		out.Elevation = elev
	}

	return out, nil
}
