package emit

import (
	"fmt"

	"github.com/spectravue/emit-unmix/internal/utils"
)

// GLT is the geolocation lookup table: two co-registered integer planes in
// geographic space whose entries are 1-based (crosstrack, downtrack) indices
// into sensor space, or GLTNodata where no sensor pixel maps.
type GLT struct {
	Rows int
	Cols int
	X    []int
	Y    []int
}

const (
	// GLTNodata marks geographic cells with no sensor pixel behind them.
	GLTNodata = 0
	// FillValue is the sensor-space no-data sentinel carried by every EMIT
	// product before fill masking replaces it with NaN.
	FillValue = -9999.0
	// ByteNodata is the no-data sentinel of the exported 8-bit abundance raster.
	ByteNodata = 255
)

func NewGLT(rows, cols int) *GLT {
	return &GLT{Rows: rows, Cols: cols, X: make([]int, rows*cols), Y: make([]int, rows*cols)}
}

// Valid reports whether the cell carries a usable sensor index, i.e. both
// planes are non-sentinel.
func (g *GLT) Valid(row, col int) bool {
	i := row*g.Cols + col
	return g.X[i] != GLTNodata && g.Y[i] != GLTNodata
}

// Scene is one granule's worth of data, either in sensor (downtrack x
// crosstrack) geometry or, after orthorectification, in geographic (latitude x
// longitude) geometry.
type Scene struct {
	GranuleID string
	Family    ProductFamily

	// Vars holds the data variables (reflectance, mask, ...). In sensor
	// geometry they are indexed (downtrack, crosstrack, band); after
	// orthorectification (latitude, longitude, band).
	Vars map[string]*Cube

	// Sensor-space geolocation, present until orthorectification consumes it.
	GLT          *GLT
	Elevation    *Cube
	Geotransform [6]float64

	// Band coordinates, keyed by the product family's band variable.
	Wavelengths     []float64
	FWHM            []float64
	GoodWavelengths []float64
	BandNames       []string

	// Geographic coordinate vectors, populated by orthorectification.
	Latitude  []float64
	Longitude []float64

	Orthorectified bool

	// chunked holds the lazy reader when the scene was opened with a chunk
	// spec; Vars then has no materialized entries.
	chunked BlockSource
}

// BlockSource reads spatial windows of the primary variable without
// materializing the whole cube.
type BlockSource interface {
	// Dims returns (downtrack, crosstrack, bands) of the primary variable.
	Dims() (int, int, int)
	// ReadBlock reads the window [row0,row0+rows) x [col0,col0+cols), all bands.
	ReadBlock(row0, col0, rows, cols int) (*Cube, error)
	Close() error
}

// Chunked reports whether the scene is lazily evaluated.
func (s *Scene) Chunked() bool { return s.chunked != nil }

// PrimaryVar names the scene's main data variable: the family's first
// variable when present, otherwise the first variable by name. Multi-variable
// granules like the L2A mask carry cubes of differing band counts, so the
// choice must not depend on map iteration order.
func (s *Scene) PrimaryVar() string {
	if vars, ok := familyVars[s.Family.Marker]; ok {
		if _, present := s.Vars[vars[0]]; present || s.chunked != nil {
			return vars[0]
		}
	}
	if names := utils.SortedKeys(s.Vars); len(names) > 0 {
		return names[0]
	}
	return "reflectance"
}

// Dims returns the spatial and band extent of the primary variable.
func (s *Scene) Dims() (rows, cols, bands int) {
	if s.chunked != nil {
		return s.chunked.Dims()
	}
	if v, ok := s.Vars[s.PrimaryVar()]; ok {
		return v.Rows, v.Cols, v.Bands
	}
	return 0, 0, 0
}

// ReadBlock serves a spatial window of the primary variable, from the lazy
// source when chunked, otherwise by slicing the materialized cube.
func (s *Scene) ReadBlock(name string, row0, col0, rows, cols int) (*Cube, error) {
	if s.chunked != nil {
		return s.chunked.ReadBlock(row0, col0, rows, cols)
	}
	v, ok := s.Vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: no variable %q in scene %s", ErrDataIntegrity, name, s.GranuleID)
	}
	return v.Block(row0, col0, rows, cols)
}

// Close releases the lazy reader, if any.
func (s *Scene) Close() error {
	if s.chunked != nil {
		return s.chunked.Close()
	}
	return nil
}

// GoodBandIndices lists the spectral channels flagged usable. When the granule
// carries no good_wavelengths variable every band is usable.
func (s *Scene) GoodBandIndices() []int {
	_, _, bands := s.Dims()
	if len(s.GoodWavelengths) == 0 {
		idx := make([]int, bands)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	var idx []int
	for i, g := range s.GoodWavelengths {
		if g == 1 {
			idx = append(idx, i)
		}
	}
	return idx
}
