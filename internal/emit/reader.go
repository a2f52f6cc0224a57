package emit

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/spectravue/emit-unmix/internal/utils"
)

// Variables read per product family, root group. The location and
// sensor_band_parameters groups are handled separately.
var familyVars = map[string][]string{
	"L2A_RFL_":       {"reflectance"},
	"L2A_RFLUNCERT_": {"reflectance_uncertainty"},
	"L1B_RAD_":       {"radiance"},
	"L1B_OBS_":       {"obs"},
	"L2A_MASK_":      {"mask", "band_mask"},
}

func subdataset(path, variable string) string {
	return fmt.Sprintf(`NETCDF:"%s":%s`, path, variable)
}

func openVar(path, variable string) (*godal.Dataset, error) {
	ds, err := godal.Open(subdataset(path, variable), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal: %s", msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", subdataset(path, variable), err)
	}
	return ds, nil
}

// readCube reads a 2-D or 3-D netCDF variable into a cube. GDAL exposes the
// band axis as raster bands and the spatial axes as lines/pixels.
func readCube(path, variable string) (*Cube, error) {
	ds, err := openVar(path, variable)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	st := ds.Structure()
	cube := NewCube(st.SizeY, st.SizeX, st.NBands)
	buf := make([]float64, st.SizeX*st.SizeY)
	for b, band := range ds.Bands() {
		if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			return nil, fmt.Errorf("failed to read %s band %d: %w", variable, b+1, err)
		}
		for r := 0; r < st.SizeY; r++ {
			for c := 0; c < st.SizeX; c++ {
				cube.Set(r, c, b, buf[r*st.SizeX+c])
			}
		}
	}
	return cube, nil
}

// readVector reads a 1-D netCDF variable (wavelengths etc.) regardless of
// whether GDAL presents it as a row or a column.
func readVector(path, variable string) ([]float64, error) {
	ds, err := openVar(path, variable)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	st := ds.Structure()
	buf := make([]float64, st.SizeX*st.SizeY)
	if err := ds.Bands()[0].Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", variable, err)
	}
	return buf, nil
}

// readGLT reads both lookup planes. NaN entries collapse to the no-data
// sentinel before integer conversion.
func readGLT(path string) (*GLT, error) {
	xs, err := readCube(path, "location/glt_x")
	if err != nil {
		return nil, err
	}
	ys, err := readCube(path, "location/glt_y")
	if err != nil {
		return nil, err
	}
	if xs.Rows != ys.Rows || xs.Cols != ys.Cols {
		return nil, fmt.Errorf("%w: glt_x is %dx%d but glt_y is %dx%d", ErrDataIntegrity, xs.Rows, xs.Cols, ys.Rows, ys.Cols)
	}
	glt := NewGLT(xs.Rows, xs.Cols)
	for i := range xs.Data {
		glt.X[i] = gltIndex(xs.Data[i])
		glt.Y[i] = gltIndex(ys.Data[i])
	}
	return glt, nil
}

func gltIndex(v float64) int {
	if math.IsNaN(v) {
		return GLTNodata
	}
	return int(math.Round(v))
}

// parseGeotransform parses the global geotransform attribute, which shows up
// as either a brace-wrapped comma list or a space-separated list depending on
// the writer.
func parseGeotransform(raw string) ([6]float64, error) {
	var gt [6]float64
	cleaned := strings.NewReplacer("{", " ", "}", " ", "[", " ", "]", " ", ",", " ").Replace(raw)
	fields := strings.Fields(cleaned)
	if len(fields) != 6 {
		return gt, fmt.Errorf("%w: geotransform %q has %d fields, want 6", ErrDataIntegrity, raw, len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return gt, fmt.Errorf("%w: geotransform field %q: %v", ErrDataIntegrity, f, err)
		}
		gt[i] = v
	}
	return gt, nil
}

func readGeotransform(path string) ([6]float64, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return [6]float64{}, fmt.Errorf("failed to open granule %s: %w", path, err)
	}
	defer ds.Close()

	raw := ds.Metadata("NC_GLOBAL#geotransform")
	if raw == "" {
		return [6]float64{}, fmt.Errorf("%w: granule %s carries no geotransform attribute", ErrDataIntegrity, path)
	}
	return parseGeotransform(raw)
}

// readScene materializes a whole granule: data variables, geolocation and band
// coordinates. Fill sentinels are left untouched; the loader owns masking.
func readScene(path, sourcePath string) (*Scene, error) {
	granule := GranuleID(sourcePath)
	family := FamilyForGranule(granule)

	s := &Scene{
		GranuleID: granule,
		Family:    family,
		Vars:      map[string]*Cube{},
	}

	vars, ok := familyVars[family.Marker]
	if !ok {
		vars = []string{"reflectance"}
	}
	for _, name := range vars {
		cube, err := readCube(path, name)
		if err != nil {
			return nil, err
		}
		s.Vars[name] = cube
	}

	var rows, cols int
	for _, v := range s.Vars {
		if rows == 0 {
			rows, cols = v.Rows, v.Cols
		} else if v.Rows != rows || v.Cols != cols {
			return nil, fmt.Errorf("%w: granule %s variables disagree on spatial dims", ErrDataIntegrity, granule)
		}
	}

	glt, err := readGLT(path)
	if err != nil {
		return nil, err
	}
	s.GLT = glt

	if s.Elevation, err = readCube(path, "location/elev"); err != nil {
		return nil, err
	}
	if s.Geotransform, err = readGeotransform(path); err != nil {
		return nil, err
	}

	switch family.BandVar {
	case "wavelengths":
		if s.Wavelengths, err = readVector(path, "sensor_band_parameters/wavelengths"); err != nil {
			return nil, err
		}
		if s.FWHM, err = readVector(path, "sensor_band_parameters/fwhm"); err != nil {
			return nil, err
		}
		if s.GoodWavelengths, err = readVector(path, "sensor_band_parameters/good_wavelengths"); err != nil {
			return nil, err
		}
	case "mask_bands":
		// GDAL's netCDF driver does not expose string variables, so the mask
		// band names come from the canonical table.
		s.BandNames = MaskFlagNames
	}

	return s, nil
}

// granuleSource is the lazy block reader behind a chunked scene. GDAL dataset
// handles are not safe for concurrent raster IO, so block reads serialize on
// the package mutex like every other GDAL access in the pipeline.
type granuleSource struct {
	ds    *godal.Dataset
	rows  int
	cols  int
	bands int

	qmask *Mask
	bmask *Cube
}

func openBlockSource(path, variable string) (*granuleSource, error) {
	ds, err := openVar(path, variable)
	if err != nil {
		return nil, err
	}
	st := ds.Structure()
	return &granuleSource{ds: ds, rows: st.SizeY, cols: st.SizeX, bands: st.NBands}, nil
}

func (g *granuleSource) Dims() (int, int, int) { return g.rows, g.cols, g.bands }

func (g *granuleSource) ReadBlock(row0, col0, rows, cols int) (*Cube, error) {
	if row0 < 0 || col0 < 0 || row0+rows > g.rows || col0+cols > g.cols {
		return nil, fmt.Errorf("block (%d,%d)+(%dx%d) outside granule %dx%d", row0, col0, rows, cols, g.rows, g.cols)
	}
	cube := NewCube(rows, cols, g.bands)
	buf := make([]float64, rows*cols)
	var readErr error
	utils.ExecuteWithMutex(func() {
		for b, band := range g.ds.Bands() {
			if err := band.Read(col0, row0, buf, cols, rows); err != nil {
				readErr = fmt.Errorf("failed to read block band %d: %w", b+1, err)
				return
			}
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					cube.Set(r, c, b, buf[r*cols+c])
				}
			}
		}
	})
	if readErr != nil {
		return nil, readErr
	}
	applyMasksInPlace(cube, row0, col0, g.qmask, g.bmask)
	return cube, nil
}

func (g *granuleSource) Close() error { return g.ds.Close() }

// applyMasksInPlace runs the loader's masking passes on a freshly read block:
// quality mask, then band mask, then fill sentinel to NaN. Offsets shift the
// masks into the block's window.
func applyMasksInPlace(cube *Cube, row0, col0 int, qmask *Mask, bmask *Cube) {
	nan := math.NaN()
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			px := cube.Pixel(r, c)
			if qmask != nil && qmask.At(row0+r, col0+c) == 1 {
				for b := range px {
					px[b] = nan
				}
				continue
			}
			if bmask != nil {
				bm := bmask.Pixel(row0+r, col0+c)
				for b := range px {
					if b < len(bm) && bm[b] == 1 {
						px[b] = nan
					}
				}
			}
			for b, v := range px {
				if v == FillValue {
					px[b] = nan
				}
			}
		}
	}
}
