package emit

import (
	"fmt"
	"math"
)

// ChunkSpec asks the loader for a lazily evaluated scene read in spatial
// blocks of roughly the given size. Chunked scenes cannot be orthorectified.
type ChunkSpec struct {
	Downtrack  int
	Crosstrack int
}

// LoadOptions drive a granule load. QualityMask and BandMask are independent
// optional passes, applied in that order before fill-sentinel replacement.
type LoadOptions struct {
	// Orthorectify resamples the scene to geographic space before returning.
	Orthorectify bool
	// SourcePath is the path the granule originally came from (s3 URL, http
	// URL or local path); the granule ID is parsed from it. Defaults to the
	// local path being read.
	SourcePath string

	QualityMask *Mask
	BandMask    *Cube

	Chunk *ChunkSpec
}

// Load opens an EMIT granule from a local file and returns it as a scene.
// With a chunk spec the data variable stays on disk and is served block-wise;
// chunking and orthorectification are mutually exclusive because the GLT
// remap needs random access over the full grid.
func Load(path string, opts LoadOptions) (*Scene, error) {
	if opts.Chunk != nil && opts.Orthorectify {
		return nil, fmt.Errorf("%w: cannot orthorectify a chunked scene", ErrConfiguration)
	}
	sourcePath := opts.SourcePath
	if sourcePath == "" {
		sourcePath = path
	}

	if opts.Chunk != nil {
		return loadChunked(path, sourcePath, opts)
	}

	s, err := readScene(path, sourcePath)
	if err != nil {
		return nil, err
	}

	for name, cube := range s.Vars {
		masked := cube
		if opts.QualityMask != nil {
			masked, err = ApplyQualityMask(masked, opts.QualityMask)
			if err != nil {
				return nil, err
			}
		}
		if opts.BandMask != nil {
			masked, err = ApplyBandMask(masked, opts.BandMask)
			if err != nil {
				return nil, err
			}
		}
		s.Vars[name] = ReplaceFill(masked, FillValue)
	}

	if opts.Orthorectify {
		ortho, err := Orthorectify(s)
		if err != nil {
			return nil, err
		}
		return ortho, nil
	}
	return s, nil
}

// loadChunked builds a lazy scene: geolocation and band coordinates are
// materialized, the primary variable is read block-wise with the masking
// passes applied per block.
func loadChunked(path, sourcePath string, opts LoadOptions) (*Scene, error) {
	granule := GranuleID(sourcePath)
	family := FamilyForGranule(granule)

	vars, ok := familyVars[family.Marker]
	if !ok {
		vars = []string{"reflectance"}
	}
	src, err := openBlockSource(path, vars[0])
	if err != nil {
		return nil, err
	}
	src.qmask = opts.QualityMask
	src.bmask = opts.BandMask

	s := &Scene{
		GranuleID: granule,
		Family:    family,
		Vars:      map[string]*Cube{},
		chunked:   src,
	}
	if s.GLT, err = readGLT(path); err != nil {
		src.Close()
		return nil, err
	}
	if s.Elevation, err = readCube(path, "location/elev"); err != nil {
		src.Close()
		return nil, err
	}
	if s.Geotransform, err = readGeotransform(path); err != nil {
		src.Close()
		return nil, err
	}
	if family.BandVar == "wavelengths" {
		if s.Wavelengths, err = readVector(path, "sensor_band_parameters/wavelengths"); err != nil {
			src.Close()
			return nil, err
		}
		if s.GoodWavelengths, err = readVector(path, "sensor_band_parameters/good_wavelengths"); err != nil {
			src.Close()
			return nil, err
		}
	}
	return s, nil
}

// ApplyQualityMask returns a copy of the cube with every masked pixel's
// spectrum set to NaN. The source cube is left untouched so it can feed
// further orthorectification or crop calls.
func ApplyQualityMask(cube *Cube, mask *Mask) (*Cube, error) {
	if mask.Rows != cube.Rows || mask.Cols != cube.Cols {
		return nil, fmt.Errorf("%w: quality mask is %dx%d but grid is %dx%d", ErrValidation, mask.Rows, mask.Cols, cube.Rows, cube.Cols)
	}
	out := cube.Clone()
	nan := math.NaN()
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			if mask.At(r, c) == 1 {
				px := out.Pixel(r, c)
				for b := range px {
					px[b] = nan
				}
			}
		}
	}
	return out, nil
}

// ApplyBandMask returns a copy of the cube with per-band masked samples set to
// NaN. Band masks narrower than the cube's band axis leave trailing bands
// untouched.
func ApplyBandMask(cube *Cube, bmask *Cube) (*Cube, error) {
	if bmask.Rows != cube.Rows || bmask.Cols != cube.Cols {
		return nil, fmt.Errorf("%w: band mask is %dx%d but grid is %dx%d", ErrValidation, bmask.Rows, bmask.Cols, cube.Rows, cube.Cols)
	}
	out := cube.Clone()
	nan := math.NaN()
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			bm := bmask.Pixel(r, c)
			px := out.Pixel(r, c)
			for b := range px {
				if b < len(bm) && bm[b] == 1 {
					px[b] = nan
				}
			}
		}
	}
	return out, nil
}

// ReplaceFill returns a copy of the cube with the fill sentinel replaced by NaN.
func ReplaceFill(cube *Cube, fill float64) *Cube {
	out := cube.Clone()
	nan := math.NaN()
	for i, v := range out.Data {
		if v == fill {
			out.Data[i] = nan
		}
	}
	return out
}
