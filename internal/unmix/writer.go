package unmix

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/emit"
	"github.com/spectravue/emit-unmix/internal/utils"
)

// WriteAbundanceGeoTIFF orthorectifies a sensor-space abundance cube with the
// scene's GLT and writes it as an 8-bit GeoTIFF, one band per class, no-data
// 255, EPSG:4326. Both the -9999 result sentinel and geographic cells with no
// sensor pixel behind them collapse to 255.
func WriteAbundanceGeoTIFF(path string, s *emit.Scene, abundance *emit.Cube, classNames []string) error {
	if s.GLT == nil {
		return fmt.Errorf("%w: scene %s carries no GLT", emit.ErrDataIntegrity, s.GranuleID)
	}
	if len(classNames) != abundance.Bands {
		return fmt.Errorf("%w: %d class names for %d bands", emit.ErrValidation, len(classNames), abundance.Bands)
	}

	ortho := emit.ApplyGLT(abundance, s.GLT, emit.FillValue)
	log.Debugf("writing %dx%dx%d abundance raster to %s", ortho.Rows, ortho.Cols, ortho.Bands, path)

	var writeErr error
	utils.ExecuteWithMutex(func() {
		writeErr = writeByteRaster(path, ortho, s.Geotransform, classNames)
	})
	if writeErr != nil {
		return fmt.Errorf("failed to write abundance raster %s: %w", path, writeErr)
	}
	return nil
}

func writeByteRaster(path string, cube *emit.Cube, gt [6]float64, classNames []string) error {
	ds, err := godal.Create(godal.GTiff, path, cube.Bands, godal.Byte, cube.Cols, cube.Rows)
	if err != nil {
		return err
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(gt); err != nil {
		return err
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return err
	}

	buf := make([]byte, cube.Rows*cube.Cols)
	for b, band := range ds.Bands() {
		if err := band.SetNoData(emit.ByteNodata); err != nil {
			return err
		}
		if err := ds.SetMetadata(fmt.Sprintf("CLASS_%d", b+1), classNames[b]); err != nil {
			return err
		}
		for r := 0; r < cube.Rows; r++ {
			for c := 0; c < cube.Cols; c++ {
				buf[r*cube.Cols+c] = encodeByte(cube.At(r, c, b))
			}
		}
		if err := band.Write(0, 0, buf, cube.Cols, cube.Rows); err != nil {
			return err
		}
	}
	return nil
}

// encodeByte narrows an abundance value to the 8-bit product encoding. The
// model output is already clipped to [0,100]; anything non-finite or carrying
// a fill sentinel becomes the byte no-data value.
func encodeByte(v float64) byte {
	if math.IsNaN(v) || v == emit.FillValue || v == MaskedValue {
		return emit.ByteNodata
	}
	if v < 0 {
		return emit.ByteNodata
	}
	return byte(math.Round(v))
}

// WriteGLTGeoTIFF exports a scene's raw lookup table as a 2-band int32
// GeoTIFF (glt_x, glt_y). Orthorectified scenes no longer carry a meaningful
// sensor-space GLT, so the export is rejected outright.
func WriteGLTGeoTIFF(path string, s *emit.Scene) error {
	if s.Orthorectified {
		return fmt.Errorf("%w: scene %s is orthorectified, raw GLT export is not meaningful", emit.ErrState, s.GranuleID)
	}
	if s.GLT == nil {
		return fmt.Errorf("%w: scene %s carries no GLT", emit.ErrDataIntegrity, s.GranuleID)
	}

	glt := s.GLT
	var writeErr error
	utils.ExecuteWithMutex(func() {
		writeErr = func() error {
			ds, err := godal.Create(godal.GTiff, path, 2, godal.Int32, glt.Cols, glt.Rows)
			if err != nil {
				return err
			}
			defer ds.Close()

			if err := ds.SetGeoTransform(s.Geotransform); err != nil {
				return err
			}
			sr, err := godal.NewSpatialRefFromEPSG(4326)
			if err != nil {
				return err
			}
			defer sr.Close()
			if err := ds.SetSpatialRef(sr); err != nil {
				return err
			}

			buf := make([]int32, glt.Rows*glt.Cols)
			planes := [][]int{glt.X, glt.Y}
			for b, band := range ds.Bands() {
				if err := band.SetNoData(emit.GLTNodata); err != nil {
					return err
				}
				for i, v := range planes[b] {
					buf[i] = int32(v)
				}
				if err := band.Write(0, 0, buf, glt.Cols, glt.Rows); err != nil {
					return err
				}
			}
			return nil
		}()
	})
	if writeErr != nil {
		return fmt.Errorf("failed to write glt raster %s: %w", path, writeErr)
	}
	return nil
}
