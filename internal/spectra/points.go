package spectra

import (
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/emit"
)

// Point is one reference location to sample. IDs must be unique within a batch.
type Point struct {
	ID        int     `csv:"ID"`
	Category  string  `csv:"Category"`
	Latitude  float64 `csv:"Latitude"`
	Longitude float64 `csv:"Longitude"`
}

// SpectralRecord is one point's sampled spectrum, joined with its category by
// ID. Reflectance is aligned to the scene's wavelength vector and keeps NaN
// where the pixel carried no data; dropping all-NaN records is an explicit
// downstream step, never done here.
type SpectralRecord struct {
	ID          int
	Category    string
	Latitude    float64
	Longitude   float64
	Wavelengths []float64
	Reflectance []float64
}

// residualFill is a leftover sensor sentinel that survives fill masking in
// some granules; exact matches are normalized to zero reflectance.
const residualFill = -0.1

// ExtractPoints samples an orthorectified scene at each point by
// nearest-neighbor lookup against the geographic coordinate vectors. Ties on
// distance resolve to the lower index.
func ExtractPoints(s *emit.Scene, points []Point) ([]SpectralRecord, error) {
	if !s.Orthorectified {
		return nil, fmt.Errorf("%w: point extraction needs an orthorectified scene, got sensor geometry", emit.ErrState)
	}
	cube, ok := s.Vars["reflectance"]
	if !ok {
		return nil, fmt.Errorf("%w: scene %s has no reflectance variable", emit.ErrDataIntegrity, s.GranuleID)
	}
	if len(s.Latitude) != cube.Rows || len(s.Longitude) != cube.Cols {
		return nil, fmt.Errorf("%w: coordinate vectors do not match grid %dx%d", emit.ErrDataIntegrity, cube.Rows, cube.Cols)
	}

	records := make([]SpectralRecord, 0, len(points))
	for _, p := range points {
		row := nearestIndex(s.Latitude, p.Latitude)
		col := nearestIndex(s.Longitude, p.Longitude)

		refl := make([]float64, cube.Bands)
		copy(refl, cube.Pixel(row, col))
		for i, v := range refl {
			if v == residualFill {
				refl[i] = 0
			}
		}

		log.Debugf("point %d (%s) at (%.5f, %.5f) -> cell (%d, %d)", p.ID, p.Category, p.Latitude, p.Longitude, row, col)
		records = append(records, SpectralRecord{
			ID:          p.ID,
			Category:    p.Category,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			Wavelengths: s.Wavelengths,
			Reflectance: refl,
		})
	}
	return records, nil
}

// nearestIndex finds the coordinate closest to target in a monotonic vector,
// ascending or descending. Equidistant neighbors resolve to the lower index.
func nearestIndex(coords []float64, target float64) int {
	n := len(coords)
	if n == 1 {
		return 0
	}
	ascending := coords[0] < coords[n-1]

	i := sort.Search(n, func(i int) bool {
		if ascending {
			return coords[i] >= target
		}
		return coords[i] <= target
	})
	if i == 0 {
		return 0
	}
	if i == n {
		return n - 1
	}
	if math.Abs(coords[i-1]-target) <= math.Abs(coords[i]-target) {
		return i - 1
	}
	return i
}

// FilterBands keeps only the listed band indices of every record, in order.
// Used to drop channels whose good_wavelengths flag is not set.
func FilterBands(records []SpectralRecord, keep []int) []SpectralRecord {
	out := make([]SpectralRecord, len(records))
	for i, rec := range records {
		wl := make([]float64, 0, len(keep))
		refl := make([]float64, 0, len(keep))
		for _, b := range keep {
			if b < len(rec.Reflectance) {
				refl = append(refl, rec.Reflectance[b])
			}
			if b < len(rec.Wavelengths) {
				wl = append(wl, rec.Wavelengths[b])
			}
		}
		out[i] = rec
		out[i].Wavelengths = wl
		out[i].Reflectance = refl
	}
	return out
}

// DropEmpty removes records whose spectrum is entirely NaN. This is the final
// cleanup stage run once per pipeline, after all granules contributed.
func DropEmpty(records []SpectralRecord) []SpectralRecord {
	out := records[:0:0]
	for _, rec := range records {
		empty := true
		for _, v := range rec.Reflectance {
			if !math.IsNaN(v) {
				empty = false
				break
			}
		}
		if empty {
			log.Warnf("dropping point %d (%s): spectrum is entirely no-data", rec.ID, rec.Category)
			continue
		}
		out = append(out, rec)
	}
	return out
}
