package spectra

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/spectravue/emit-unmix/internal/emit"
)

// LoadPointsCSV reads a reference point table. Missing IDs are assigned by
// row index.
func LoadPointsCSV(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open points file %s: %w", path, err)
	}
	defer f.Close()

	var points []Point
	if err := gocsv.UnmarshalFile(f, &points); err != nil {
		return nil, fmt.Errorf("failed to parse points file %s: %w", path, err)
	}
	assignMissingIDs(points)
	return points, nil
}

// LoadPointsGeoJSON reads points from a GeoJSON feature collection. Polygon
// features contribute their centroid; the category comes from a "Category"
// property. IDs come from an "ID" property or the feature index.
func LoadPointsGeoJSON(path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read points file %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson %s: %w", path, err)
	}

	points := make([]Point, 0, len(fc.Features))
	for i, feat := range fc.Features {
		centroid, _ := planar.CentroidArea(feat.Geometry)
		p := Point{
			ID:        i,
			Longitude: centroid[0],
			Latitude:  centroid[1],
		}
		if v, ok := feat.Properties["Category"]; ok {
			p.Category = fmt.Sprintf("%v", v)
		}
		if v, ok := feat.Properties["ID"]; ok {
			if id, ok := v.(float64); ok {
				p.ID = int(id)
			}
		}
		points = append(points, p)
	}
	return points, nil
}

func assignMissingIDs(points []Point) {
	allZero := true
	for _, p := range points {
		if p.ID != 0 {
			allZero = false
			break
		}
	}
	if !allZero || len(points) < 2 {
		return
	}
	for i := range points {
		points[i].ID = i
	}
}

// WriteWideCSV writes the reference library in wide form: Category, one
// column per wavelength, then ID, Latitude, Longitude. The header is dynamic
// so this writer uses encoding/csv directly.
func WriteWideCSV(path string, records []SpectralRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no records to write", emit.ErrValidation)
	}
	wavelengths := records[0].Wavelengths
	for _, rec := range records[1:] {
		if len(rec.Reflectance) != len(wavelengths) {
			return fmt.Errorf("%w: record %d has %d bands, expected %d", emit.ErrValidation, rec.ID, len(rec.Reflectance), len(wavelengths))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := []string{"Category"}
	for _, wl := range wavelengths {
		header = append(header, strconv.FormatFloat(wl, 'f', -1, 64))
	}
	header = append(header, "ID", "Latitude", "Longitude")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{rec.Category}
		for _, v := range rec.Reflectance {
			row = append(row, formatSample(v))
		}
		row = append(row,
			strconv.Itoa(rec.ID),
			strconv.FormatFloat(rec.Latitude, 'f', -1, 64),
			strconv.FormatFloat(rec.Longitude, 'f', -1, 64),
		)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadWideCSV reads the wide reference library back into records. Columns
// after the wavelengths (ID, Latitude, Longitude) are optional so mixer input
// can be a plain feature table.
func ReadWideCSV(path string) ([]SpectralRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s holds no data rows", emit.ErrValidation, path)
	}

	header := rows[0]
	if len(header) < 2 || header[0] != "Category" {
		return nil, fmt.Errorf("%w: %s does not start with a Category column", emit.ErrValidation, path)
	}
	trailing := map[string]int{}
	var wavelengths []float64
	for i, name := range header[1:] {
		wl, err := strconv.ParseFloat(name, 64)
		if err != nil {
			trailing[name] = i + 1
			continue
		}
		if len(trailing) > 0 {
			return nil, fmt.Errorf("%w: wavelength column %q after trailing metadata", emit.ErrValidation, name)
		}
		wavelengths = append(wavelengths, wl)
	}

	records := make([]SpectralRecord, 0, len(rows)-1)
	for ri, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", emit.ErrValidation, ri+2, len(row), len(header))
		}
		rec := SpectralRecord{ID: ri, Category: row[0], Wavelengths: wavelengths}
		rec.Reflectance = make([]float64, len(wavelengths))
		for i := range wavelengths {
			v, err := parseSample(row[1+i])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", emit.ErrValidation, ri+2, header[1+i], err)
			}
			rec.Reflectance[i] = v
		}
		if c, ok := trailing["ID"]; ok {
			if id, err := strconv.Atoi(row[c]); err == nil {
				rec.ID = id
			}
		}
		if c, ok := trailing["Latitude"]; ok {
			rec.Latitude, _ = strconv.ParseFloat(row[c], 64)
		}
		if c, ok := trailing["Longitude"]; ok {
			rec.Longitude, _ = strconv.ParseFloat(row[c], 64)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteSyntheticCSV writes mixtures in wide form: one column per feature
// wavelength followed by one proportion column per class, classes sorted by
// name already by the mixer.
func WriteSyntheticCSV(path string, wavelengths []float64, records []SyntheticRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no synthetic records to write", emit.ErrValidation)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := make([]string, 0, len(records[0].Features)+len(records[0].ClassNames))
	for i := range records[0].Features {
		if i < len(wavelengths) {
			header = append(header, strconv.FormatFloat(wavelengths[i], 'f', -1, 64))
		} else {
			header = append(header, fmt.Sprintf("band_%d", i))
		}
	}
	header = append(header, records[0].ClassNames...)
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := make([]string, 0, len(header))
		for _, v := range rec.Features {
			row = append(row, formatSample(v))
		}
		for _, v := range rec.Labels {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatSample(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseSample(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
