package emit

import (
	"path/filepath"
	"strings"
)

// ProductFamily selects which band coordinate variable a granule carries.
type ProductFamily struct {
	Marker  string
	BandVar string
}

// productFamilies maps granule-ID markers to the band coordinate variable of
// that product. Order matters: the first marker found in the granule ID wins,
// so L2B_MINUNC granules (no band variable at all) must be tested before the
// L2B_MIN_ marker would match them.
var productFamilies = []ProductFamily{
	{Marker: "L2B_MINUNC", BandVar: ""},
	{Marker: "L2B_MIN_", BandVar: "mineral_name"},
	{Marker: "L2A_MASK_", BandVar: "mask_bands"},
	{Marker: "L1B_OBS_", BandVar: "observation_bands"},
	{Marker: "L2A_RFL_", BandVar: "wavelengths"},
	{Marker: "L1B_RAD_", BandVar: "wavelengths"},
	{Marker: "L2A_RFLUNCERT_", BandVar: "wavelengths"},
}

// FamilyForGranule resolves the product family from a granule ID. The empty
// family (no band variable) is returned when no marker matches.
func FamilyForGranule(granuleID string) ProductFamily {
	for _, f := range productFamilies {
		if strings.Contains(granuleID, f.Marker) {
			return f
		}
	}
	return ProductFamily{}
}

// GranuleID derives the granule identifier from a source path, whether that
// path came from local disk, HTTP or object storage. Callers resolve the
// source path once via their store handle before invoking the loader.
func GranuleID(sourcePath string) string {
	base := filepath.Base(strings.ReplaceAll(sourcePath, "\\", "/"))
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// MaskFlagNames is the canonical band ordering of the L2A mask product. Bands
// 5 and 6 hold physical data, not quality flags, and may not be used to build
// a quality mask.
var MaskFlagNames = []string{
	"Cloud flag",
	"Cirrus flag",
	"Water flag",
	"Spacecraft Flag",
	"Dilated Cloud Flag",
	"AOD550",
	"H2O (g cm-2)",
	"Aggregate Flag",
}

var reservedDataBands = map[int]bool{5: true, 6: true}
