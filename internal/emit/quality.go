package emit

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// Mask is a binary spatial mask aligned to a scene's sensor grid. 1 means the
// pixel is excluded, 0 means keep.
type Mask struct {
	Rows int
	Cols int
	Data []uint8
}

func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Data: make([]uint8, rows*cols)}
}

func (m *Mask) At(row, col int) uint8 { return m.Data[row*m.Cols+col] }

// Block copies the window's region of the mask, so a full-grid mask can follow
// a scene through Crop and stay aligned with it.
func (m *Mask) Block(w Window) (*Mask, error) {
	if w.Rows <= 0 || w.Cols <= 0 || w.Row0 < 0 || w.Col0 < 0 ||
		w.Row0+w.Rows > m.Rows || w.Col0+w.Cols > m.Cols {
		return nil, fmt.Errorf("%w: window %dx%d at (%d,%d) outside %dx%d mask", ErrValidation, w.Rows, w.Cols, w.Row0, w.Col0, m.Rows, m.Cols)
	}
	out := NewMask(w.Rows, w.Cols)
	for r := 0; r < w.Rows; r++ {
		src := (w.Row0+r)*m.Cols + w.Col0
		copy(out.Data[r*w.Cols:(r+1)*w.Cols], m.Data[src:src+w.Cols])
	}
	return out, nil
}

// BuildQualityMask collapses the selected quality-flag planes of an L2A mask
// scene into one binary mask: a pixel is masked when any selected flag fires,
// never counted. Bands 5 and 6 hold data (AOD550, water vapor) and are
// rejected.
func BuildQualityMask(mask *Scene, flagIndices []int) (*Mask, error) {
	cube, ok := mask.Vars["mask"]
	if !ok {
		return nil, fmt.Errorf("%w: scene %s has no mask variable", ErrDataIntegrity, mask.GranuleID)
	}

	used := make([]string, 0, len(flagIndices))
	for _, f := range flagIndices {
		if reservedDataBands[f] {
			return nil, fmt.Errorf("%w: flag indices include a data band (5 or 6), not just flag bands", ErrValidation)
		}
		if f < 0 || f >= cube.Bands {
			return nil, fmt.Errorf("%w: flag index %d outside %d mask bands", ErrValidation, f, cube.Bands)
		}
		if f < len(MaskFlagNames) {
			used = append(used, MaskFlagNames[f])
		}
	}
	log.Infof("quality mask flags used: %v", used)

	out := NewMask(cube.Rows, cube.Cols)
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			px := cube.Pixel(r, c)
			sum := 0.0
			for _, f := range flagIndices {
				if v := px[f]; !math.IsNaN(v) {
					sum += v
				}
			}
			if sum >= 1 {
				out.Data[r*out.Cols+c] = 1
			}
		}
	}
	return out, nil
}

// spectralChannels is the number of usable channels after unpacking the packed
// band mask; the trailing pad bits of the last byte are discarded.
const spectralChannels = 285

// BuildBandMask unpacks the bit-packed band_mask variable of an L2A mask scene
// into a per-pixel, per-band cube of 0/1 values, truncated to the spectral
// channel count. Bits unpack most-significant first, matching the packed
// layout.
func BuildBandMask(mask *Scene) (*Cube, error) {
	packed, ok := mask.Vars["band_mask"]
	if !ok {
		return nil, fmt.Errorf("%w: scene %s has no band_mask variable", ErrDataIntegrity, mask.GranuleID)
	}
	if packed.Bands*8 < spectralChannels {
		return nil, fmt.Errorf("%w: band_mask packs %d bits, need %d", ErrDataIntegrity, packed.Bands*8, spectralChannels)
	}

	out := NewCube(packed.Rows, packed.Cols, spectralChannels)
	for r := 0; r < packed.Rows; r++ {
		for c := 0; c < packed.Cols; c++ {
			src := packed.Pixel(r, c)
			dst := out.Pixel(r, c)
			for b := 0; b < spectralChannels; b++ {
				byteVal := uint8(src[b/8])
				if byteVal&(1<<(7-uint(b%8))) != 0 {
					dst[b] = 1
				}
			}
		}
	}
	return out, nil
}
