package unmix

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/emit"
	"github.com/spectravue/emit-unmix/internal/model"
)

// MaskedValue overwrites predictions on quality-masked pixels, regardless of
// what the model produced there.
const MaskedValue = -9999.0

// Engine runs a per-pixel regression model over a scene in spatial tiles.
// Tiles are independent: each reads its own block and writes a disjoint slice
// of the output, so the pool needs no synchronization beyond the final join.
type Engine struct {
	TileRows int
	TileCols int
	Workers  int
}

func NewEngine() *Engine {
	return &Engine{TileRows: 100, TileCols: 100, Workers: runtime.NumCPU()}
}

// Predict applies the model to every pixel and returns an abundance cube
// shaped (downtrack, crosstrack, classes) in sensor geometry. Model input per
// pixel is the good-wavelength channels minus the final one, NaN replaced by
// zero; output is clipped to [0,100]. Quality-masked pixels are overwritten
// with the -9999 sentinel across all classes.
func (e *Engine) Predict(s *emit.Scene, m model.Predictor, classNames []string, qmask *emit.Mask) (*emit.Cube, error) {
	rows, cols, bands := s.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: scene %s has no pixels", emit.ErrValidation, s.GranuleID)
	}
	classes := m.NumOutputs()
	if len(classNames) != classes {
		return nil, fmt.Errorf("%w: model predicts %d classes but %d names given", emit.ErrValidation, classes, len(classNames))
	}
	if qmask != nil && (qmask.Rows != rows || qmask.Cols != cols) {
		return nil, fmt.Errorf("%w: quality mask is %dx%d but grid is %dx%d", emit.ErrValidation, qmask.Rows, qmask.Cols, rows, cols)
	}

	// The final spectral channel is excluded from model input by convention.
	featureBands := featureIndices(s, bands)
	if len(featureBands) == 0 {
		return nil, fmt.Errorf("%w: no usable spectral channels in scene %s", emit.ErrValidation, s.GranuleID)
	}
	log.Debugf("inference over %dx%d pixels, %d feature channels, %d classes", rows, cols, len(featureBands), classes)

	varName := s.PrimaryVar()
	out := emit.NewCube(rows, cols, classes)

	tiles := tilePartition(rows, cols, e.TileRows, e.TileCols)
	var (
		mu          sync.Mutex
		progressBar = progressbar.Default(int64(len(tiles)), "Predicting tiles")
	)

	wp := workerpool.New(e.Workers)
	errChan := make(chan error, 1)
	var stopProcessing sync.Once

	for _, tl := range tiles {
		tl := tl
		wp.Submit(func() {
			block, err := s.ReadBlock(varName, tl.row0, tl.col0, tl.rows, tl.cols)
			if err != nil {
				stopProcessing.Do(func() { errChan <- err })
				return
			}
			if err := predictTile(block, tl, featureBands, m, out); err != nil {
				stopProcessing.Do(func() { errChan <- err })
				return
			}
			mu.Lock()
			progressBar.Add(1)
			mu.Unlock()
		})
	}

	go func() {
		wp.StopWait()
		close(errChan)
	}()
	if err := <-errChan; err != nil {
		progressBar.Exit()
		return nil, fmt.Errorf("tiled inference failed: %w", err)
	}
	progressBar.Finish()

	if qmask != nil {
		applyResultMask(out, qmask)
	}
	return out, nil
}

type tile struct {
	row0, col0 int
	rows, cols int
}

func tilePartition(rows, cols, tileRows, tileCols int) []tile {
	var tiles []tile
	for r := 0; r < rows; r += tileRows {
		for c := 0; c < cols; c += tileCols {
			tiles = append(tiles, tile{
				row0: r,
				col0: c,
				rows: min(tileRows, rows-r),
				cols: min(tileCols, cols-c),
			})
		}
	}
	return tiles
}

// featureIndices selects the model input channels: the good-wavelength bands
// with the last one dropped.
func featureIndices(s *emit.Scene, bands int) []int {
	good := s.GoodBandIndices()
	if len(good) > bands {
		good = good[:bands]
	}
	if len(good) == 0 {
		return nil
	}
	return good[:len(good)-1]
}

// predictTile flattens one spatial block into feature rows, runs the model
// and writes the clipped result into the tile's slice of the output cube.
func predictTile(block *emit.Cube, tl tile, featureBands []int, m model.Predictor, out *emit.Cube) error {
	features := make([][]float64, 0, tl.rows*tl.cols)
	for r := 0; r < tl.rows; r++ {
		for c := 0; c < tl.cols; c++ {
			px := block.Pixel(r, c)
			feat := make([]float64, len(featureBands))
			for i, b := range featureBands {
				if v := px[b]; !math.IsNaN(v) {
					feat[i] = v
				}
			}
			features = append(features, feat)
		}
	}

	pred, err := m.Predict(features)
	if err != nil {
		return err
	}
	if len(pred) != len(features) {
		return fmt.Errorf("%w: model returned %d rows for %d inputs", emit.ErrDataIntegrity, len(pred), len(features))
	}

	classes := out.Bands
	for r := 0; r < tl.rows; r++ {
		for c := 0; c < tl.cols; c++ {
			row := pred[r*tl.cols+c]
			dst := out.Pixel(tl.row0+r, tl.col0+c)
			for k := 0; k < classes; k++ {
				dst[k] = clip(row[k], 0, 100)
			}
		}
	}
	return nil
}

func applyResultMask(out *emit.Cube, qmask *emit.Mask) {
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			if qmask.At(r, c) != 1 {
				continue
			}
			px := out.Pixel(r, c)
			for k := range px {
				px[k] = MaskedValue
			}
		}
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
