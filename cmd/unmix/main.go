package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/emit"
	"github.com/spectravue/emit-unmix/internal/model"
	"github.com/spectravue/emit-unmix/internal/notification"
	"github.com/spectravue/emit-unmix/internal/properties"
	"github.com/spectravue/emit-unmix/internal/storage"
	"github.com/spectravue/emit-unmix/internal/unmix"
)

type options struct {
	fURL      string
	fMaskURL  string
	modelPath string
	classes   string
	shapePath string
	outDir    string
	flagList  string
	provider  string
	chunkSize int
	bandMask  bool
	exportGLT bool
}

func main() {
	var opts options
	flag.StringVar(&opts.fURL, "f-url", "", "EMIT reflectance granule (s3 url or local path)")
	flag.StringVar(&opts.fMaskURL, "f-mask-url", "", "EMIT mask granule (s3 url or local path)")
	flag.StringVar(&opts.modelPath, "model", "models/best_xgb_model.json", "serialized regression model")
	flag.StringVar(&opts.classes, "classes", "data/classes.json", "class names file")
	flag.StringVar(&opts.shapePath, "shape", "", "optional GeoJSON polygon to crop to")
	flag.StringVar(&opts.outDir, "out", "data/unmixed", "output directory")
	flag.StringVar(&opts.flagList, "flags", "7", "comma separated quality flag indices")
	flag.StringVar(&opts.provider, "provider", storage.DefaultProvider, "credential provider name or endpoint url")
	flag.IntVar(&opts.chunkSize, "chunk", 100, "spatial chunk size for lazy reads")
	flag.BoolVar(&opts.bandMask, "band-mask", false, "also exclude per-band samples flagged in the packed band mask")
	flag.BoolVar(&opts.exportGLT, "export-glt", false, "also write the raw lookup table as a GeoTIFF")
	logLevel := flag.String("log", "info", "log level (debug|info|warn|error)")
	flag.Parse()

	setupLogging(*logLevel)
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}
	godal.RegisterAll()

	if opts.fURL == "" || opts.fMaskURL == "" {
		log.Fatal("both --f-url and --f-mask-url are required")
	}

	if err := run(opts); err != nil {
		if properties.DiscordErrorNotificationUrl() != "" {
			if nerr := notification.SendDiscordErrorNotification(err.Error()); nerr != nil {
				log.Warnf("failed to send error notification: %v", nerr)
			}
		}
		log.Fatal(err)
	}
	if properties.DiscordSuccessNotificationUrl() != "" {
		if err := notification.SendDiscordSuccessNotification(fmt.Sprintf("unmixed %s", emit.GranuleID(opts.fURL))); err != nil {
			log.Warnf("failed to send success notification: %v", err)
		}
	}
}

func run(opts options) error {
	flags, err := parseFlagIndices(opts.flagList)
	if err != nil {
		return err
	}
	classNames, err := loadClassNames(opts.classes)
	if err != nil {
		return err
	}

	log.Info("loading regression model")
	predictor, err := model.LoadXGBRegressor(opts.modelPath)
	if err != nil {
		return err
	}
	if predictor.NumOutputs() != len(classNames) {
		return fmt.Errorf("%w: model predicts %d classes but %s names %d", emit.ErrConfiguration, predictor.NumOutputs(), opts.classes, len(classNames))
	}

	var credProvider *storage.CredentialProvider
	if strings.HasPrefix(opts.fURL, "s3://") || strings.HasPrefix(opts.fMaskURL, "s3://") {
		credProvider, err = storage.NewCredentialProvider(opts.provider, properties.EarthdataToken())
		if err != nil {
			return err
		}
	}
	store, err := storage.ForRef(opts.fURL, credProvider)
	if err != nil {
		return err
	}
	maskStore, err := storage.ForRef(opts.fMaskURL, credProvider)
	if err != nil {
		return err
	}

	log.Info("fetching granules")
	localGranule, err := store.Fetch(opts.fURL)
	if err != nil {
		return err
	}
	localMask, err := maskStore.Fetch(opts.fMaskURL)
	if err != nil {
		return err
	}

	log.Info("building quality mask")
	maskScene, err := emit.Load(localMask, emit.LoadOptions{SourcePath: maskStore.SourcePath(opts.fMaskURL)})
	if err != nil {
		return err
	}
	qmask, err := emit.BuildQualityMask(maskScene, flags)
	if err != nil {
		return err
	}

	log.Info("loading granule")
	loadOpts := emit.LoadOptions{SourcePath: store.SourcePath(opts.fURL)}
	if opts.bandMask {
		bmask, err := emit.BuildBandMask(maskScene)
		if err != nil {
			return err
		}
		loadOpts.BandMask = bmask
	}
	// Cropping needs a materialized scene, so chunked reads only apply when no
	// shape is given.
	if opts.shapePath == "" {
		loadOpts.Chunk = &emit.ChunkSpec{Downtrack: opts.chunkSize, Crosstrack: opts.chunkSize}
	}
	scene, err := emit.Load(localGranule, loadOpts)
	if err != nil {
		return err
	}
	defer scene.Close()

	engineMask := qmask
	if opts.shapePath != "" {
		shape, err := loadShape(opts.shapePath)
		if err != nil {
			return err
		}
		log.Info("cropping to shape")
		cropped, win, err := emit.Crop(scene, shape)
		if err != nil {
			return err
		}
		scene = cropped
		// The full-grid mask must follow the scene into the crop window so
		// masked pixels still come out as the -9999 sentinel.
		engineMask, err = qmask.Block(win)
		if err != nil {
			return err
		}
	}

	log.Info("running tiled inference")
	engine := unmix.NewEngine()
	engine.TileRows, engine.TileCols = opts.chunkSize, opts.chunkSize
	abundance, err := engine.Predict(scene, predictor, classNames, engineMask)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out := filepath.Join(opts.outDir, fmt.Sprintf("unmixed_%s.tiff", scene.GranuleID))
	log.Infof("writing %s", out)
	if err := unmix.WriteAbundanceGeoTIFF(out, scene, abundance, classNames); err != nil {
		return err
	}
	if opts.exportGLT {
		gltOut := filepath.Join(opts.outDir, fmt.Sprintf("glt_%s.tiff", scene.GranuleID))
		if err := unmix.WriteGLTGeoTIFF(gltOut, scene); err != nil {
			return err
		}
	}
	log.Info("success")
	return nil
}

func setupLogging(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("invalid log level: %s", level)
	}
	log.SetLevel(parsed)
}

func parseFlagIndices(list string) ([]int, error) {
	var flags []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid flag index %q: %w", part, err)
		}
		flags = append(flags, v)
	}
	return flags, nil
}

// loadClassNames reads the class list, either a JSON array of names or an
// object whose keys are the names (keys sorted for a stable band order).
func loadClassNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class names %s: %w", path, err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		return names, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse class names %s: %w", path, err)
	}
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func loadShape(path string) (orb.MultiPolygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shape %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse shape %s: %w", path, err)
	}
	var shape orb.MultiPolygon
	for _, feat := range fc.Features {
		switch g := feat.Geometry.(type) {
		case orb.Polygon:
			shape = append(shape, g)
		case orb.MultiPolygon:
			shape = append(shape, g...)
		}
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: %s contains no polygon features", emit.ErrValidation, path)
	}
	return shape, nil
}
