package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/emit"
	"github.com/spectravue/emit-unmix/internal/properties"
	"github.com/spectravue/emit-unmix/internal/spectra"
	"github.com/spectravue/emit-unmix/internal/storage"
)

func main() {
	fURLs := flag.String("f-urls", "", "comma separated EMIT reflectance granules (s3 urls or local paths)")
	fMaskURLs := flag.String("f-mask-urls", "", "comma separated EMIT mask granules, aligned with --f-urls")
	pointsPath := flag.String("points", "", "reference points (.csv or .geojson)")
	outPath := flag.String("out", "data/df_cleaned.csv", "output reference library CSV")
	flagList := flag.String("flags", "7", "comma separated quality flag indices")
	provider := flag.String("provider", storage.DefaultProvider, "credential provider name or endpoint url")
	logLevel := flag.String("log", "info", "log level (debug|info|warn|error)")
	flag.Parse()

	setupLogging(*logLevel)
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}
	godal.RegisterAll()

	urls := splitList(*fURLs)
	maskURLs := splitList(*fMaskURLs)
	if len(urls) == 0 || *pointsPath == "" {
		log.Fatal("--f-urls and --points are required")
	}
	if len(maskURLs) != len(urls) {
		log.Fatalf("%d granules but %d mask granules given", len(urls), len(maskURLs))
	}

	if err := run(urls, maskURLs, *pointsPath, *outPath, *flagList, *provider); err != nil {
		log.Fatal(err)
	}
}

func run(urls, maskURLs []string, pointsPath, outPath, flagList, provider string) error {
	flags, err := parseFlagIndices(flagList)
	if err != nil {
		return err
	}
	points, err := loadPoints(pointsPath)
	if err != nil {
		return err
	}
	log.Infof("loaded %d reference points", len(points))

	credProvider, err := credentialProviderFor(append(append([]string{}, urls...), maskURLs...), provider)
	if err != nil {
		return err
	}

	var library []spectra.SpectralRecord
	for i, url := range urls {
		log.Infof("processing granule %d/%d: %s", i+1, len(urls), emit.GranuleID(url))
		records, err := extractGranule(url, maskURLs[i], points, flags, credProvider)
		if err != nil {
			return fmt.Errorf("granule %s: %w", emit.GranuleID(url), err)
		}
		library = append(library, records...)
	}

	// Final cleanup: points whose spectrum stayed empty across the pipeline.
	library = spectra.DropEmpty(library)
	if err := spectra.WriteWideCSV(outPath, library); err != nil {
		return err
	}
	log.Infof("wrote %d records to %s", len(library), outPath)
	return nil
}

// credentialProviderFor builds a credential provider when any of the
// references needs object storage, carrying the Earthdata bearer token the
// s3credentials endpoints require.
func credentialProviderFor(refs []string, provider string) (*storage.CredentialProvider, error) {
	for _, ref := range refs {
		if strings.HasPrefix(ref, "s3://") {
			return storage.NewCredentialProvider(provider, properties.EarthdataToken())
		}
	}
	return nil, nil
}

func extractGranule(url, maskURL string, points []spectra.Point, flags []int, credProvider *storage.CredentialProvider) ([]spectra.SpectralRecord, error) {
	store, err := storage.ForRef(url, credProvider)
	if err != nil {
		return nil, err
	}
	maskStore, err := storage.ForRef(maskURL, credProvider)
	if err != nil {
		return nil, err
	}
	localGranule, err := store.Fetch(url)
	if err != nil {
		return nil, err
	}
	localMask, err := maskStore.Fetch(maskURL)
	if err != nil {
		return nil, err
	}

	maskScene, err := emit.Load(localMask, emit.LoadOptions{SourcePath: maskStore.SourcePath(maskURL)})
	if err != nil {
		return nil, err
	}
	qmask, err := emit.BuildQualityMask(maskScene, flags)
	if err != nil {
		return nil, err
	}

	scene, err := emit.Load(localGranule, emit.LoadOptions{
		SourcePath:   store.SourcePath(url),
		Orthorectify: true,
		QualityMask:  qmask,
	})
	if err != nil {
		return nil, err
	}

	records, err := spectra.ExtractPoints(scene, points)
	if err != nil {
		return nil, err
	}
	// Keep only the channels flagged usable before the records join the
	// library; wide columns must agree across granules.
	return spectra.FilterBands(records, scene.GoodBandIndices()), nil
}

func loadPoints(path string) ([]spectra.Point, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return spectra.LoadPointsGeoJSON(path)
	default:
		return spectra.LoadPointsCSV(path)
	}
}

func setupLogging(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("invalid log level: %s", level)
	}
	log.SetLevel(parsed)
}

func splitList(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFlagIndices(list string) ([]int, error) {
	var flags []int
	for _, part := range splitList(list) {
		var v int
		if _, err := fmt.Sscanf(part, "%d", &v); err != nil {
			return nil, fmt.Errorf("invalid flag index %q: %w", part, err)
		}
		flags = append(flags, v)
	}
	return flags, nil
}
