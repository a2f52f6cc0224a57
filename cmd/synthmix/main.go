package main

import (
	"flag"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/spectra"
	"github.com/spectravue/emit-unmix/internal/utils"
)

func main() {
	inPath := flag.String("in", "data/df_cleaned.csv", "reference library CSV (wide form)")
	outPath := flag.String("out", "data/df_synthetic.csv", "synthetic training CSV")
	n := flag.Int("n", 10000, "number of synthetic mixtures")
	seed := flag.Uint64("seed", 1, "random seed")
	logLevel := flag.String("log", "info", "log level (debug|info|warn|error)")
	flag.Parse()

	parsed, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level: %s", *logLevel)
	}
	log.SetLevel(parsed)
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	records, err := spectra.ReadWideCSV(*inPath)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("loaded %d reference records from %s", len(records), *inPath)

	classes := uniqueCategories(records)
	log.Infof("target classes: %v", classes)

	mixer := spectra.NewMixer(*seed)
	synthetic, err := mixer.Synthesize(records, classes, *n)
	if err != nil {
		log.Fatal(err)
	}

	if err := spectra.WriteSyntheticCSV(*outPath, records[0].Wavelengths, synthetic); err != nil {
		log.Fatal(err)
	}
	log.Infof("wrote %d synthetic records to %s", len(synthetic), *outPath)
}

func uniqueCategories(records []spectra.SpectralRecord) []string {
	categories := make([]string, 0, len(records))
	for _, rec := range records {
		categories = append(categories, rec.Category)
	}
	return utils.SortedUnique(categories)
}
