// Command turncal fits the spin time model from logged turns. Input is CSV
// with one "seconds,degrees" sample per line; a header line is skipped. The
// output is a tuning config fragment with the fitted coefficients.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/gridrunner/internal/config"
	"github.com/banshee-data/gridrunner/internal/turn"
)

var (
	inPath = flag.String("in", "", "CSV of seconds,degrees samples (stdin when empty)")
	scale  = flag.Float64("scale", config.DefaultTuningConfig().GetTurnScale(), "Large-angle scale carried into the output")
	update = flag.String("update", "", "Write the fitted model into this tuning config instead of printing a fragment")
)

// readSamples parses seconds,degrees rows. A first row that does not parse
// is treated as a header.
func readSamples(r io.Reader) ([]turn.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var samples []turn.Sample
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		secs, errS := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		deg, errD := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errS != nil || errD != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("row %d: want seconds,degrees, got %q", row, rec)
		}
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) || math.IsNaN(deg) || math.IsInf(deg, 0) {
			return nil, fmt.Errorf("row %d: sample out of range %q", row, rec)
		}
		samples = append(samples, turn.Sample{
			Elapsed: time.Duration(secs * float64(time.Second)),
			Degrees: deg,
		})
	}
	return samples, nil
}

// updateConfig loads the tuning config at path, replaces its turn model
// and writes it back.
func updateConfig(path string, m turn.TimeModel) error {
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return err
	}
	cfg.SetTurnModel(m.A, m.B, m.C, m.Scale)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.Save(path)
}

// fragment renders m as the turn model keys of the tuning config.
func fragment(m turn.TimeModel) ([]byte, error) {
	cfg := config.EmptyTuningConfig()
	cfg.SetTurnModel(m.A, m.B, m.C, m.Scale)
	return json.MarshalIndent(cfg, "", "  ")
}

func main() {
	flag.Parse()

	in := io.Reader(os.Stdin)
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			log.Fatalf("failed to open samples: %v", err)
		}
		defer f.Close()
		in = f
	}

	samples, err := readSamples(in)
	if err != nil {
		log.Fatalf("failed to read samples: %v", err)
	}
	model, err := turn.Calibrate(samples, *scale)
	if err != nil {
		log.Fatalf("calibration failed: %v", err)
	}
	log.Printf("fitted %d samples, rmse %.2f deg (default model %.2f deg)",
		len(samples), model.RMSE(samples), turn.DefaultTimeModel().RMSE(samples))

	if *update != "" {
		if err := updateConfig(*update, model); err != nil {
			log.Fatalf("failed to update %s: %v", *update, err)
		}
		log.Printf("updated %s", *update)
		return
	}
	out, err := fragment(model)
	if err != nil {
		log.Fatalf("failed to encode config: %v", err)
	}
	fmt.Println(string(out))
}
