// Package batch scores files of molecules offline and reports accuracy
// against measured values when they are present.
package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/ml"
)

// Sample is one molecule to score, with optional measured property values.
type Sample struct {
	SMILES   string                  `json:"smiles"`
	Measured map[ml.Property]float64 `json:"measured,omitempty"`
}

// ErrNoSMILESColumn is returned for CSV input without a smiles column.
var ErrNoSMILESColumn = errors.New("input has no smiles column")

// Load reads samples from a .csv or .json file.
func Load(path string) ([]Sample, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".json":
		return LoadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported input format %q (want .csv or .json)", filepath.Ext(path))
	}
}

// LoadCSV reads a CSV file with a smiles column. Columns named after a
// property (tg, ffv, tc, density, rg, any case) are read as measured
// values; empty cells mean unmeasured. Other columns are ignored.
func LoadCSV(path string) ([]Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	samples, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("file", path).Int("samples", len(samples)).Msg("Input loaded")
	return samples, nil
}

// ReadCSV parses CSV input as described for LoadCSV.
func ReadCSV(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	smilesCol := -1
	measuredCols := make(map[int]ml.Property)
	for i, col := range header {
		name := strings.TrimSpace(col)
		if strings.EqualFold(name, "smiles") {
			smilesCol = i
			continue
		}
		if p, err := ml.ParseProperty(name); err == nil {
			measuredCols[i] = p
		}
	}
	if smilesCol < 0 {
		return nil, ErrNoSMILESColumn
	}

	var samples []Sample
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		s := Sample{SMILES: strings.TrimSpace(record[smilesCol])}
		for i, p := range measuredCols {
			raw := strings.TrimSpace(record[i])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, p, err)
			}
			if s.Measured == nil {
				s.Measured = make(map[ml.Property]float64)
			}
			s.Measured[p] = v
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// LoadJSON reads a JSON array of {"smiles": ..., "measured": {...}}.
func LoadJSON(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	var raw []struct {
		SMILES   string             `json:"smiles"`
		Measured map[string]float64 `json:"measured"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: failed to parse JSON: %w", path, err)
	}

	samples := make([]Sample, len(raw))
	for i, r := range raw {
		samples[i].SMILES = strings.TrimSpace(r.SMILES)
		for k, v := range r.Measured {
			p, err := ml.ParseProperty(k)
			if err != nil {
				return nil, fmt.Errorf("%s: entry %d: %w", path, i, err)
			}
			if samples[i].Measured == nil {
				samples[i].Measured = make(map[ml.Property]float64)
			}
			samples[i].Measured[p] = v
		}
	}

	log.Info().Str("file", path).Int("samples", len(samples)).Msg("Input loaded")
	return samples, nil
}
