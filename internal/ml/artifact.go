package ml

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/features"
)

// ArtifactFormat tells which on-disk shape an artifact was read from.
type ArtifactFormat string

const (
	FormatV1     ArtifactFormat = "v1"
	FormatLegacy ArtifactFormat = "legacy"
)

// DefaultEnsembleSize is assumed when a V1 artifact does not declare one.
const DefaultEnsembleSize = 5

// ErrFeatureOrderMismatch rejects an artifact fit on a different feature
// order than the extractor produces.
var ErrFeatureOrderMismatch = errors.New("artifact feature names do not match extractor order")

// Bundle is the normalized per-property view every artifact shape exposes.
type Bundle struct {
	Scaler   Scaler
	Ensemble []Regressor
}

// Artifact is a decoded model file: either *ArtifactV1 or *ArtifactLegacy.
type Artifact interface {
	Format() ArtifactFormat
	Bundles() map[Property]Bundle
	EnsembleSize() int
	FeatureNames() []string
	// Skipped lists properties present in the file that failed validation.
	Skipped() map[string]string
}

// ArtifactV1 carries a scaler and an ensemble per property.
type ArtifactV1 struct {
	bundles      map[Property]Bundle
	ensembleSize int
	featureNames []string
	skipped      map[string]string
}

func (a *ArtifactV1) Format() ArtifactFormat { return FormatV1 }
func (a *ArtifactV1) Bundles() map[Property]Bundle { return a.bundles }
func (a *ArtifactV1) EnsembleSize() int { return a.ensembleSize }
func (a *ArtifactV1) FeatureNames() []string { return a.featureNames }
func (a *ArtifactV1) Skipped() map[string]string { return a.skipped }

// ArtifactLegacy maps each property straight to a single model. It has no
// scaler, so features are used unscaled.
type ArtifactLegacy struct {
	bundles map[Property]Bundle
	skipped map[string]string
}

func (a *ArtifactLegacy) Format() ArtifactFormat { return FormatLegacy }
func (a *ArtifactLegacy) Bundles() map[Property]Bundle { return a.bundles }
func (a *ArtifactLegacy) EnsembleSize() int { return 1 }
func (a *ArtifactLegacy) FeatureNames() []string { return nil }
func (a *ArtifactLegacy) Skipped() map[string]string { return a.skipped }

// artifactFile is the V1 document layout.
type artifactFile struct {
	Models       map[string][]json.RawMessage `json:"models"`
	Scalers      map[string]*StandardScaler   `json:"scalers"`
	NEnsemble    *int                         `json:"n_ensemble"`
	FeatureNames []string                     `json:"feature_names"`
}

// LoadArtifact reads and decodes the artifact at path. Gzip compressed
// files are detected by their magic bytes.
func LoadArtifact(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	a, err := DecodeArtifact(f)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return a, nil
}

// DecodeArtifact decides the artifact shape once and normalizes it.
func DecodeArtifact(r io.Reader) (Artifact, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(top) == 0 {
		return nil, errors.New("artifact is empty")
	}

	if _, ok := top["models"]; ok {
		return decodeV1(data)
	}
	return decodeLegacy(top)
}

func decodeV1(data []byte) (*ArtifactV1, error) {
	var doc artifactFile
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode v1: %w", err)
	}

	if len(doc.FeatureNames) > 0 && !slices.Equal(doc.FeatureNames, features.Names[:]) {
		return nil, fmt.Errorf("%w: got %v", ErrFeatureOrderMismatch, doc.FeatureNames)
	}

	a := &ArtifactV1{
		bundles:      make(map[Property]Bundle),
		ensembleSize: DefaultEnsembleSize,
		featureNames: doc.FeatureNames,
		skipped:      make(map[string]string),
	}
	if doc.NEnsemble != nil {
		a.ensembleSize = *doc.NEnsemble
	}

	scalers := make(map[Property]*StandardScaler, len(doc.Scalers))
	for key, s := range doc.Scalers {
		if prop, err := ParseProperty(key); err == nil {
			scalers[prop] = s
		}
	}

	for _, key := range sortedKeys(doc.Models) {
		prop, err := ParseProperty(key)
		if err != nil {
			a.skipped[key] = err.Error()
			continue
		}
		scaler, ok := scalers[prop]
		if !ok || scaler == nil {
			a.skipped[key] = "no scaler"
			continue
		}
		b, err := buildV1Bundle(scaler, doc.Models[key])
		if err != nil {
			a.skipped[key] = err.Error()
			continue
		}
		if len(b.Ensemble) != a.ensembleSize {
			log.Warn().
				Str("property", string(prop)).
				Int("declared", a.ensembleSize).
				Int("actual", len(b.Ensemble)).
				Msg("Ensemble size differs from declared n_ensemble, using models present")
		}
		a.bundles[prop] = b
	}
	if len(a.bundles) == 0 {
		return nil, fmt.Errorf("no usable property bundles (%d rejected)", len(a.skipped))
	}
	return a, nil
}

func buildV1Bundle(scaler *StandardScaler, raw []json.RawMessage) (Bundle, error) {
	if err := scaler.validate(features.Size); err != nil {
		return Bundle{}, err
	}
	if len(raw) == 0 {
		return Bundle{}, errors.New("empty ensemble")
	}
	ensemble := make([]Regressor, 0, len(raw))
	for i, m := range raw {
		r, err := decodeRegressor(m, features.Size)
		if err != nil {
			return Bundle{}, fmt.Errorf("member %d: %w", i, err)
		}
		ensemble = append(ensemble, r)
	}
	return Bundle{Scaler: scaler, Ensemble: ensemble}, nil
}

func decodeLegacy(top map[string]json.RawMessage) (*ArtifactLegacy, error) {
	a := &ArtifactLegacy{
		bundles: make(map[Property]Bundle),
		skipped: make(map[string]string),
	}
	for _, key := range sortedKeys(top) {
		prop, err := ParseProperty(key)
		if err != nil {
			a.skipped[key] = err.Error()
			continue
		}
		r, err := decodeRegressor(top[key], features.Size)
		if err != nil {
			a.skipped[key] = err.Error()
			continue
		}
		a.bundles[prop] = Bundle{Scaler: IdentityScaler{}, Ensemble: []Regressor{r}}
	}
	if len(a.bundles) == 0 && len(a.skipped) > 0 {
		return nil, fmt.Errorf("no usable models in legacy artifact (%d entries rejected)", len(a.skipped))
	}
	return a, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ArtifactDocument is the writable V1 layout used by tooling that produces
// artifacts.
type ArtifactDocument struct {
	Models       map[string][]Regressor     `json:"models"`
	Scalers      map[string]*StandardScaler `json:"scalers"`
	NEnsemble    int                        `json:"n_ensemble"`
	FeatureNames []string                   `json:"feature_names,omitempty"`
}

// WriteArtifact encodes doc as JSON, gzip compressed when compress is set.
func WriteArtifact(w io.Writer, doc ArtifactDocument, compress bool) error {
	if compress {
		zw := gzip.NewWriter(w)
		if err := json.NewEncoder(zw).Encode(doc); err != nil {
			zw.Close()
			return fmt.Errorf("encode artifact: %w", err)
		}
		return zw.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}
