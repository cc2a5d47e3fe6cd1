package ml

import (
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrModelUnavailable is reported when the store holds no artifact.
var ErrModelUnavailable = errors.New("model artifact not loaded")

// Store holds the loaded artifact. It is populated once by NewStore and
// never changes afterwards, so it can be shared without locking.
type Store struct {
	path     string
	artifact Artifact
	bundles  map[Property]Bundle
	loadErr  error
	loadedAt time.Time
	modTime  time.Time
}

// StoreInfo summarizes the store for status endpoints and tooling.
type StoreInfo struct {
	Path         string            `json:"path"`
	Loaded       bool              `json:"loaded"`
	Format       ArtifactFormat    `json:"format,omitempty"`
	EnsembleSize int               `json:"ensemble_size"`
	Properties   []string          `json:"properties"`
	Members      map[string]int    `json:"members,omitempty"`
	ModelKinds   map[string]string `json:"model_kinds,omitempty"`
	FeatureNames []string          `json:"feature_names,omitempty"`
	Skipped      map[string]string `json:"skipped,omitempty"`
	ModifiedAt   time.Time         `json:"modified_at,omitempty"`
	LoadedAt     time.Time         `json:"loaded_at,omitempty"`
	LoadError    string            `json:"load_error,omitempty"`
}

// NewStore loads the artifact at path. It never fails: a missing or
// malformed artifact leaves the store unloaded and LoadErr reports why.
func NewStore(path string) *Store {
	s := &Store{path: path}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("model_path", path).Msg("Model artifact not found, predictions will return placeholders")
		} else {
			log.Warn().Err(err).Str("model_path", path).Msg("Failed to stat model artifact")
		}
		s.loadErr = err
		return s
	}
	s.modTime = info.ModTime()

	a, err := LoadArtifact(path)
	if err != nil {
		log.Error().Err(err).Str("model_path", path).Msg("Failed to load model artifact, predictions will return placeholders")
		s.loadErr = err
		return s
	}

	s.setArtifact(a)
	log.Info().
		Str("model_path", path).
		Str("format", string(a.Format())).
		Int("ensemble_size", a.EnsembleSize()).
		Strs("properties", s.properties()).
		Msg("Model artifact loaded")
	for key, reason := range a.Skipped() {
		log.Warn().Str("property", key).Str("reason", reason).Msg("Property bundle dropped at load")
	}
	return s
}

// NewStoreFromArtifact wraps an already decoded artifact.
func NewStoreFromArtifact(a Artifact) *Store {
	s := &Store{}
	if a == nil {
		s.loadErr = ErrModelUnavailable
		return s
	}
	s.setArtifact(a)
	return s
}

func (s *Store) setArtifact(a Artifact) {
	s.artifact = a
	s.bundles = a.Bundles()
	s.loadedAt = time.Now()
}

// IsLoaded reports whether an artifact was loaded.
func (s *Store) IsLoaded() bool {
	return s != nil && s.artifact != nil
}

// LoadErr returns why the store is unloaded, or nil.
func (s *Store) LoadErr() error {
	if s == nil {
		return ErrModelUnavailable
	}
	return s.loadErr
}

// Bundle returns the scaler and ensemble for p.
func (s *Store) Bundle(p Property) (Bundle, bool) {
	if !s.IsLoaded() {
		return Bundle{}, false
	}
	b, ok := s.bundles[p]
	return b, ok
}

// Path returns the artifact path the store was created with.
func (s *Store) Path() string { return s.path }

// ModelAge is the time since the artifact file was last modified.
func (s *Store) ModelAge() time.Duration {
	if s == nil || s.modTime.IsZero() {
		return 0
	}
	return time.Since(s.modTime)
}

func (s *Store) properties() []string {
	out := make([]string, 0, len(s.bundles))
	for _, p := range Properties {
		if _, ok := s.bundles[p]; ok {
			out = append(out, string(p))
		}
	}
	return out
}

// Info describes the loaded artifact.
func (s *Store) Info() StoreInfo {
	info := StoreInfo{
		Path:       s.path,
		Loaded:     s.IsLoaded(),
		Properties: []string{},
		ModifiedAt: s.modTime,
		LoadedAt:   s.loadedAt,
	}
	if s.loadErr != nil {
		info.LoadError = s.loadErr.Error()
	}
	if !info.Loaded {
		return info
	}

	info.Format = s.artifact.Format()
	info.EnsembleSize = s.artifact.EnsembleSize()
	info.Properties = s.properties()
	info.FeatureNames = s.artifact.FeatureNames()
	info.Members = make(map[string]int, len(s.bundles))
	info.ModelKinds = make(map[string]string, len(s.bundles))
	for p, b := range s.bundles {
		info.Members[string(p)] = len(b.Ensemble)
		kinds := make([]string, 0, len(b.Ensemble))
		seen := make(map[string]bool)
		for _, r := range b.Ensemble {
			if !seen[r.Kind()] {
				seen[r.Kind()] = true
				kinds = append(kinds, r.Kind())
			}
		}
		sort.Strings(kinds)
		info.ModelKinds[string(p)] = strings.Join(kinds, ",")
	}
	if skipped := s.artifact.Skipped(); len(skipped) > 0 {
		info.Skipped = skipped
	}
	return info
}
