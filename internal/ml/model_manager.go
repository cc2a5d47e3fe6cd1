package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// PreferredArtifacts are tried in order when no version is active.
var PreferredArtifacts = []string{"ensemble_v85_best.json", "ensemble_v53_best.json"}

// ModelVersion represents a registered artifact
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics holds offline validation scores for an artifact, keyed by
// property where relevant.
type ModelMetrics struct {
	MAE             map[string]float64 `json:"mae,omitempty"`
	R2              map[string]float64 `json:"r2,omitempty"`
	WeightedMAE     float64            `json:"weighted_mae,omitempty"`
	TrainingSamples int                `json:"training_samples"`
}

// ModelManager handles artifact versioning and resolution
type ModelManager struct {
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	currentModel *ModelVersion
}

// NewModelManager creates a new model manager
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if modelsDir == "" {
		return nil, fmt.Errorf("models directory is empty")
	}
	versionsFile := filepath.Join(modelsDir, "model_versions.json")

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: versionsFile,
		versions:     make([]ModelVersion, 0),
	}

	// Load existing versions if available
	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Str("file", versionsFile).Msg("Failed to load model versions, starting fresh")
	}

	return mm, nil
}

// AddVersion registers an artifact. Relative paths are resolved against the
// models directory.
func (mm *ModelManager) AddVersion(version, artifactPath string, metrics ModelMetrics) (ModelVersion, error) {
	if version == "" {
		version = time.Now().UTC().Format("20060102-150405")
	}
	for _, v := range mm.versions {
		if v.Version == version {
			return ModelVersion{}, fmt.Errorf("version %s already registered", version)
		}
	}
	if _, err := os.Stat(mm.resolve(artifactPath)); err != nil {
		return ModelVersion{}, fmt.Errorf("artifact %s: %w", artifactPath, err)
	}

	mv := ModelVersion{
		Version:   version,
		Path:      artifactPath,
		CreatedAt: time.Now().UTC(),
		Metrics:   metrics,
	}
	mm.versions = append(mm.versions, mv)

	// Newest first
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})
	mm.refreshCurrent()

	return mv, mm.saveVersions()
}

// ActivateVersion activates a specific version
func (mm *ModelManager) ActivateVersion(version string) error {
	found := false
	for i := range mm.versions {
		mm.versions[i].IsActive = mm.versions[i].Version == version
		if mm.versions[i].IsActive {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("version %s not found", version)
	}
	mm.refreshCurrent()

	return mm.saveVersions()
}

// Rollback activates the version registered before the active one
func (mm *ModelManager) Rollback() error {
	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}

	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}

	if currentIdx+1 < len(mm.versions) {
		return mm.ActivateVersion(mm.versions[currentIdx+1].Version)
	}

	return fmt.Errorf("no previous version available")
}

// GetCurrentVersion returns the currently active version
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	return mm.currentModel
}

// ListVersions returns all registered versions, newest first
func (mm *ModelManager) ListVersions() []ModelVersion {
	out := make([]ModelVersion, len(mm.versions))
	copy(out, mm.versions)
	return out
}

// ResolveArtifact picks the artifact to load: the active version if its file
// exists, else the first preferred artifact present in the models
// directory, else defaultPath.
func (mm *ModelManager) ResolveArtifact(defaultPath string) string {
	if cur := mm.currentModel; cur != nil {
		p := mm.resolve(cur.Path)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		log.Warn().Str("version", cur.Version).Str("path", p).Msg("Active model version file missing, falling back")
	}

	for _, name := range PreferredArtifacts {
		p := filepath.Join(mm.modelsDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return defaultPath
}

func (mm *ModelManager) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(mm.modelsDir, p)
}

func (mm *ModelManager) refreshCurrent() {
	mm.currentModel = nil
	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.currentModel = &mm.versions[i]
			return
		}
	}
}

// loadVersions loads model versions from file
func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}
	mm.refreshCurrent()

	return nil
}

// saveVersions saves model versions to file
func (mm *ModelManager) saveVersions() error {
	if err := os.MkdirAll(mm.modelsDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(mm.versionsFile, data, 0o600)
}
