package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"polymer-predictor/internal/common"
	"polymer-predictor/internal/features"
)

// FeatureRecord is an extracted feature vector kept for offline retraining.
// Features follow features.Names.
type FeatureRecord struct {
	ID        string    `json:"id"`
	SMILES    string    `json:"smiles"`
	Features  []float64 `json:"features"`
	CreatedAt time.Time `json:"created_at"`
}

// NewFeatureRecord captures v for smiles.
func NewFeatureRecord(smiles string, v features.Vector) FeatureRecord {
	return FeatureRecord{SMILES: smiles, Features: v.Values()}
}

// SaveFeatures stores a feature record for retraining.
func (s *Store) SaveFeatures(record FeatureRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(record.Features) != features.Size {
		return fmt.Errorf("feature record has %d values, want %d", len(record.Features), features.Size)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(common.FeaturesBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal feature record: %w", err)
		}
		return b.Put(recordKey(record.CreatedAt, record.ID), data)
	})
}

// FeaturesInRange returns feature records created within [start, end].
func (s *Store) FeaturesInRange(start, end time.Time) ([]FeatureRecord, error) {
	var records []FeatureRecord
	err := s.scanRange(common.FeaturesBucket, start, end, func(v []byte) {
		var rec FeatureRecord
		if err := json.Unmarshal(v, &rec); err != nil || len(rec.Features) != features.Size {
			return
		}
		records = append(records, rec)
	})
	return records, err
}

// ExportFeaturesToCSV writes every feature record to filename, oldest
// first, with a smiles column followed by the feature names. It returns the
// number of rows written.
func (s *Store) ExportFeaturesToCSV(filename string) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}

	f, err := os.Create(filename)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"smiles"}, features.Names[:]...)
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err = s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(common.FeaturesBucket)).ForEach(func(_, v []byte) error {
			var rec FeatureRecord
			if err := json.Unmarshal(v, &rec); err != nil || len(rec.Features) != features.Size {
				return nil // Skip malformed records
			}

			row := make([]string, 0, features.Size+1)
			row = append(row, rec.SMILES)
			for _, x := range rec.Features {
				row = append(row, strconv.FormatFloat(x, 'g', -1, 64))
			}
			if err := w.Write(row); err != nil {
				return err
			}
			rows++
			return nil
		})
	})
	if err != nil {
		return rows, fmt.Errorf("export features: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}
