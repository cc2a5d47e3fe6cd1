// Package storage provides persistent prediction history for the polymer
// property predictor. It uses BoltDB to keep served predictions and the
// feature vectors behind them, so that they can be reviewed or exported
// for offline retraining.
//
// Records are keyed by creation time, which makes recent-first listing and
// time-range queries cursor scans.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"polymer-predictor/internal/common"
	"polymer-predictor/internal/ml"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID              string    `json:"id"`
	SMILES          string    `json:"smiles"`
	CanonicalSMILES string    `json:"canonical_smiles,omitempty"`
	Predictions     ml.Result `json:"predictions"`
	ModelLoaded     bool      `json:"model_loaded"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store provides persistent storage for prediction history using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) predictions.db under dataPath and makes sure the
// buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, common.DatabaseFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(common.PredictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(common.FeaturesBucket)); err != nil {
			return fmt.Errorf("create features bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path, or "" once closed.
func (s *Store) Path() string {
	if s.db == nil {
		return ""
	}
	return s.db.Path()
}

// SavePrediction stores rec, assigning an ID and creation time when they
// are unset, and returns the stored record.
func (s *Store) SavePrediction(rec PredictionRecord) (PredictionRecord, error) {
	if s.db == nil {
		return PredictionRecord{}, ErrClosed
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(common.PredictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction record: %w", err)
		}
		return b.Put(recordKey(rec.CreatedAt, rec.ID), data)
	})
	if err != nil {
		return PredictionRecord{}, err
	}
	return rec, nil
}

// RecentPredictions returns up to limit records, newest first.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []PredictionRecord{}, nil
	}

	records := make([]PredictionRecord, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(common.PredictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// PredictionsInRange returns records created within [start, end], oldest
// first.
func (s *Store) PredictionsInRange(start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := s.scanRange(common.PredictionsBucket, start, end, func(v []byte) {
		var rec PredictionRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return
		}
		records = append(records, rec)
	})
	return records, err
}

// Counts returns the number of stored predictions and feature records.
func (s *Store) Counts() (predictions, featureRecords int, err error) {
	if s.db == nil {
		return 0, 0, ErrClosed
	}
	err = s.db.View(func(tx *bbolt.Tx) error {
		predictions = tx.Bucket([]byte(common.PredictionsBucket)).Stats().KeyN
		featureRecords = tx.Bucket([]byte(common.FeaturesBucket)).Stats().KeyN
		return nil
	})
	return predictions, featureRecords, err
}

// scanRange calls fn for every value in bucket whose key time falls within
// [start, end].
func (s *Store) scanRange(bucket string, start, end time.Time, fn func(v []byte)) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()

		startKey := timePrefix(start)
		endKey := timePrefix(end.Add(time.Nanosecond))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			fn(v)
		}
		return nil
	})
}

// recordKey orders records by creation time; the ID keeps keys unique.
func recordKey(t time.Time, id string) []byte {
	return append(timePrefix(t), []byte("_"+id)...)
}

func timePrefix(t time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}
