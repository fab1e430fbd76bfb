// Package store persists job reports so they can be served after the job ran.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/franksops/siptransfer/report"
)

var (
	// ErrReportNotFound is returned when no report is stored for a token.
	ErrReportNotFound = errors.New("report not found")
)

var (
	reportsBucket = []byte("reports")
)

// Store defines the interface for persisting report records.
type Store interface {
	SaveReport(rec *report.Record) error
	GetReport(token string) (*report.Record, error)
	// Tokens lists the tokens of all stored reports.
	Tokens() ([]string, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(reportsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create reports bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveReport saves a record under its token, replacing any previous version.
func (s *BoltStore) SaveReport(rec *report.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}

		if err := b.Put([]byte(rec.Token), data); err != nil {
			return fmt.Errorf("failed to put report: %w", err)
		}
		return nil
	})
}

// GetReport retrieves the record stored for token.
func (s *BoltStore) GetReport(token string) (*report.Record, error) {
	var rec report.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(reportsBucket)
		data := b.Get([]byte(token))
		if data == nil {
			return ErrReportNotFound
		}

		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal report: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// Tokens lists the tokens of all stored reports in key order.
func (s *BoltStore) Tokens() ([]string, error) {
	var tokens []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(reportsBucket).ForEach(func(k, _ []byte) error {
			tokens = append(tokens, string(k))
			return nil
		})
	})
	return tokens, err
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
