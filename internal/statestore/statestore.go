// Package statestore loads and saves whole JSON documents in a bucket.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vrsandeep/beatvault/internal/objectstore"
)

// StoreError reports a failed load or save against the backing bucket.
type StoreError struct {
	Op  string // "load" or "save"
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("state store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) ErrorKind() string { return "store" }

// Store reads and writes documents. Every Save replaces the whole document.
type Store struct {
	bucket objectstore.Bucket
}

func New(bucket objectstore.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Load decodes the document at key. A missing object yields defaultValue.
func Load[T any](ctx context.Context, s *Store, key string, defaultValue T) (T, error) {
	data, err := s.bucket.Get(ctx, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return defaultValue, nil
	}
	if err != nil {
		return defaultValue, &StoreError{Op: "load", Key: key, Err: err}
	}
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return defaultValue, &StoreError{Op: "load", Key: key, Err: fmt.Errorf("parse JSON: %w", err)}
	}
	return doc, nil
}

// Save marshals doc and writes it in one atomic Put.
func (s *Store) Save(ctx context.Context, key string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", Key: key, Err: fmt.Errorf("marshal JSON: %w", err)}
	}
	data = append(data, '\n')
	if err := s.bucket.Put(ctx, key, data); err != nil {
		return &StoreError{Op: "save", Key: key, Err: err}
	}
	return nil
}
