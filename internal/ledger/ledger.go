// Package ledger stores issued certificate records so they can be verified
// later by id. Records are append-only.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned by Get for unknown ids.
	ErrNotFound = errors.New("certificate not found")
	// ErrDuplicate is returned by Put when the id is already recorded.
	ErrDuplicate = errors.New("certificate id already recorded")
)

// Record is one issued certificate.
type Record struct {
	CertID         string          `db:"cert_id" json:"cert_id"`
	Name           string          `db:"name" json:"name"`
	Course         string          `db:"course" json:"course"`
	Date           string          `db:"date" json:"date"`
	Signature      string          `db:"signature" json:"signature"`
	ContentHash    string          `db:"content_hash" json:"content_hash"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	AdditionalData json.RawMessage `db:"additional_data" json:"additional_data,omitempty"`
}

// Store persists certificate records.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, certID string) (*Record, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.CertID]; ok {
		return ErrDuplicate
	}
	s.records[rec.CertID] = *rec
	return nil
}

func (s *MemoryStore) Get(_ context.Context, certID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[certID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
