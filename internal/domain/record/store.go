package record

import (
	"context"
	"fmt"
	"sync"

	"github.com/momcare/pregnancy-tracker/internal/platform/kv"
)

// Store owns the ordered record collection of one patient for the lifetime
// of a session. Records are kept in insertion order; there is no update or
// delete.
type Store struct {
	patientID string
	repo      PatientRepository

	mu      sync.RWMutex
	records []HealthRecord
}

// NewStore wraps an already loaded record list.
func NewStore(patientID string, repo PatientRepository, records []HealthRecord) *Store {
	return &Store{
		patientID: patientID,
		repo:      repo,
		records:   append([]HealthRecord{}, records...),
	}
}

// Open restores the persisted records of patientID.
func Open(ctx context.Context, repo PatientRepository, patientID string) (*Store, *Patient, error) {
	p, err := repo.Get(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	return NewStore(p.ID, repo, p.HealthRecords), p, nil
}

func (s *Store) PatientID() string { return s.patientID }

// Append adds rec and persists the patient's full record set. If persisting
// fails the append is undone. When a kv.Batch is bound to ctx the write is
// only staged, and the undo also runs if that batch is aborted.
//
// Appending a record whose ID is already held re-persists the unchanged set,
// so a retried Append never stores a second copy.
func (s *Store) Append(ctx context.Context, rec HealthRecord) error {
	if rec.PatientID != s.patientID {
		return fmt.Errorf("record belongs to patient %s, store holds %s", rec.PatientID, s.patientID)
	}
	if rec.Data == nil {
		return fmt.Errorf("record %s has no data", rec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.ID == rec.ID {
			if err := s.repo.SaveRecords(ctx, s.patientID, s.records); err != nil {
				return fmt.Errorf("persist records: %w", err)
			}
			return nil
		}
	}

	prev := s.records
	next := make([]HealthRecord, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, rec)

	if err := s.repo.SaveRecords(ctx, s.patientID, next); err != nil {
		return fmt.Errorf("persist records: %w", err)
	}
	s.records = next

	if b := kv.BatchFromContext(ctx); b != nil {
		b.OnAbort(func() {
			s.mu.Lock()
			s.records = prev
			s.mu.Unlock()
		})
	}
	return nil
}

// All returns the records in insertion order. Callers that need
// chronological order must sort.
func (s *Store) All() []HealthRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HealthRecord{}, s.records...)
}

// Head returns up to n records from the start of the insertion order.
func (s *Store) Head(n int) []HealthRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.records) {
		n = len(s.records)
	}
	if n < 0 {
		n = 0
	}
	return append([]HealthRecord{}, s.records[:n]...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// LatestOf returns the record of type t with the greatest date.
func (s *Store) LatestOf(t RecordType) (HealthRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Latest(s.records, t)
}

// Latest picks the record of type t with the maximum Date. Equal dates are
// resolved in favour of the greater ID, i.e. the later creation.
func Latest(records []HealthRecord, t RecordType) (HealthRecord, bool) {
	var best HealthRecord
	found := false
	for _, r := range records {
		if r.Type() != t {
			continue
		}
		if !found || r.Date.After(best.Date) || (r.Date.Equal(best.Date) && r.ID > best.ID) {
			best = r
			found = true
		}
	}
	return best, found
}
