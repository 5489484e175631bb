package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/momcare/pregnancy-tracker/internal/platform/kv"
)

// RegistryKey holds the JSON array of all registered patients.
const RegistryKey = "registered_patients"

type patientRepoKV struct{ store kv.Store }

// NewPatientRepoKV stores the registry as a single blob under RegistryKey.
// Every write is a read-modify-write of the whole array.
func NewPatientRepoKV(store kv.Store) PatientRepository {
	return &patientRepoKV{store: store}
}

func (r *patientRepoKV) load(ctx context.Context) ([]*Patient, error) {
	raw, err := kv.Get(ctx, r.store, RegistryKey)
	if errors.Is(err, kv.ErrNotFound) {
		return []*Patient{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load patient registry: %w", err)
	}
	var patients []*Patient
	if err := json.Unmarshal(raw, &patients); err != nil {
		return nil, fmt.Errorf("decode patient registry: %w", err)
	}
	return patients, nil
}

func (r *patientRepoKV) save(ctx context.Context, patients []*Patient) error {
	raw, err := json.Marshal(patients)
	if err != nil {
		return fmt.Errorf("encode patient registry: %w", err)
	}
	if err := kv.Put(ctx, r.store, RegistryKey, raw); err != nil {
		return fmt.Errorf("save patient registry: %w", err)
	}
	return nil
}

func (r *patientRepoKV) Create(ctx context.Context, p *Patient) error {
	patients, err := r.load(ctx)
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = NewID()
	}
	for _, existing := range patients {
		if existing.ID == p.ID {
			return fmt.Errorf("patient %s already registered", p.ID)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.HealthRecords == nil {
		p.HealthRecords = []HealthRecord{}
	}
	return r.save(ctx, append(patients, p))
}

func (r *patientRepoKV) Get(ctx context.Context, id string) (*Patient, error) {
	patients, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *patientRepoKV) List(ctx context.Context) ([]*Patient, error) {
	return r.load(ctx)
}

func (r *patientRepoKV) SaveRecords(ctx context.Context, patientID string, records []HealthRecord) error {
	patients, err := r.load(ctx)
	if err != nil {
		return err
	}
	for _, p := range patients {
		if p.ID == patientID {
			p.HealthRecords = append([]HealthRecord{}, records...)
			return r.save(ctx, patients)
		}
	}
	return ErrPatientNotFound
}
