package record

import (
	"context"
	"errors"
)

var ErrPatientNotFound = errors.New("patient not found")

// PatientRepository is the patient registry. SaveRecords overwrites the whole
// record list of one patient.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context) ([]*Patient, error)
	SaveRecords(ctx context.Context, patientID string, records []HealthRecord) error
}
