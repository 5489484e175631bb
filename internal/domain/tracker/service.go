// Package tracker runs the patient-facing workflows: registering a patient,
// submitting a health record together with its clinician notification, and
// assembling the dashboard summary.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/momcare/pregnancy-tracker/internal/domain/alert"
	"github.com/momcare/pregnancy-tracker/internal/domain/record"
	"github.com/momcare/pregnancy-tracker/internal/platform/kv"
	"github.com/momcare/pregnancy-tracker/internal/platform/notification"
	"github.com/momcare/pregnancy-tracker/internal/platform/websocket"
)

// MaxWeek bounds the gestational week accepted at registration.
const MaxWeek = 42

// RecentLimit is the number of records shown in the dashboard preview.
const RecentLimit = 3

type session struct {
	patient *record.Patient
	store   *record.Store
}

// Service serializes all writes of the process. The kv store is assumed to
// have a single writer.
type Service struct {
	mu       sync.Mutex
	kv       kv.Store
	patients record.PatientRepository
	log      *alert.Log
	sessions map[string]*session

	publisher websocket.Publisher
	mailer    *notification.Mailer
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

// WithPublisher broadcasts committed notifications to live clients.
func WithPublisher(p websocket.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMailer e-mails urgent notifications after they are committed.
func WithMailer(m *notification.Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func NewService(store kv.Store, patients record.PatientRepository, notifications *alert.Log, opts ...Option) *Service {
	s := &Service{
		kv:       store,
		patients: patients,
		log:      notifications,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterPatient validates and stores a new patient.
func (s *Service) RegisterPatient(ctx context.Context, p *record.Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	if p.Name == "" {
		return &record.ValidationError{Field: "name", Reason: "is required"}
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return &record.ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	if p.CurrentWeek < 0 || p.CurrentWeek > MaxWeek {
		return &record.ValidationError{Field: "currentWeek", Reason: fmt.Sprintf("must be between 0 and %d", MaxWeek)}
	}
	for i, c := range p.EmergencyContacts {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Phone) == "" {
			return &record.ValidationError{
				Field:  fmt.Sprintf("emergencyContacts[%d]", i),
				Reason: "name and phone are required",
			}
		}
	}
	p.HealthRecords = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	log.Info().Str("patient_id", p.ID).Msg("patient registered")
	return nil
}

// Patient returns the registered patient with the current session's
// records.
func (s *Service) Patient(ctx context.Context, patientID string) (*record.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.open(ctx, patientID)
	if err != nil {
		return nil, err
	}
	p := *sess.patient
	p.HealthRecords = sess.store.All()
	return &p, nil
}

// Patients lists the registry.
func (s *Service) Patients(ctx context.Context) ([]*record.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patients.List(ctx)
}

func (s *Service) open(ctx context.Context, patientID string) (*session, error) {
	if sess, ok := s.sessions[patientID]; ok {
		return sess, nil
	}
	store, p, err := record.Open(ctx, s.patients, patientID)
	if err != nil {
		return nil, err
	}
	sess := &session{patient: p, store: store}
	s.sessions[patientID] = sess
	return sess, nil
}

// Submit builds a record from raw form fields, appends it to the patient's
// records and prepends the derived notification to the clinician log. Both
// writes are committed together; on any failure neither is visible.
func (s *Service) Submit(ctx context.Context, patientID string, t record.RecordType, raw record.RawFields) (record.HealthRecord, alert.Notification, error) {
	rec, err := record.Build(t, raw, patientID, time.Now())
	if err != nil {
		return record.HealthRecord{}, alert.Notification{}, err
	}

	s.mu.Lock()
	n, err := s.commit(ctx, rec)
	s.mu.Unlock()
	if err != nil {
		return record.HealthRecord{}, alert.Notification{}, err
	}

	log.Info().
		Str("patient_id", patientID).
		Str("record_id", rec.ID).
		Str("type", string(rec.Type())).
		Str("severity", string(n.Severity)).
		Msg("health record submitted")

	s.announce(ctx, n)
	return rec, n, nil
}

func (s *Service) commit(ctx context.Context, rec record.HealthRecord) (alert.Notification, error) {
	sess, err := s.open(ctx, rec.PatientID)
	if err != nil {
		return alert.Notification{}, err
	}

	bctx, batch := kv.WithBatch(ctx)
	if err := sess.store.Append(bctx, rec); err != nil {
		batch.Abort()
		return alert.Notification{}, err
	}
	n := alert.Derive(rec, sess.patient.ID, sess.patient.Name)
	if err := s.log.Prepend(bctx, n); err != nil {
		batch.Abort()
		return alert.Notification{}, fmt.Errorf("record notification: %w", err)
	}
	if err := batch.Commit(ctx, s.kv); err != nil {
		return alert.Notification{}, err
	}
	return n, nil
}

// announce pushes a committed notification to live clients and mails urgent
// ones. Failures are logged only.
func (s *Service) announce(ctx context.Context, n alert.Notification) {
	if s.publisher != nil {
		ev, err := websocket.NewEvent(websocket.EventNotificationCreated, n.PatientID, n)
		if err == nil {
			err = s.publisher.Publish(ctx, ev)
		}
		if err != nil {
			log.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to publish notification")
		}
	}

	if n.Severity != alert.SeverityUrgent || !s.mailer.Enabled() {
		return
	}
	err := s.mailer.Send(ctx, notification.TemplateUrgentReading, map[string]string{
		"patient_name": n.PatientName,
		"patient_id":   n.PatientID,
		"message":      n.Message,
		"timestamp":    n.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		log.Error().Err(err).Str("notification_id", n.ID).Msg("failed to e-mail urgent notification")
	}
}

// MarkRead flags a notification as read and tells live clients.
func (s *Service) MarkRead(ctx context.Context, id string) (alert.Notification, error) {
	s.mu.Lock()
	n, err := s.log.MarkRead(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return n, err
	}
	if s.publisher != nil {
		ev, err := websocket.NewEvent(websocket.EventNotificationRead, n.PatientID, n)
		if err == nil {
			err = s.publisher.Publish(ctx, ev)
		}
		if err != nil {
			log.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to publish read notification")
		}
	}
	return n, nil
}

// Records returns the patient's records in insertion order.
func (s *Service) Records(ctx context.Context, patientID string) ([]record.HealthRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.open(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return sess.store.All(), nil
}

// Latest returns the most recent record of type t.
func (s *Service) Latest(ctx context.Context, patientID string, t record.RecordType) (record.HealthRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.open(ctx, patientID)
	if err != nil {
		return record.HealthRecord{}, false, err
	}
	rec, ok := sess.store.LatestOf(t)
	return rec, ok, nil
}

// Summary is the patient dashboard.
type Summary struct {
	PatientID         string                                   `json:"patientId"`
	PatientName       string                                   `json:"patientName"`
	CurrentWeek       int                                      `json:"currentWeek"`
	ProgressPercent   int                                      `json:"progressPercent"`
	DueDate           *time.Time                               `json:"dueDate,omitempty"`
	WeeksRemaining    int                                      `json:"weeksRemaining"`
	Latest            map[record.RecordType]record.HealthRecord `json:"latest"`
	Recent            []record.HealthRecord                    `json:"recent"`
	RecordCount       int                                      `json:"recordCount"`
	EmergencyContacts []record.EmergencyContact                `json:"emergencyContacts"`
}

// Summary assembles the dashboard for the given day.
func (s *Service) Summary(ctx context.Context, patientID string, today time.Time) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.open(ctx, patientID)
	if err != nil {
		return Summary{}, err
	}
	p := sess.patient

	sum := Summary{
		PatientID:         p.ID,
		PatientName:       p.Name,
		CurrentWeek:       p.CurrentWeek,
		ProgressPercent:   record.ProgressPercent(p.CurrentWeek),
		DueDate:           p.DueDate,
		Latest:            make(map[record.RecordType]record.HealthRecord),
		Recent:            sess.store.Head(RecentLimit),
		RecordCount:       sess.store.Len(),
		EmergencyContacts: p.EmergencyContacts,
	}
	if p.DueDate != nil {
		sum.WeeksRemaining = record.WeeksRemaining(*p.DueDate, today)
	}
	for _, t := range record.Types {
		if rec, ok := sess.store.LatestOf(t); ok {
			sum.Latest[t] = rec
		}
	}
	if sum.EmergencyContacts == nil {
		sum.EmergencyContacts = []record.EmergencyContact{}
	}
	return sum, nil
}
